package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

const (
	datasetUrbanPlanningZones = "XKT001"
	datasetSchoolDistricts    = "XKT004"
)

// AreaTileResult 是区域类瓦片工具的返回值，GeoJSON、PBF 与资源 URI 三选一。
type AreaTileResult struct {
	GeoJSON     json.RawMessage `json:"geojson,omitempty"`
	PBFBase64   string          `json:"pbfBase64,omitempty"`
	ResourceURI string          `json:"resourceUri,omitempty"`
	Meta        TileMeta        `json:"meta"`
}

type areaTileArgs struct {
	Z                      int    `json:"z"`
	X                      int    `json:"x"`
	Y                      int    `json:"y"`
	AdministrativeAreaCode string `json:"administrativeAreaCode"`
	ResponseFormat         string `json:"responseFormat"`
	ForceRefresh           bool   `json:"forceRefresh"`
}

// AreaTiles 拉取按 z/x/y 切分的区域面数据（都市計画区域、小学校区等）。
// areaFilter 为 true 时接受 administrativeAreaCode 过滤。
type AreaTiles struct {
	name        string
	description string
	dataset     string
	kind        string
	areaFilter  bool
	fetcher     Fetcher
	resources   *ResourceStore
}

// NewFetchUrbanPlanningZones 创建 mlit.fetch_urban_planning_zones 工具。
func NewFetchUrbanPlanningZones(fetcher Fetcher, resources *ResourceStore) *AreaTiles {
	return &AreaTiles{
		name:        "mlit.fetch_urban_planning_zones",
		description: "Fetch urban planning zone tiles from MLIT dataset XKT001 as GeoJSON or base64-encoded PBF. Responses over 1MB are returned as resource URIs.",
		dataset:     datasetUrbanPlanningZones,
		kind:        kindUrbanPlanningZones,
		fetcher:     fetcher,
		resources:   resources,
	}
}

// NewFetchSchoolDistricts 创建 mlit.fetch_school_districts 工具。
func NewFetchSchoolDistricts(fetcher Fetcher, resources *ResourceStore) *AreaTiles {
	return &AreaTiles{
		name:        "mlit.fetch_school_districts",
		description: "Fetch elementary school district tiles from MLIT dataset XKT004 as GeoJSON or base64-encoded PBF, optionally filtered by administrative area codes. Responses over 1MB are returned as resource URIs.",
		dataset:     datasetSchoolDistricts,
		kind:        kindSchoolDistricts,
		areaFilter:  true,
		fetcher:     fetcher,
		resources:   resources,
	}
}

func (t *AreaTiles) Name() string { return t.name }

func (t *AreaTiles) Description() string { return t.description }

func (t *AreaTiles) InputSchema() json.RawMessage {
	areaCode := ""
	if t.areaFilter {
		areaCode = `
    "administrativeAreaCode": {"type": "string", "description": "5-digit administrative area code, comma-separated for several", "pattern": "^[0-9]{5}(,[0-9]{5})*$"},`
	}
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "z": {"type": "integer", "minimum": 11, "maximum": 15},
    "x": {"type": "integer", "minimum": 0},
    "y": {"type": "integer", "minimum": 0},` + areaCode + `
    "responseFormat": {"type": "string", "enum": ["geojson", "pbf"], "default": "geojson"},
    "forceRefresh": {"type": "boolean", "default": false}
  },
  "required": ["z", "x", "y"],
  "additionalProperties": false
}`)
}

func (t *AreaTiles) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args areaTileArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := checkRange("z", args.Z, 11, 15); err != nil {
		return nil, err
	}
	if err := checkTile(args.X, args.Y); err != nil {
		return nil, err
	}
	format, err := tileFormat(args.ResponseFormat)
	if err != nil {
		return nil, err
	}

	params := map[string]any{
		"response_format": format.String(),
		"z":               args.Z,
		"x":               args.X,
		"y":               args.Y,
	}
	if args.AdministrativeAreaCode != "" {
		if !t.areaFilter {
			return nil, invalidArg("administrativeAreaCode", "is not accepted by %s", t.name)
		}
		if err := checkAreaCodes(args.AdministrativeAreaCode); err != nil {
			return nil, err
		}
		params["administrativeAreaCode"] = args.AdministrativeAreaCode
	}

	result, err := t.fetcher.Fetch(ctx, mlit.Request{
		Endpoint:     t.dataset,
		Params:       params,
		Format:       format.String(),
		ForceRefresh: args.ForceRefresh,
	})
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(result.FilePath)
	if err != nil {
		return nil, fmt.Errorf("stat cached tile: %w", err)
	}
	meta := TileMeta{
		Meta:      newMeta(t.dataset, result.FromCache, format.String()),
		SizeBytes: info.Size(),
	}
	if info.Size() > ResourceThresholdBytes && t.resources != nil {
		uri, err := t.resources.URIFor(t.kind, result.FilePath)
		if err != nil {
			return nil, err
		}
		meta.IsResource = true
		return AreaTileResult{ResourceURI: uri, Meta: meta}, nil
	}

	content, err := os.ReadFile(result.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read cached tile: %w", err)
	}
	if format == mlit.FormatPBF {
		return AreaTileResult{PBFBase64: base64.StdEncoding.EncodeToString(content), Meta: meta}, nil
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("%s: %w", t.dataset, mlit.ErrInvalidJSON)
	}
	return AreaTileResult{GeoJSON: content, Meta: meta}, nil
}

func checkAreaCodes(raw string) error {
	for _, code := range strings.Split(raw, ",") {
		if len(code) != 5 || !isDigits(code) {
			return invalidArg("administrativeAreaCode", "must be 5-digit codes separated by commas, got %q", raw)
		}
	}
	return nil
}
