package tools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

const datasetLandPrice = "XPT002"

// LandPriceResult 是 mlit.fetch_land_price_points 的返回值，GeoJSON 与 PBF 二选一。
type LandPriceResult struct {
	GeoJSON   json.RawMessage `json:"geojson,omitempty"`
	PBFBase64 string          `json:"pbfBase64,omitempty"`
	Meta      Meta            `json:"meta"`
}

type landPriceArgs struct {
	Z              int    `json:"z"`
	X              int    `json:"x"`
	Y              int    `json:"y"`
	Year           int    `json:"year"`
	ResponseFormat string `json:"responseFormat"`
	ForceRefresh   bool   `json:"forceRefresh"`
}

// FetchLandPricePoints 拉取地価公示点位瓦片。
type FetchLandPricePoints struct {
	fetcher Fetcher
}

// NewFetchLandPricePoints 创建 mlit.fetch_land_price_points 工具。
func NewFetchLandPricePoints(fetcher Fetcher) *FetchLandPricePoints {
	return &FetchLandPricePoints{fetcher: fetcher}
}

func (t *FetchLandPricePoints) Name() string { return "mlit.fetch_land_price_points" }

func (t *FetchLandPricePoints) Description() string {
	return "Fetch land price point tiles from MLIT dataset XPT002 as GeoJSON or base64-encoded PBF."
}

func (t *FetchLandPricePoints) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "z": {"type": "integer", "minimum": 13, "maximum": 15},
    "x": {"type": "integer", "minimum": 0},
    "y": {"type": "integer", "minimum": 0},
    "year": {"type": "integer", "minimum": 1995, "maximum": 2024},
    "responseFormat": {"type": "string", "enum": ["geojson", "pbf"], "default": "geojson"},
    "forceRefresh": {"type": "boolean", "default": false}
  },
  "required": ["z", "x", "y", "year"],
  "additionalProperties": false
}`)
}

func (t *FetchLandPricePoints) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args landPriceArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := checkRange("z", args.Z, 13, 15); err != nil {
		return nil, err
	}
	if err := checkTile(args.X, args.Y); err != nil {
		return nil, err
	}
	if err := checkRange("year", args.Year, 1995, 2024); err != nil {
		return nil, err
	}
	format, err := tileFormat(args.ResponseFormat)
	if err != nil {
		return nil, err
	}

	result, err := t.fetcher.Fetch(ctx, mlit.Request{
		Endpoint: datasetLandPrice,
		Params: map[string]any{
			"response_format": format.String(),
			"z":               args.Z,
			"x":               args.X,
			"y":               args.Y,
			"year":            args.Year,
		},
		Format:       format.String(),
		ForceRefresh: args.ForceRefresh,
	})
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(result.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read cached tile: %w", err)
	}
	out := LandPriceResult{Meta: newMeta(datasetLandPrice, result.FromCache, format.String())}
	if format == mlit.FormatPBF {
		out.PBFBase64 = base64.StdEncoding.EncodeToString(content)
		return out, nil
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("%s: %w", datasetLandPrice, mlit.ErrInvalidJSON)
	}
	out.GeoJSON = content
	return out, nil
}

func checkTile(x, y int) error {
	if x < 0 {
		return invalidArg("x", "must be >= 0, got %d", x)
	}
	if y < 0 {
		return invalidArg("y", "must be >= 0, got %d", y)
	}
	return nil
}

// tileFormat 只接受 geojson 与 pbf，空值默认 geojson。
func tileFormat(raw string) (mlit.Format, error) {
	if raw == "" {
		return mlit.FormatGeoJSON, nil
	}
	format, err := mlit.ParseFormat(raw)
	if err != nil || (format != mlit.FormatGeoJSON && format != mlit.FormatPBF) {
		return "", invalidArg("responseFormat", "must be 'geojson' or 'pbf'")
	}
	return format, nil
}
