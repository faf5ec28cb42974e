package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

const (
	datasetTransactionPoints = "XPT001"
	// ResourceThresholdBytes 以上的 GeoJSON 以资源 URI 返回。
	ResourceThresholdBytes = 1 << 20
)

// TileMeta 在公共元信息之外记录瓦片正文大小与返回方式。
type TileMeta struct {
	Meta
	SizeBytes  int64 `json:"sizeBytes"`
	IsResource bool  `json:"isResource"`
}

// TransactionPointsResult 是 mlit.fetch_transaction_points 的返回值。
type TransactionPointsResult struct {
	GeoJSON     json.RawMessage `json:"geojson,omitempty"`
	ResourceURI string          `json:"resourceUri,omitempty"`
	Meta        TileMeta        `json:"meta"`
}

type transactionPointsArgs struct {
	Z            int    `json:"z"`
	X            int    `json:"x"`
	Y            int    `json:"y"`
	From         string `json:"from"`
	To           string `json:"to"`
	ForceRefresh bool   `json:"forceRefresh"`
}

// FetchTransactionPoints 拉取成交点位 GeoJSON 瓦片，大文件改为资源引用。
type FetchTransactionPoints struct {
	fetcher   Fetcher
	resources *ResourceStore
}

// NewFetchTransactionPoints 创建 mlit.fetch_transaction_points 工具。resources 为空时总是内联返回。
func NewFetchTransactionPoints(fetcher Fetcher, resources *ResourceStore) *FetchTransactionPoints {
	return &FetchTransactionPoints{fetcher: fetcher, resources: resources}
}

func (t *FetchTransactionPoints) Name() string { return "mlit.fetch_transaction_points" }

func (t *FetchTransactionPoints) Description() string {
	return "Fetch real estate transaction points as GeoJSON from MLIT dataset XPT001. Responses over 1MB are returned as resource URIs."
}

func (t *FetchTransactionPoints) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "z": {"type": "integer", "minimum": 11, "maximum": 15},
    "x": {"type": "integer", "minimum": 0},
    "y": {"type": "integer", "minimum": 0},
    "from": {"type": "string", "description": "Start quarter as YYYYQ, e.g. 20231", "pattern": "^[0-9]{4}[1-4]$"},
    "to": {"type": "string", "description": "End quarter as YYYYQ, e.g. 20244", "pattern": "^[0-9]{4}[1-4]$"},
    "forceRefresh": {"type": "boolean", "default": false}
  },
  "required": ["z", "x", "y", "from", "to"],
  "additionalProperties": false
}`)
}

func (t *FetchTransactionPoints) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args transactionPointsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := checkRange("z", args.Z, 11, 15); err != nil {
		return nil, err
	}
	if err := checkTile(args.X, args.Y); err != nil {
		return nil, err
	}
	from, err := parseQuarter("from", args.From)
	if err != nil {
		return nil, err
	}
	to, err := parseQuarter("to", args.To)
	if err != nil {
		return nil, err
	}
	if to < from {
		return nil, invalidArg("to", "(%s) must not precede from (%s)", args.To, args.From)
	}

	result, err := t.fetcher.Fetch(ctx, mlit.Request{
		Endpoint: datasetTransactionPoints,
		Params: map[string]any{
			"response_format": string(mlit.FormatGeoJSON),
			"z":               args.Z,
			"x":               args.X,
			"y":               args.Y,
			"from":            args.From,
			"to":              args.To,
		},
		Format:       string(mlit.FormatGeoJSON),
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
		Meta:      newMeta(datasetTransactionPoints, result.FromCache, string(mlit.FormatGeoJSON)),
		SizeBytes: info.Size(),
	}

	if info.Size() > ResourceThresholdBytes && t.resources != nil {
		uri, err := t.resources.URIFor(kindTransactionPoints, result.FilePath)
		if err != nil {
			return nil, err
		}
		meta.IsResource = true
		return TransactionPointsResult{ResourceURI: uri, Meta: meta}, nil
	}

	content, err := os.ReadFile(result.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read cached tile: %w", err)
	}
	if !json.Valid(content) {
		return nil, fmt.Errorf("%s: %w", datasetTransactionPoints, mlit.ErrInvalidJSON)
	}
	return TransactionPointsResult{GeoJSON: content, Meta: meta}, nil
}

// parseQuarter 校验 YYYYQ 格式并返回可比较的整数。
func parseQuarter(field, raw string) (int, error) {
	if len(raw) != 5 || !isDigits(raw) || raw[4] < '1' || raw[4] > '4' {
		return 0, invalidArg(field, "must be a YYYYQ quarter such as 20231, got %q", raw)
	}
	value, _ := strconv.Atoi(raw)
	return value, nil
}
