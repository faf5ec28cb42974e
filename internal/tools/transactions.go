package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

const (
	datasetTransactions = "XIT001"
	minTransactionYear  = 2005
	maxTransactionYear  = 2030
	// defaultPriceClassification 对应不動産取引価格情報。
	defaultPriceClassification = "01"
)

// TransactionsResult 是 mlit.fetch_transactions 的返回值。
type TransactionsResult struct {
	Data []any `json:"data"`
	Meta Meta  `json:"meta"`
}

type transactionsArgs struct {
	FromYear       int    `json:"fromYear"`
	ToYear         int    `json:"toYear"`
	Area           string `json:"area"`
	Classification string `json:"classification"`
	Format         string `json:"format"`
	ForceRefresh   bool   `json:"forceRefresh"`
}

// FetchTransactions 按年份逐次拉取 XIT001 并合并记录。
type FetchTransactions struct {
	fetcher Fetcher
}

// NewFetchTransactions 创建 mlit.fetch_transactions 工具。
func NewFetchTransactions(fetcher Fetcher) *FetchTransactions {
	return &FetchTransactions{fetcher: fetcher}
}

func (t *FetchTransactions) Name() string { return "mlit.fetch_transactions" }

func (t *FetchTransactions) Description() string {
	return "Fetch real estate transaction records from MLIT dataset XIT001, one request per year in the range."
}

func (t *FetchTransactions) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "fromYear": {"type": "integer", "minimum": 2005, "maximum": 2030},
    "toYear": {"type": "integer", "minimum": 2005, "maximum": 2030},
    "area": {"type": "string", "description": "Prefecture or city code"},
    "classification": {"type": "string", "description": "Transaction classification code"},
    "format": {"type": "string", "enum": ["json", "table"], "default": "json"},
    "forceRefresh": {"type": "boolean", "default": false}
  },
  "required": ["fromYear", "toYear", "area"],
  "additionalProperties": false
}`)
}

func (t *FetchTransactions) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args transactionsArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if err := checkRange("fromYear", args.FromYear, minTransactionYear, maxTransactionYear); err != nil {
		return nil, err
	}
	if err := checkRange("toYear", args.ToYear, minTransactionYear, maxTransactionYear); err != nil {
		return nil, err
	}
	if args.ToYear < args.FromYear {
		return nil, invalidArg("toYear", "(%d) must be >= fromYear (%d)", args.ToYear, args.FromYear)
	}
	area := strings.TrimSpace(args.Area)
	if area == "" {
		return nil, invalidArg("area", "is required")
	}
	format := args.Format
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "table" {
		return nil, invalidArg("format", "must be 'json' or 'table'")
	}

	records := make([]any, 0)
	allCached := true
	for year := args.FromYear; year <= args.ToYear; year++ {
		params := map[string]any{"year": year, "area": area}
		if args.Classification != "" {
			params["classification"] = args.Classification
		} else {
			params["priceClassification"] = defaultPriceClassification
		}

		result, err := t.fetcher.Fetch(ctx, mlit.Request{
			Endpoint:     datasetTransactions,
			Params:       params,
			Format:       string(mlit.FormatJSON),
			ForceRefresh: args.ForceRefresh,
		})
		if err != nil {
			return nil, err
		}
		allCached = allCached && result.FromCache

		payload, err := decodeData(result.Data)
		if err != nil {
			return nil, err
		}
		records = appendRecords(records, payload)
	}

	return TransactionsResult{
		Data: records,
		Meta: newMeta(datasetTransactions, allCached, format),
	}, nil
}

// appendRecords 展开 {"data": [...]} 包装；其它对象按单条记录追加。
func appendRecords(records []any, payload any) []any {
	switch v := payload.(type) {
	case []any:
		return append(records, v...)
	case map[string]any:
		if items, ok := v["data"].([]any); ok {
			return append(records, items...)
		}
		return append(records, v)
	}
	return records
}
