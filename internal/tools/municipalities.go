package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

const datasetMunicipalities = "XIT002"

// ErrNoMunicipalities 表示上游没有返回任何可识别的市区町村。
var ErrNoMunicipalities = errors.New("MLIT API returned no municipalities for the provided prefecture code")

// Municipality 是归一化后的市区町村条目。
type Municipality struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// MunicipalitiesResult 是 mlit.list_municipalities 的返回值。
type MunicipalitiesResult struct {
	PrefectureCode string         `json:"prefectureCode"`
	Municipalities []Municipality `json:"municipalities"`
	Meta           Meta           `json:"meta"`
}

type municipalitiesArgs struct {
	PrefectureCode string `json:"prefectureCode"`
	Lang           string `json:"lang"`
	ForceRefresh   bool   `json:"forceRefresh"`
}

// ListMunicipalities 查询都道府县下的市区町村列表。
type ListMunicipalities struct {
	fetcher Fetcher
}

// NewListMunicipalities 创建 mlit.list_municipalities 工具。
func NewListMunicipalities(fetcher Fetcher) *ListMunicipalities {
	return &ListMunicipalities{fetcher: fetcher}
}

func (t *ListMunicipalities) Name() string { return "mlit.list_municipalities" }

func (t *ListMunicipalities) Description() string {
	return "Return the list of municipalities within the specified prefecture using MLIT dataset XIT002."
}

func (t *ListMunicipalities) InputSchema() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "prefectureCode": {"type": "string", "description": "Two digit prefecture code, e.g. '13' for Tokyo", "pattern": "^[0-9]{2}$"},
    "lang": {"type": "string", "enum": ["ja", "en"], "default": "ja"},
    "forceRefresh": {"type": "boolean", "default": false}
  },
  "required": ["prefectureCode"],
  "additionalProperties": false
}`)
}

func (t *ListMunicipalities) Invoke(ctx context.Context, raw json.RawMessage) (any, error) {
	var args municipalitiesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(args.PrefectureCode)
	if len(code) != 2 || !isDigits(code) {
		return nil, invalidArg("prefectureCode", "must be a 2-digit numeric string")
	}
	lang := strings.ToLower(strings.TrimSpace(args.Lang))
	if lang == "" {
		lang = "ja"
	}
	if lang != "ja" && lang != "en" {
		return nil, invalidArg("lang", "must be either 'ja' or 'en'")
	}

	result, err := t.fetcher.Fetch(ctx, mlit.Request{
		Endpoint:     datasetMunicipalities,
		Params:       map[string]any{"area": code, "lang": lang},
		Format:       string(mlit.FormatJSON),
		ForceRefresh: args.ForceRefresh,
	})
	if err != nil {
		return nil, err
	}

	municipalities, err := normalizeMunicipalities(result.Data)
	if err != nil {
		return nil, err
	}
	return MunicipalitiesResult{
		PrefectureCode: code,
		Municipalities: municipalities,
		Meta:           newMeta(datasetMunicipalities, result.FromCache, ""),
	}, nil
}

func normalizeMunicipalities(data json.RawMessage) ([]Municipality, error) {
	payload, err := decodeData(data)
	if err != nil {
		return nil, err
	}
	var out []Municipality
	for _, item := range listFromEnvelope(payload, "data", "municipalities", "items", "result") {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		code := firstString(entry, "cityCode", "MunicipalityCode", "id", "code")
		name := firstString(entry, "cityName", "Municipality", "name")
		if len(code) != 5 || name == "" {
			continue
		}
		out = append(out, Municipality{Code: code, Name: name})
	}
	if len(out) == 0 {
		return nil, ErrNoMunicipalities
	}
	return out, nil
}

func firstString(entry map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := entry[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case nil:
		default:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
