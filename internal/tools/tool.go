package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

// DataSource 标注所有数据集的来源站点。
const DataSource = "reinfolib.mlit.go.jp"

// ErrInvalidArguments 表示工具参数无法解码或未通过校验。
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Fetcher 是工具层唯一依赖的拉取契约。
type Fetcher interface {
	Fetch(ctx context.Context, req mlit.Request) (mlit.FetchResult, error)
}

// Admin 暴露统计与缓存管理操作。
type Admin interface {
	Stats() mlit.Stats
	ClearCache()
}

// Tool 描述一个可被 tools/call 调用的工具。
type Tool interface {
	Name() string
	Description() string
	InputSchema() json.RawMessage
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}

// Meta 是各工具响应中的公共元信息。
type Meta struct {
	Dataset  string `json:"dataset"`
	Source   string `json:"source"`
	CacheHit bool   `json:"cacheHit"`
	Format   string `json:"format,omitempty"`
}

func newMeta(dataset string, cacheHit bool, format string) Meta {
	return Meta{Dataset: dataset, Source: DataSource, CacheHit: cacheHit, Format: format}
}

// decodeArgs 严格解码参数：未知字段会被拒绝，空参数视为 {}。
func decodeArgs(raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func invalidArg(field, reason string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidArguments, field, fmt.Sprintf(reason, args...))
}

func checkRange(field string, value, low, high int) error {
	if value < low || value > high {
		return invalidArg(field, "must be between %d and %d, got %d", low, high, value)
	}
	return nil
}

// listFromEnvelope 从 {"data": [...]} 一类的包装结构中取出记录列表。
func listFromEnvelope(payload any, keys ...string) []any {
	switch v := payload.(type) {
	case []any:
		return v
	case map[string]any:
		for _, key := range keys {
			if items, ok := v[key].([]any); ok {
				return items
			}
		}
	}
	return nil
}

func decodeData(data json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode upstream payload: %w", err)
	}
	return payload, nil
}
