package tools

import (
	"context"
	"encoding/json"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

const emptyObjectSchema = `{"type": "object", "properties": {}, "additionalProperties": false}`

// StatsResult 包装统计快照。
type StatsResult struct {
	Stats mlit.Stats `json:"stats"`
}

// ServerStats 返回 Fetch 的累计计数。
type ServerStats struct {
	admin Admin
}

// NewServerStats 创建 mlit.get_server_stats 工具。
func NewServerStats(admin Admin) *ServerStats {
	return &ServerStats{admin: admin}
}

func (t *ServerStats) Name() string { return "mlit.get_server_stats" }

func (t *ServerStats) Description() string {
	return "Return request, cache hit/miss and API error counters of the MLIT client."
}

func (t *ServerStats) InputSchema() json.RawMessage { return json.RawMessage(emptyObjectSchema) }

func (t *ServerStats) Invoke(_ context.Context, raw json.RawMessage) (any, error) {
	if err := decodeArgs(raw, &struct{}{}); err != nil {
		return nil, err
	}
	return StatsResult{Stats: t.admin.Stats()}, nil
}

// ClearCache 清空两级缓存并归零计数。
type ClearCache struct {
	admin Admin
}

// NewClearCache 创建 mlit.clear_cache 工具。
func NewClearCache(admin Admin) *ClearCache {
	return &ClearCache{admin: admin}
}

func (t *ClearCache) Name() string { return "mlit.clear_cache" }

func (t *ClearCache) Description() string {
	return "Clear the in-memory and file caches and reset all counters."
}

func (t *ClearCache) InputSchema() json.RawMessage { return json.RawMessage(emptyObjectSchema) }

func (t *ClearCache) Invoke(_ context.Context, raw json.RawMessage) (any, error) {
	if err := decodeArgs(raw, &struct{}{}); err != nil {
		return nil, err
	}
	t.admin.ClearCache()
	return StatsResult{Stats: t.admin.Stats()}, nil
}
