package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Key 将 endpoint/params/format 序列化为稳定的字符串。encoding/json 对 map 键排序，
// 因此参数的插入顺序不会影响结果；任一字段不同都会得到不同的 key。
func Key(endpoint string, params map[string]any, format string) (string, error) {
	if params == nil {
		params = map[string]any{}
	}
	payload := map[string]any{
		"endpoint": endpoint,
		"params":   params,
		"format":   format,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
