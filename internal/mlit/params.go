package mlit

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// compactParams 去掉值为 nil 的参数，使缓存键与实际发出的 query 一致。
func compactParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	compact := make(map[string]any, len(params))
	for name, value := range params {
		if value != nil {
			compact[name] = value
		}
	}
	return compact
}

// encodeParams 将参数映射编码为 query string，nil 值被忽略。
func encodeParams(params map[string]any) (url.Values, error) {
	values := make(url.Values, len(params))
	for name, raw := range params {
		if raw == nil {
			continue
		}
		encoded, err := formatParam(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidParam, name, err)
		}
		values.Set(name, encoded)
	}
	return values, nil
}

func formatParam(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", raw)
	}
}

// readBody 读取响应正文，服务端返回 gzip 时自动解压。
func readBody(resp *http.Response) ([]byte, error) {
	reader := resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}
