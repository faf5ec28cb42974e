package mlit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat 表示请求了未登记的响应格式。
var ErrUnsupportedFormat = errors.New("unsupported response format")

// Format 是上游响应格式的封闭枚举。
type Format string

const (
	FormatJSON    Format = "json"
	FormatGeoJSON Format = "geojson"
	FormatPBF     Format = "pbf"
	FormatMVT     Format = "mvt"
	FormatBinary  Format = "bin"
)

var formatSuffixes = map[Format]string{
	FormatGeoJSON: ".geojson",
	FormatPBF:     ".pbf",
	FormatMVT:     ".mvt",
	FormatBinary:  ".bin",
}

// ParseFormat 将字符串归一化为 Format，空字符串视为 json。
func ParseFormat(raw string) (Format, error) {
	normalized := Format(strings.ToLower(strings.TrimSpace(raw)))
	if normalized == "" {
		return FormatJSON, nil
	}
	if normalized == FormatJSON {
		return normalized, nil
	}
	if _, ok := formatSuffixes[normalized]; ok {
		return normalized, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
}

// IsJSON 判断该格式是否走内存 JSON 缓存。
func (f Format) IsJSON() bool {
	return f == FormatJSON
}

// Suffix 返回文件缓存使用的扩展名；JSON 返回空串。
func (f Format) Suffix() string {
	return formatSuffixes[f]
}

func (f Format) String() string {
	return string(f)
}
