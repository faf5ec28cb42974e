package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m"、"1.5" 或纯整数秒值等写法。
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Duration(0), nil
	}
	if parsed, err := time.ParseDuration(raw); err == nil {
		return Duration(parsed), nil
	}
	if seconds, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(seconds * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %s", raw)
}

// LogConfig 控制日志级别与输出位置。
type LogConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
}

// UpstreamConfig 描述 MLIT API 的访问方式与重试策略。
type UpstreamConfig struct {
	APIKey         string   `mapstructure:"APIKey"`
	APIKeyHeader   string   `mapstructure:"APIKeyHeader"`
	BaseURL        string   `mapstructure:"BaseURL"`
	HTTPTimeout    Duration `mapstructure:"HTTPTimeout"`
	MaxConcurrency int      `mapstructure:"MaxConcurrency"`
	MaxAttempts    int      `mapstructure:"MaxAttempts"`
	InitialBackoff Duration `mapstructure:"InitialBackoff"`
	MaxBackoff     Duration `mapstructure:"MaxBackoff"`
	DedupeInflight bool     `mapstructure:"DedupeInflight"`
}

// CacheConfig 描述两级缓存的容量、TTL 与磁盘目录。
type CacheConfig struct {
	CacheDir      string   `mapstructure:"CacheDir"`
	JSONCacheSize int      `mapstructure:"JSONCacheSize"`
	JSONCacheTTL  Duration `mapstructure:"JSONCacheTTL"`
	FileCacheTTL  Duration `mapstructure:"FileCacheTTL"`
	PurgeInterval Duration `mapstructure:"PurgeInterval"`
}

// Config 是配置文件 + 环境变量合并后的整体结构，所有键位于顶层。
type Config struct {
	Log      LogConfig      `mapstructure:",squash"`
	Upstream UpstreamConfig `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
}

// MaskedAPIKey 返回仅保留末尾 4 位的 API Key，供日志输出。
func (u UpstreamConfig) MaskedAPIKey() string {
	key := strings.TrimSpace(u.APIKey)
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
