package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// DefaultBaseURL 是 MLIT 不動産情報ライブラリ的外部 API 根地址。
const DefaultBaseURL = "https://www.reinfolib.mlit.go.jp/ex-api/external/"

// envBindings 将配置键映射到环境变量，环境变量优先于配置文件。
var envBindings = map[string][]string{
	"APIKey":         {"MLIT_API_KEY"},
	"APIKeyHeader":   {"MLIT_API_KEY_HEADER"},
	"BaseURL":        {"MLIT_BASE_URL"},
	"HTTPTimeout":    {"HTTP_TIMEOUT"},
	"MaxConcurrency": {"MAX_CONCURRENCY"},
	"MaxAttempts":    {"MLIT_MAX_ATTEMPTS"},
	"DedupeInflight": {"MLIT_DEDUPE_INFLIGHT"},
	"CacheDir":       {"MLIT_CACHE_DIR"},
	"LogLevel":       {"LOG_LEVEL"},
	"LogFilePath":    {"LOG_FILE"},
}

// Load 读取可选的配置文件并叠加环境变量，注入默认值后执行校验。path 为空时只使用环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absCache, err := filepath.Abs(cfg.Cache.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Cache.CacheDir = absCache

	return &cfg, nil
}

// LoadDotEnv 将 .env 文件中的变量写入进程环境，已存在的变量不会被覆盖。文件不存在时静默返回。
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 .env 失败: %w", err)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("解析 .env 失败: %w", err)
	}
	return nil
}

// DefaultCacheDir 返回系统临时目录下的文件缓存路径。
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "mlit_mcp_cache", "files")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("APIKeyHeader", "Ocp-Apim-Subscription-Key")
	v.SetDefault("BaseURL", DefaultBaseURL)
	v.SetDefault("HTTPTimeout", "15s")
	v.SetDefault("MaxConcurrency", 4)
	v.SetDefault("MaxAttempts", 4)
	v.SetDefault("InitialBackoff", "500ms")
	v.SetDefault("MaxBackoff", "4s")
	v.SetDefault("DedupeInflight", false)
	v.SetDefault("CacheDir", DefaultCacheDir())
	v.SetDefault("JSONCacheSize", 256)
	v.SetDefault("JSONCacheTTL", "6h")
	v.SetDefault("FileCacheTTL", "6h")
	v.SetDefault("PurgeInterval", "10m")
}

func bindEnv(v *viper.Viper) error {
	for key, names := range envBindings {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("绑定环境变量 %s 失败: %w", key, err)
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.LogLevel == "" {
		cfg.Log.LogLevel = "info"
	}
	u := &cfg.Upstream
	if u.BaseURL == "" {
		u.BaseURL = DefaultBaseURL
	}
	if u.APIKeyHeader == "" {
		u.APIKeyHeader = "Ocp-Apim-Subscription-Key"
	}
	if u.HTTPTimeout.DurationValue() == 0 {
		u.HTTPTimeout = Duration(15 * time.Second)
	}
	if u.InitialBackoff.DurationValue() == 0 {
		u.InitialBackoff = Duration(500 * time.Millisecond)
	}
	if u.MaxBackoff.DurationValue() == 0 {
		u.MaxBackoff = Duration(4 * time.Second)
	}
	if cfg.Cache.CacheDir == "" {
		cfg.Cache.CacheDir = DefaultCacheDir()
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			parsed, err := parseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
			}
			return parsed, nil
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
