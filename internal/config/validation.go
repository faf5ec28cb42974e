package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	u := c.Upstream
	if strings.TrimSpace(u.APIKey) == "" {
		return newFieldError("APIKey", "不能为空（设置 MLIT_API_KEY）")
	}
	if strings.TrimSpace(u.APIKeyHeader) == "" {
		return newFieldError("APIKeyHeader", "不能为空")
	}
	if err := validateBaseURL(u.BaseURL); err != nil {
		return fmt.Errorf("BaseURL: %w", err)
	}
	if u.HTTPTimeout.DurationValue() <= 0 {
		return newFieldError("HTTPTimeout", "必须大于 0")
	}
	if u.MaxConcurrency <= 0 {
		return newFieldError("MaxConcurrency", "必须大于 0")
	}
	if u.MaxAttempts <= 0 {
		return newFieldError("MaxAttempts", "必须大于 0")
	}
	if u.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("InitialBackoff", "必须大于 0")
	}
	if u.MaxBackoff.DurationValue() < u.InitialBackoff.DurationValue() {
		return newFieldError("MaxBackoff", "不能小于 InitialBackoff")
	}

	cc := c.Cache
	if strings.TrimSpace(cc.CacheDir) == "" {
		return newFieldError("CacheDir", "不能为空")
	}
	if cc.JSONCacheSize <= 0 {
		return newFieldError("JSONCacheSize", "必须大于 0")
	}
	if cc.JSONCacheTTL.DurationValue() <= 0 {
		return newFieldError("JSONCacheTTL", "必须大于 0")
	}
	if cc.FileCacheTTL.DurationValue() <= 0 {
		return newFieldError("FileCacheTTL", "必须大于 0")
	}
	if cc.PurgeInterval.DurationValue() < 0 {
		return newFieldError("PurgeInterval", "不能为负数")
	}

	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("缺少 BaseURL")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("无效 URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，当前为 %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("缺少 Host")
	}
	return nil
}
