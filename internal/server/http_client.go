package server

import (
	"net"
	"net/http"
	"time"

	"github.com/mlit-mcp/mlit-mcp/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回访问 MLIT API 的共享 http.Client。
// 单次请求受 HTTPTimeout 约束；每个 host 的连接数不超过 MaxConcurrency。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 15 * time.Second
	transport := defaultTransport.Clone()
	if cfg != nil {
		if d := cfg.Upstream.HTTPTimeout.DurationValue(); d > 0 {
			timeout = d
		}
		if n := cfg.Upstream.MaxConcurrency; n > 0 {
			transport.MaxConnsPerHost = n
			transport.MaxIdleConnsPerHost = n
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
