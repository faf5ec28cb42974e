package mlit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/mlit-mcp/mlit-mcp/internal/cache"
	"github.com/mlit-mcp/mlit-mcp/internal/logging"
)

const (
	// DefaultAPIKeyHeader 是 MLIT API 网关识别订阅密钥的请求头。
	DefaultAPIKeyHeader = "Ocp-Apim-Subscription-Key"
	defaultTimeout      = 15 * time.Second
	maxErrorBodyBytes   = 512
	userAgent           = "mlit-mcp"
)

// Options 描述 Client 的依赖与策略，JSONCache 与 FileCache 必填。
type Options struct {
	BaseURL        string
	APIKey         string
	APIKeyHeader   string
	HTTPClient     *http.Client
	JSONCache      *cache.MemoryCache
	FileCache      *cache.FileCache
	Logger         logrus.FieldLogger
	Retry          RetryPolicy
	MaxConcurrency int
	// DedupeInflight 开启后，同一缓存键的并发未命中只会发出一次上游请求。
	DedupeInflight bool
}

// Request 是一次 Fetch 的输入。Format 为空时按 json 处理。
type Request struct {
	Endpoint     string
	Params       map[string]any
	Format       string
	ForceRefresh bool
}

// FetchResult 中 Data 与 FilePath 恰有一个非空，由响应格式决定。
// FromCache 为 true 当且仅当本次调用没有发出上游请求。
type FetchResult struct {
	Data      json.RawMessage `json:"data,omitempty"`
	FilePath  string          `json:"filePath,omitempty"`
	FromCache bool            `json:"fromCache"`
}

// Client 在进程内共享，负责缓存查找、重试与统计。
type Client struct {
	base       *url.URL
	headers    http.Header
	httpClient *http.Client
	jsonCache  *cache.MemoryCache
	fileCache  *cache.FileCache
	logger     logrus.FieldLogger
	retry      RetryPolicy
	sem        *semaphore.Weighted
	group      *singleflight.Group
	stats      statsRecorder
}

// NewClient 校验配置并构造 Client；请求头在此处一次性确定。
func NewClient(opts Options) (*Client, error) {
	if opts.JSONCache == nil || opts.FileCache == nil {
		return nil, errors.New("mlit client requires both cache tiers")
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("mlit client requires an API key")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url scheme %q", base.Scheme)
	}

	headerName := opts.APIKeyHeader
	if headerName == "" {
		headerName = DefaultAPIKeyHeader
	}
	headers := make(http.Header)
	headers.Set(headerName, opts.APIKey)
	headers.Set("Accept-Encoding", "gzip")
	headers.Set("User-Agent", userAgent)

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	c := &Client{
		base:       base,
		headers:    headers,
		httpClient: httpClient,
		jsonCache:  opts.JSONCache,
		fileCache:  opts.FileCache,
		logger:     logger,
		retry:      opts.Retry.withDefaults(),
	}
	if opts.MaxConcurrency > 0 {
		c.sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}
	if opts.DedupeInflight {
		c.group = &singleflight.Group{}
	}
	return c, nil
}

// Fetch 先查缓存，未命中或强制刷新时调用上游并写回对应缓存层。
// 每次调用都计入 totalRequests，包括参数不合法而被拒绝的调用。
func (c *Client) Fetch(ctx context.Context, req Request) (FetchResult, error) {
	c.stats.request()
	format, err := ParseFormat(req.Format)
	if err != nil {
		return FetchResult{}, err
	}
	if err := checkEndpoint(req.Endpoint); err != nil {
		return FetchResult{}, err
	}
	params := compactParams(req.Params)
	query, err := encodeParams(params)
	if err != nil {
		return FetchResult{}, err
	}
	key, err := cache.Key(req.Endpoint, params, format.String())
	if err != nil {
		return FetchResult{}, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	logger := c.logger.WithFields(logging.FetchFields(req.Endpoint, format.String(), uuid.NewString()))
	logger.WithField("force_refresh", req.ForceRefresh).Infof("Fetching %s", req.Endpoint)

	if !req.ForceRefresh {
		if result, ok := c.lookup(format, key); ok {
			c.stats.hit()
			logger.WithField("cache_hit", true).Info("Cache hit")
			return result, nil
		}
	}
	c.stats.miss()
	logger.WithField("cache_hit", false).Info("Cache miss")

	if c.group == nil || req.ForceRefresh {
		result, err := c.populate(ctx, logger, req.Endpoint, query, format, key)
		return c.finish(logger, result, err)
	}
	return c.populateShared(ctx, logger, req.Endpoint, query, format, key)
}

// populateShared 让同一缓存键的并发未命中共用一次上游调用。
// 共享调用不随任何一个调用者取消，单次尝试仍受 http.Client 超时约束；
// 每个调用者只等待到自己的 ctx 结束为止。
func (c *Client) populateShared(ctx context.Context, logger logrus.FieldLogger, endpoint string, query url.Values, format Format, key string) (FetchResult, error) {
	leader := false
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		leader = true
		return c.populate(shared, logger, endpoint, query, format, key)
	})

	select {
	case <-ctx.Done():
		err := fmt.Errorf("%s: request cancelled: %w", endpoint, ctx.Err())
		return c.finish(logger, FetchResult{}, &upstreamError{err: err})
	case res := <-ch:
		if res.Err != nil {
			return c.finish(logger, FetchResult{}, res.Err)
		}
		result := res.Val.(FetchResult)
		result.FromCache = !leader
		return result, nil
	}
}

// finish 为上游调用失败计数并记录日志，其余错误原样返回。
func (c *Client) finish(logger logrus.FieldLogger, result FetchResult, err error) (FetchResult, error) {
	if err == nil {
		return result, nil
	}
	var upstream *upstreamError
	if errors.As(err, &upstream) {
		c.stats.apiError()
		logger.WithError(upstream.err).Error("Request failed")
		return FetchResult{}, upstream.err
	}
	return FetchResult{}, err
}

// Stats 返回计数快照。
func (c *Client) Stats() Stats {
	return c.stats.snapshot()
}

// ClearCache 清空两级缓存并归零全部计数。
func (c *Client) ClearCache() {
	c.stats.reset(func() {
		c.jsonCache.Clear()
		c.fileCache.Clear()
	})
	c.logger.WithField("action", "cache_clear").Info("cache cleared")
}

// CacheDir 返回文件缓存目录，供资源读取做路径约束。
func (c *Client) CacheDir() string {
	return c.fileCache.Dir()
}

func (c *Client) lookup(format Format, key string) (FetchResult, bool) {
	if !format.IsJSON() {
		path, ok := c.fileCache.Get(key)
		if !ok {
			return FetchResult{}, false
		}
		return FetchResult{FilePath: path, FromCache: true}, true
	}

	value, ok := c.jsonCache.Get(key)
	if !ok {
		return FetchResult{}, false
	}
	var data json.RawMessage
	switch v := value.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = json.RawMessage(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return FetchResult{}, false
		}
		data = encoded
	}
	return FetchResult{Data: data, FromCache: true}, true
}

// populate 调用上游并写回缓存。上游调用失败以 upstreamError 返回。
func (c *Client) populate(ctx context.Context, logger logrus.FieldLogger, endpoint string, query url.Values, format Format, key string) (FetchResult, error) {
	body, err := c.send(ctx, logger, endpoint, query)
	if err != nil {
		return FetchResult{}, &upstreamError{err: err}
	}

	if format.IsJSON() {
		if !json.Valid(body) {
			return FetchResult{}, fmt.Errorf("%s: %w", endpoint, ErrInvalidJSON)
		}
		data := json.RawMessage(body)
		c.jsonCache.Set(key, data)
		return FetchResult{Data: data}, nil
	}

	path, err := c.fileCache.Set(key, body, format.Suffix())
	if err != nil {
		return FetchResult{}, fmt.Errorf("写入文件缓存失败: %w", err)
	}
	return FetchResult{FilePath: path}, nil
}

// send 在重试预算内执行 GET；退避期间取消 ctx 会立即返回。
func (c *Client) send(ctx context.Context, logger logrus.FieldLogger, endpoint string, query url.Values) ([]byte, error) {
	target, err := c.resolve(endpoint, query)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		body, err := c.attempt(ctx, endpoint, target)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: request cancelled: %w", endpoint, ctxErr)
		}
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == c.retry.MaxAttempts {
			break
		}

		delay := c.retry.Backoff(attempt)
		logger.WithFields(logrus.Fields{
			"attempt": attempt,
			"status":  statusOf(err),
			"backoff": delay.String(),
		}).WithError(err).Warn("retrying upstream request")
		if err := sleepContext(ctx, delay); err != nil {
			return nil, fmt.Errorf("%s: retry cancelled during backoff: %w", endpoint, err)
		}
	}
	return nil, fmt.Errorf("%s: gave up after %d attempts: %w", endpoint, c.retry.MaxAttempts, lastErr)
}

func (c *Client) attempt(ctx context.Context, endpoint, target string) ([]byte, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.sem.Release(1)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), maxErrorBodyBytes),
			Retryable:  IsRetryableStatus(resp.StatusCode),
		}
	}
	return body, nil
}

// resolve 将 endpoint 拼接到 BaseURL 并附加查询参数。
func (c *Client) resolve(endpoint string, query url.Values) (string, error) {
	target := c.base.JoinPath(strings.TrimPrefix(endpoint, "/"))
	if target.Host != c.base.Host || target.Scheme != c.base.Scheme {
		return "", fmt.Errorf("%w: %s", ErrInvalidEndpoint, endpoint)
	}
	merged := target.Query()
	for name, values := range query {
		for _, value := range values {
			merged.Add(name, value)
		}
	}
	target.RawQuery = merged.Encode()
	return target.String(), nil
}

// checkEndpoint 只接受数据集标识这类相对路径，订阅密钥不会发往 BaseURL 以外的主机。
func checkEndpoint(endpoint string) error {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" || trimmed != endpoint {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	if strings.ContainsAny(endpoint, "?#\\") || strings.Contains(endpoint, "//") || strings.Contains(endpoint, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	if parsed, err := url.Parse(endpoint); err != nil || parsed.IsAbs() || parsed.Host != "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

// statusOf 返回错误携带的 HTTP 状态码，传输层错误返回 0。
func statusOf(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
