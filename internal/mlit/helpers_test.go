package mlit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mlit-mcp/mlit-mcp/internal/cache"
)

type scriptedReply struct {
	status int
	body   string
}

// upstreamStub 记录请求次数，并按脚本依次返回状态码，脚本耗尽后重复最后一项。
type upstreamStub struct {
	server  *httptest.Server
	calls   atomic.Int64
	mu      sync.Mutex
	script  []scriptedReply
	lastReq *http.Request
	gate    chan struct{}
}

func newUpstreamStub(t *testing.T, script ...scriptedReply) *upstreamStub {
	t.Helper()
	stub := &upstreamStub{script: script}
	stub.server = httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) serve(w http.ResponseWriter, r *http.Request) {
	n := s.calls.Add(1)
	s.mu.Lock()
	s.lastReq = r.Clone(r.Context())
	idx := int(n) - 1
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	reply := s.script[idx]
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	w.WriteHeader(reply.status)
	_, _ = w.Write([]byte(reply.body))
}

func (s *upstreamStub) Calls() int {
	return int(s.calls.Load())
}

func (s *upstreamStub) LastRequest() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, InitialBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond}
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Options)) *Client {
	t.Helper()
	jsonCache, err := cache.NewMemoryCache(16, time.Hour, nil)
	if err != nil {
		t.Fatalf("create json cache: %v", err)
	}
	fileCache, err := cache.NewFileCache(cache.FileCacheOptions{Directory: t.TempDir(), TTL: time.Hour})
	if err != nil {
		t.Fatalf("create file cache: %v", err)
	}
	opts := Options{
		BaseURL:   baseURL + "/ex-api/external/",
		APIKey:    "secret-key",
		JSONCache: jsonCache,
		FileCache: fileCache,
		Retry:     fastRetry(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}
