package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mlit-mcp/mlit-mcp/internal/mlit"
)

// fakeFetcher 记录收到的请求，并按 endpoint 返回预置结果。
type fakeFetcher struct {
	mu       sync.Mutex
	requests []mlit.Request
	respond  func(req mlit.Request) (mlit.FetchResult, error)
	stats    mlit.Stats
	cleared  int
}

func (f *fakeFetcher) Fetch(_ context.Context, req mlit.Request) (mlit.FetchResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.stats.TotalRequests++
	f.mu.Unlock()
	return f.respond(req)
}

func (f *fakeFetcher) Stats() mlit.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeFetcher) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	f.stats = mlit.Stats{}
}

func (f *fakeFetcher) Requests() []mlit.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mlit.Request(nil), f.requests...)
}

func jsonReply(body string, fromCache bool) func(mlit.Request) (mlit.FetchResult, error) {
	return func(mlit.Request) (mlit.FetchResult, error) {
		return mlit.FetchResult{Data: json.RawMessage(body), FromCache: fromCache}, nil
	}
}

func writeCachedFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write cached file: %v", err)
	}
	return path
}

func fileReply(path string, fromCache bool) func(mlit.Request) (mlit.FetchResult, error) {
	return func(mlit.Request) (mlit.FetchResult, error) {
		return mlit.FetchResult{FilePath: path, FromCache: fromCache}, nil
	}
}
