package mlit

import "sync"

// Stats 是 Fetch 调用的累计计数。
type Stats struct {
	TotalRequests int64 `json:"totalRequests"`
	CacheHits     int64 `json:"cacheHits"`
	CacheMisses   int64 `json:"cacheMisses"`
	APIErrors     int64 `json:"apiErrors"`
}

type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) request() {
	r.mu.Lock()
	r.s.TotalRequests++
	r.mu.Unlock()
}

func (r *statsRecorder) hit() {
	r.mu.Lock()
	r.s.CacheHits++
	r.mu.Unlock()
}

func (r *statsRecorder) miss() {
	r.mu.Lock()
	r.s.CacheMisses++
	r.mu.Unlock()
}

func (r *statsRecorder) apiError() {
	r.mu.Lock()
	r.s.APIErrors++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

// reset 在持有计数锁期间执行 fn，再把计数清零，使清理与归零对其它调用表现为一步完成。
func (r *statsRecorder) reset(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn != nil {
		fn()
	}
	r.s = Stats{}
}
