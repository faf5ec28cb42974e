package cache

import (
	"sync"
	"time"
)

// Clock 返回单调不减的时间戳。缓存只比较 Clock 的差值，不关心其起点。
type Clock func() time.Duration

var processStart = time.Now()

// MonotonicClock 基于进程启动时刻的单调时钟，不受系统时间调整影响。
func MonotonicClock() time.Duration {
	return time.Since(processStart)
}

func clockOrDefault(clock Clock) Clock {
	if clock == nil {
		return MonotonicClock
	}
	return clock
}

// ManualClock 是可手动推进的时钟，供测试注入。
type ManualClock struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManualClock 创建起点为 start 的手动时钟。
func NewManualClock(start time.Duration) *ManualClock {
	return &ManualClock{now: start}
}

// Now 满足 Clock 签名，可直接传入 c.Now。
func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 将时钟向前推进 d；负值会被忽略以保持单调。
func (c *ManualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}
