package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// MemoryCache 是带 TTL 的 LRU 缓存，用于存放体积较小的 JSON 响应。
// 链表尾部是最近访问/写入的条目，超出容量时从头部开始淘汰。
type MemoryCache struct {
	maxSize int
	ttl     time.Duration
	clock   Clock

	mu    sync.Mutex
	order *list.List
	items map[string]*list.Element
}

// NewMemoryCache 构造内存缓存；maxSize 与 ttl 必须为正数，clock 为空时使用 MonotonicClock。
func NewMemoryCache(maxSize int, ttl time.Duration, clock Clock) (*MemoryCache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: maxSize must be positive, got %d", ErrInvalidConfig, maxSize)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, ttl)
	}
	return &MemoryCache{
		maxSize: maxSize,
		ttl:     ttl,
		clock:   clockOrDefault(clock),
		order:   list.New(),
		items:   make(map[string]*list.Element, maxSize),
	}, nil
}

// Get 返回未过期的缓存值并将其提升为最近使用；过期条目在读取时被删除。
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*memoryEntry)
	if expired(c.clock(), entry.expiresAt) {
		c.removeElement(elem)
		return nil, false
	}
	c.order.MoveToBack(elem)
	return entry.value, true
}

// Set 写入或替换条目，过期时间为 clock()+ttl，随后按 LRU 淘汰直到不超过容量。
func (c *MemoryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &memoryEntry{key: key, value: value, expiresAt: c.clock() + c.ttl}
	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.order.MoveToBack(elem)
	} else {
		c.items[key] = c.order.PushBack(entry)
	}

	for c.order.Len() > c.maxSize {
		c.removeElement(c.order.Front())
	}
}

// Clear 无条件清空所有条目。
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.items = make(map[string]*list.Element, c.maxSize)
	c.mu.Unlock()
}

// Len 返回当前条目数（包含尚未被读取清理的过期条目）。
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// caller must hold c.mu
func (c *MemoryCache) removeElement(elem *list.Element) {
	if elem == nil {
		return
	}
	entry := c.order.Remove(elem).(*memoryEntry)
	delete(c.items, entry.key)
}
