package tools

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry 按名称保存工具，名称大小写不敏感。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register 将工具加入注册表，重复名称会返回错误。
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	key := normalizeKey(tool.Name())
	if key == "" {
		return fmt.Errorf("tool name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[key]; exists {
		return fmt.Errorf("tool %s already registered", key)
	}
	r.tools[key] = tool
	return nil
}

// MustRegister 在注册失败时 panic，适合启动阶段调用。
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Resolve 返回指定名称的工具。
func (r *Registry) Resolve(name string) (Tool, bool) {
	key := normalizeKey(name)
	if key == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[key]
	return tool, ok
}

// List 返回按名称排序的工具列表。
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.tools) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.tools))
	for key := range r.tools {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Tool, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.tools[key])
	}
	return result
}

// NewDefaultRegistry 注册全部内置工具。
func NewDefaultRegistry(fetcher Fetcher, admin Admin, resources *ResourceStore) (*Registry, error) {
	registry := NewRegistry()
	builtins := []Tool{
		NewListMunicipalities(fetcher),
		NewFetchTransactions(fetcher),
		NewFetchLandPricePoints(fetcher),
		NewFetchTransactionPoints(fetcher, resources),
		NewFetchUrbanPlanningZones(fetcher, resources),
		NewFetchSchoolDistricts(fetcher, resources),
		NewServerStats(admin),
		NewClearCache(admin),
	}
	for _, tool := range builtins {
		if err := registry.Register(tool); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
