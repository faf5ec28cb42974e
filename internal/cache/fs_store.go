package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FileCacheOptions 描述磁盘缓存的构造参数。
type FileCacheOptions struct {
	// Directory 是缓存根目录，不存在时自动创建（含父目录）。
	Directory string
	// TTL 是每个条目的存活时间，必须为正数。
	TTL time.Duration
	// Clock 为空时使用 MonotonicClock。
	Clock Clock
	// Logger 用于记录 best-effort 清理失败，为空时丢弃日志。
	Logger logrus.FieldLogger
}

// FileCache 将二进制负载写入 <Directory>/<sha256(key)><suffix>，并在内存索引中记录过期时间。
// 索引以原始 key 为键；它是这些文件唯一的写入与删除方，因此命中时不会再校验文件内容。
type FileCache struct {
	dir    string
	ttl    time.Duration
	clock  Clock
	logger logrus.FieldLogger

	mu      sync.Mutex
	entries map[string]fileEntry

	lockMu sync.Mutex
	locks  map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewFileCache 创建目录并返回磁盘缓存实例，整个进程共享一份。
func NewFileCache(opts FileCacheOptions) (*FileCache, error) {
	if opts.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, opts.TTL)
	}
	if strings.TrimSpace(opts.Directory) == "" {
		return nil, fmt.Errorf("%w: directory required", ErrInvalidConfig)
	}

	abs, err := filepath.Abs(opts.Directory)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	return &FileCache{
		dir:     abs,
		ttl:     opts.TTL,
		clock:   clockOrDefault(opts.Clock),
		logger:  logger,
		entries: make(map[string]fileEntry),
		locks:   make(map[string]*entryLock),
	}, nil
}

// Dir 返回缓存根目录的绝对路径。
func (c *FileCache) Dir() string {
	return c.dir
}

// Set 写入 content 并登记过期时间，返回文件路径。写入采用临时文件 + rename，失败会直接返回错误。
func (c *FileCache) Set(key string, content []byte, suffix string) (string, error) {
	unlock := c.lockEntry(key)
	defer unlock()

	filePath := c.pathFor(key, suffix)
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache directory: %w", err)
	}
	if err := writeFileAtomic(filePath, content); err != nil {
		return "", fmt.Errorf("write cache file: %w", err)
	}

	c.mu.Lock()
	prev, had := c.entries[key]
	c.entries[key] = fileEntry{path: filePath, expiresAt: c.clock() + c.ttl}
	c.mu.Unlock()

	if had && prev.path != filePath {
		removeBestEffort(c.logger, prev.path)
	}
	return filePath, nil
}

// Get 返回仍然有效的文件路径。条目过期或文件已不存在时视为未命中，并顺带清理索引与残留文件。
func (c *FileCache) Get(key string) (string, bool) {
	unlock := c.lockEntry(key)
	defer unlock()

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return "", false
	}
	if c.stale(entry) {
		delete(c.entries, key)
		c.mu.Unlock()
		removeBestEffort(c.logger, entry.path)
		return "", false
	}
	c.mu.Unlock()
	return entry.path, true
}

// PurgeExpired 主动扫描索引，淘汰所有过期或文件缺失的条目，返回淘汰数量。
func (c *FileCache) PurgeExpired() int {
	c.mu.Lock()
	var victims []string
	for key, entry := range c.entries {
		if c.stale(entry) {
			victims = append(victims, entry.path)
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	for _, path := range victims {
		removeBestEffort(c.logger, path)
	}
	return len(victims)
}

// Clear 删除所有已登记的文件并清空索引，单个文件删除失败只记录日志。
func (c *FileCache) Clear() {
	c.mu.Lock()
	paths := make([]string, 0, len(c.entries))
	for _, entry := range c.entries {
		paths = append(paths, entry.path)
	}
	c.entries = make(map[string]fileEntry)
	c.mu.Unlock()

	for _, path := range paths {
		removeBestEffort(c.logger, path)
	}
}

// Len 返回索引中的条目数。
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// caller must hold c.mu
func (c *FileCache) stale(entry fileEntry) bool {
	if expired(c.clock(), entry.expiresAt) {
		return true
	}
	_, err := os.Stat(entry.path)
	return err != nil
}

func (c *FileCache) pathFor(key, suffix string) string {
	return filepath.Join(c.dir, Digest(key)+NormalizeSuffix(suffix))
}

// lockEntry 串行化同一 key 的写入与失效判断，避免 Get 删除 Set 刚写好的文件。
func (c *FileCache) lockEntry(key string) func() {
	c.lockMu.Lock()
	lock := c.locks[key]
	if lock == nil {
		lock = &entryLock{}
		c.locks[key] = lock
	}
	lock.refs++
	c.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		c.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(c.locks, key)
		}
		c.lockMu.Unlock()
	}
}

// Digest 返回 key 的 SHA-256 十六进制摘要，作为与 key 内容无关的安全文件名。
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NormalizeSuffix 保证后缀以 "." 开头，空后缀退回 DefaultFileSuffix。
func NormalizeSuffix(suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return DefaultFileSuffix
	}
	if !strings.HasPrefix(suffix, ".") {
		return "." + suffix
	}
	return suffix
}

func writeFileAtomic(filePath string, content []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(content)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
