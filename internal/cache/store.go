package cache

import (
	"errors"
	"time"
)

// ErrInvalidConfig 表示构造缓存时参数非法（容量或 TTL 非正数）。
var ErrInvalidConfig = errors.New("invalid cache config")

// DefaultFileSuffix 是未指定后缀时写入文件使用的扩展名。
const DefaultFileSuffix = ".bin"

// memoryEntry 只由 MemoryCache 持有，重新 Set 时整体替换而不是原地修改。
type memoryEntry struct {
	key       string
	value     any
	expiresAt time.Duration
}

// fileEntry 记录磁盘文件路径与过期时间。索引中存在条目即意味着文件应当存在，
// 读取时若发现文件缺失则视为未命中并清理索引。
type fileEntry struct {
	path      string
	expiresAt time.Duration
}

func expired(now, expiresAt time.Duration) bool {
	return now >= expiresAt
}
