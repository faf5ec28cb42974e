package cache

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// removeBestEffort 删除缓存文件；文件不存在视为成功，其它错误只记日志，
// 保证清理路径不会让面向用户的调用失败。严格的写入路径不经过这里。
func removeBestEffort(logger logrus.FieldLogger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !isNotExist(err) {
		logger.WithError(err).WithFields(logrus.Fields{
			"action": "cache_cleanup",
			"path":   path,
		}).Warn("cache file removal failed")
	}
}

// StartPurger 在后台按 interval 调用 PurgeExpired，直到 ctx 结束。interval<=0 时不启动。
func StartPurger(ctx context.Context, fc *FileCache, interval time.Duration, logger logrus.FieldLogger) {
	if fc == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = discardLogger()
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := fc.PurgeExpired(); removed > 0 {
					logger.WithFields(logrus.Fields{
						"action":  "cache_purge",
						"removed": removed,
					}).Debug("expired cache files purged")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
