package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

var repoRoot string

func init() {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return
	}
	dir := filepath.Dir(file)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			repoRoot = dir
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func projectRoot(t *testing.T) string {
	t.Helper()
	if repoRoot == "" {
		t.Fatal("无法定位项目根目录")
	}
	return repoRoot
}

func configFixture(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(projectRoot(t), "internal", "config", "testdata", name)
}

// useBufferWriters swaps stdOut/stdErr with in-memory buffers for the duration
// of a test, allowing assertions on CLI output without polluting test logs.
func useBufferWriters(t *testing.T) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevOut := stdOut
	prevErr := stdErr

	stdOut = outBuf
	stdErr = errBuf

	t.Cleanup(func() {
		stdOut = prevOut
		stdErr = prevErr
	})
}

// stdOutBuffer returns the in-use stdout buffer when useBufferWriters is active.
func stdOutBuffer() *bytes.Buffer {
	buf, _ := stdOut.(*bytes.Buffer)
	return buf
}

// stdErrBuffer returns the in-use stderr buffer when useBufferWriters is active.
func stdErrBuffer() *bytes.Buffer {
	buf, _ := stdErr.(*bytes.Buffer)
	return buf
}

// isolateEnv 清空会影响配置加载的环境变量，并把缓存目录指向临时目录。
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"MLIT_API_KEY", "MLIT_BASE_URL", "MLIT_API_KEY_HEADER", "HTTP_TIMEOUT",
		"MAX_CONCURRENCY", "MLIT_MAX_ATTEMPTS", "MLIT_DEDUPE_INFLIGHT",
		"LOG_LEVEL", "LOG_FILE", "MLIT_MCP_CONFIG", "MLIT_ENV_FILE",
	} {
		t.Setenv(name, "")
	}
	t.Setenv("MLIT_CACHE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "error")
}

// missingEnvFile 返回一个不存在的 .env 路径，避免读取工作目录中的真实文件。
func missingEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), ".env")
}
