package mlit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidJSON 表示上游在 JSON 格式下返回了无法解析的正文，不会重试。
	ErrInvalidJSON = errors.New("upstream returned invalid JSON")
	// ErrInvalidParam 表示查询参数的值类型无法编码为 query string。
	ErrInvalidParam = errors.New("invalid query parameter")
	// ErrInvalidEndpoint 表示 endpoint 不是 BaseURL 下的相对数据集路径。
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)

// upstreamError 标记在上游调用路径上产生的错误，调用方据此计入 apiErrors。
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }

func (e *upstreamError) Unwrap() error { return e.err }

// StatusError 描述上游返回的非 2xx 响应。
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Retryable  bool
}

func (e *StatusError) Error() string {
	kind := "status"
	if e.Retryable {
		kind = "retryable status"
	}
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d", e.Endpoint, kind, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Endpoint, kind, e.StatusCode, e.Body)
}

// IsRetryable 报告错误是否值得在重试预算内再次尝试。
// 非 StatusError 的错误视为传输层失败，同样可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidJSON) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable
	}
	return true
}
