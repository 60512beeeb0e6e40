package llm

import (
	"context"
	"errors"
	"net"
)

// 模型调用失败分类。供应商实现负责把 HTTP 状态码或传输错误
// 映射到这些哨兵错误，上层据此决定是否重试。
var (
	// ErrRateLimited 模型服务限流（HTTP 429）。
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrContextTooLong 提示超出模型上下文窗口。
	ErrContextTooLong = errors.New("llm: context too long")

	// ErrUnavailable 模型服务不可用（连接失败或 5xx）。
	ErrUnavailable = errors.New("llm: service unavailable")
)

// IsRateLimited 判断错误是否为限流。
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsContextTooLong 判断错误是否为上下文超长。
func IsContextTooLong(err error) bool {
	return errors.Is(err, ErrContextTooLong)
}

// IsUnavailable 判断错误是否为服务不可用。
func IsUnavailable(err error) bool {
	if errors.Is(err, ErrUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRetryable 判断错误是否值得重试。
// 限流和服务不可用是瞬时故障；上下文超长、取消和超时不是。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsRateLimited(err) || IsUnavailable(err)
}
