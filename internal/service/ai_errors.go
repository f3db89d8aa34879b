package service

import (
	"context"
	"courseforge_backend/internal/util"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrorKind AI 调用错误分类
type ErrorKind string

const (
	KindConfig    ErrorKind = "config"     // 凭证缺失/无效，不重试
	KindRateLimit ErrorKind = "rate_limit" // 限流，按服务端建议延迟重试
	KindTimeout   ErrorKind = "timeout"    // 请求超时，指数退避重试
	KindNetwork   ErrorKind = "network"    // 连接拒绝/重置/DNS失败，指数退避重试
	KindService   ErrorKind = "service"    // 请求非法或响应不可解析，不重试
)

// Classification 显式的分类结果，重试循环只消费这个结构，
// 不对错误的具体类型做分支判断
type Classification struct {
	Kind       ErrorKind
	Retryable  bool
	RetryAfter time.Duration // 仅限流时由服务端建议
}

// apiError 完成服务返回的非 2xx 响应
type apiError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *apiError) Error() string {
	return fmt.Sprintf("completion API error (status %d): %s", e.StatusCode, e.Body)
}

// ErrMissingAPIKey 凭证未配置时生成与拆解直接失败
var ErrMissingAPIKey = errors.New("AI API key is not configured")

// ErrBadResponse 响应结构不符合预期（无choices、JSON不可解析等）
type ErrBadResponse struct {
	Reason string
}

func (e *ErrBadResponse) Error() string {
	return "unusable completion response: " + e.Reason
}

// Classify 把任意错误映射到 §7 错误分类
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	if errors.Is(err, ErrMissingAPIKey) || errors.Is(err, util.ErrTemplateNotFound) {
		return Classification{Kind: KindConfig, Retryable: false}
	}

	var bad *ErrBadResponse
	if errors.As(err, &bad) {
		return Classification{Kind: KindService, Retryable: false}
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return Classification{Kind: KindRateLimit, Retryable: true, RetryAfter: apiErr.RetryAfter}
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return Classification{Kind: KindConfig, Retryable: false}
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return Classification{Kind: KindTimeout, Retryable: true}
		case apiErr.StatusCode >= 500:
			return Classification{Kind: KindNetwork, Retryable: true}
		default:
			return Classification{Kind: KindService, Retryable: false}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Classification{Kind: KindTimeout, Retryable: true}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Classification{Kind: KindTimeout, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Classification{Kind: KindNetwork, Retryable: true}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Classification{Kind: KindNetwork, Retryable: true}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Classification{Kind: KindNetwork, Retryable: true}
	}

	return Classification{Kind: KindService, Retryable: false}
}

// IsRetryable 供流水线记录课时失败时上报是否可重试
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}
