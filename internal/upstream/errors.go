package upstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"webchat/internal/pkg/textutil"
)

var (
	// ErrTimeout 上游调用超时
	ErrTimeout = errors.New("upstream timeout")
	// ErrUnavailable 无法连接上游
	ErrUnavailable = errors.New("upstream unavailable")

	errReadTimeout = errors.New("upstream read timeout")
)

// 返回给终端用户的提示
const (
	msgConnectFailed = "无法连接到AI服务，请检查网络连接"
	msgTimeout       = "请求超时，请稍后重试"
	msgUnknown       = "未知错误"
	msgIncomplete    = "AI服务响应中断，请稍后重试"
	systemErrorRunes = 200
)

// failureKind 上游调用失败的原因
type failureKind int

const (
	failureOther failureKind = iota
	failureConnect
	failureTimeout
	failureCanceled
)

// classify 判断失败原因；streamCtx 是发出请求所用的 context
func classify(err error, streamCtx context.Context) failureKind {
	if errors.Is(context.Cause(streamCtx), errReadTimeout) {
		return failureTimeout
	}
	if streamCtx.Err() != nil {
		return failureCanceled
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return failureConnect
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return failureConnect
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return failureConnect
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return failureTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return failureTimeout
	}
	return failureOther
}

// failureMessage 失败原因对应的提示
func failureMessage(kind failureKind, err error) string {
	switch kind {
	case failureConnect:
		return msgConnectFailed
	case failureTimeout:
		return msgTimeout
	default:
		return SystemErrorMessage(err)
	}
}

// SystemErrorMessage 未分类错误的提示，错误文本截断到 200 字
func SystemErrorMessage(err error) string {
	return fmt.Sprintf("系统错误: %s", textutil.TruncateRunes(err.Error(), systemErrorRunes))
}
