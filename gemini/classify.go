package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bananaflow/types"
)

// classifyTransportError 把一次传输失败按阶段分类。
//
// 连接阶段（DNS、TCP、TLS）失败可以安全重试：请求尚未触达生成流程。
// 读取阶段失败一律终态：请求可能已送达且远端仍在执行计费工作，
// 自动重发会产生重复副作用。
func (c *Client) classifyTransportError(ctx context.Context, err error, elapsed time.Duration) *types.Error {
	// 调用方取消优先于一切分类
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return types.NewError(types.ErrCancelled, "请求已取消").WithCause(err)
	}

	// 剥掉 url.Error 外壳，其 Error() 带完整 URL，不能进入用户可见消息
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	if isConnectPhase(err) {
		c.logger.Warn("连接阶段失败", zap.Duration("elapsed", elapsed))
		return types.NewError(types.ErrConnect,
			"连接阶段耗时过长或无法建立，请检查代理、DNS 或 Base URL 域名是否可达").
			WithPhase(types.PhaseConnect).
			WithRetryable(true).
			WithCause(err)
	}

	if isRemoteClosed(err) {
		// 已建立连接但在生成阶段被远端关闭，多见于上游/网关空闲超时
		return types.NewError(types.ErrReadTimeout,
			fmt.Sprintf("服务器在 %.1fs 后中断连接，通常是生成阶段耗时超过上游或网关的空闲时间限制，请稍后重试或尝试绕过代理", elapsed.Seconds())).
			WithPhase(types.PhaseRead).
			WithCause(err)
	}

	if isTimeout(err) {
		// 连接阶段的超时会以 dial 操作错误出现并在上面被拦截；
		// 走到这里说明请求已经发出，按读取阶段终态处理
		return types.NewError(types.ErrReadTimeout,
			fmt.Sprintf("服务器在 %.1fs 内未返回数据，可能仍在生成；为避免重复请求干扰，已停止自动重试", elapsed.Seconds())).
			WithPhase(types.PhaseRead).
			WithCause(err)
	}

	// 兜底：视为读取阶段异常，不自动重试
	return types.NewError(types.ErrReadTimeout, "模型响应阶段异常，请检查网络链路或服务状态").
		WithPhase(types.PhaseRead).
		WithCause(err)
}

func isConnectPhase(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "TLS handshake timeout") ||
		strings.Contains(msg, "tls:") ||
		strings.Contains(msg, "x509:")
}

func isRemoteClosed(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection reset",
		"connection aborted",
		"broken pipe",
		"malformed http",
	} {
		if strings.Contains(msg, keyword) {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
