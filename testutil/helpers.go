// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和测试图像数据
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	raw := testutil.TestImagePNG(t, 8, 8)
// =============================================================================
package testutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🖼️ 测试图像辅助
// =============================================================================

// TestImagePNG 生成指定尺寸的纯色测试图 PNG 字节
func TestImagePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := imaging.New(width, height, color.NRGBA{R: 120, G: 200, B: 80, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成测试图失败: %v", err)
	}
	return buf.Bytes()
}

// Base64ImagePayload 生成 base64 编码的测试图载荷，
// 模拟远端 inlineData 返回的内容
func Base64ImagePayload(t *testing.T, width, height int) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString(TestImagePNG(t, width, height))
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForChannel 等待通道接收或超时
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	select {
	case v := <-ch:
		return v, true
	case <-time.After(timeout):
		var zero T
		return zero, false
	}
}
