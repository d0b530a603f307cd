package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/bananaflow/internal/metrics"
)

const placeholderSize = 64

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder 返回固定的 64x64 黑色占位图（PNG 字节）。
// 单张解码失败时顶替原位，保证批次形状不变。
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		img := imaging.New(placeholderSize, placeholderSize, color.NRGBA{A: 255})
		var buf bytes.Buffer
		// 固定内容的本地编码不会失败
		_ = png.Encode(&buf, img)
		placeholderPNG = buf.Bytes()
	})
	return placeholderPNG
}

// DecodePool 并发解码 base64 图片载荷，与网络并发独立限流。
type DecodePool struct {
	workers   int
	logger    *zap.Logger
	collector *metrics.Collector
}

// NewDecodePool 创建解码池。workers 小于 1 时按 1 处理。
func NewDecodePool(workers int, logger *zap.Logger, collector *metrics.Collector) *DecodePool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DecodePool{
		workers:   workers,
		logger:    logger.With(zap.String("component", "decode_pool")),
		collector: collector,
	}
}

// DecodeAll 解码一组载荷，输出与输入等长且顺序一致。
// 单项失败记日志并以占位图顶替，从不整体失败。
// 取消后不再调度新任务，已在途的解码任务跑完即返回。
func (p *DecodePool) DecodeAll(ctx context.Context, payloads []string) [][]byte {
	if len(payloads) == 0 {
		return nil
	}

	start := time.Now()
	results := make([][]byte, len(payloads))

	workers := p.workers
	if len(payloads) < workers {
		workers = len(payloads)
	}

	var g errgroup.Group
	g.SetLimit(workers)

	for i, payload := range payloads {
		// 取消后剩余项直接占位，不再投入 CPU
		if ctx.Err() != nil {
			results[i] = Placeholder()
			continue
		}

		g.Go(func() error {
			decoded, err := p.decodeOne(payload)
			if err != nil {
				p.collector.DecodeFailure()
				p.logger.Error("图片解码失败，使用占位图",
					zap.Int("index", i),
					zap.Error(err))
				decoded = Placeholder()
			}
			results[i] = decoded
			return nil
		})
	}

	// 任务从不返回 error，Wait 只用于汇合
	_ = g.Wait()

	p.logger.Info("并发解码完成",
		zap.Int("count", len(payloads)),
		zap.Duration("elapsed", time.Since(start)))
	return results
}

// decodeOne 解码单张图片并归一化为 PNG 字节。
func (p *DecodePool) decodeOne(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
