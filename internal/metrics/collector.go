// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有记录方法对 nil 接收者安全，
// 未接入监控的调用方可以直接传 nil。
type Collector struct {
	// 任务指标
	jobsTotal     *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram

	// 请求指标
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	retriesTotal    prometheus.Counter

	// 编解码指标
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	decodeFailures prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到给定的 registerer。
func NewCollector(namespace string, registerer prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(registerer)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 任务指标
	c.jobsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of jobs by terminal state",
		},
		[]string{"state"},
	)

	c.batchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall-clock duration of a batch run in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	c.batchSize = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size_jobs",
			Help:      "Number of jobs requested per batch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
	)

	// 请求指标
	c.attemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_attempts_total",
			Help:      "Total number of request attempts by phase and result",
		},
		[]string{"phase", "result"},
	)

	c.attemptDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_attempt_duration_seconds",
			Help:      "Single attempt duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"result"},
	)

	c.retriesTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "Total number of retried attempts",
		},
	)

	// 编解码指标
	c.cacheHits = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_cache_hits_total",
			Help:      "Total number of encode cache hits",
		},
	)

	c.cacheMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encode_cache_misses_total",
			Help:      "Total number of encode cache misses",
		},
	)

	c.decodeFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Total number of payload decode failures replaced by placeholders",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 任务指标记录
// =============================================================================

// ObserveJob 记录一个任务的终态
func (c *Collector) ObserveJob(state string) {
	if c == nil {
		return
	}
	c.jobsTotal.WithLabelValues(state).Inc()
}

// ObserveBatch 记录一次批次运行
func (c *Collector) ObserveBatch(duration time.Duration, size int) {
	if c == nil {
		return
	}
	c.batchDuration.Observe(duration.Seconds())
	c.batchSize.Observe(float64(size))
}

// =============================================================================
// 🌐 请求指标记录
// =============================================================================

// ObserveAttempt 记录一次请求尝试
func (c *Collector) ObserveAttempt(phase, result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.attemptsTotal.WithLabelValues(phase, result).Inc()
	c.attemptDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// IncRetry 记录一次重试
func (c *Collector) IncRetry() {
	if c == nil {
		return
	}
	c.retriesTotal.Inc()
}

// =============================================================================
// 💾 编解码指标记录
// =============================================================================

// CacheHit 记录编码缓存命中
func (c *Collector) CacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// CacheMiss 记录编码缓存未命中
func (c *Collector) CacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// DecodeFailure 记录一次解码失败
func (c *Collector) DecodeFailure() {
	if c == nil {
		return
	}
	c.decodeFailures.Inc()
}
