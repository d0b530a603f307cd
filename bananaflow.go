// Package bananaflow provides a top-level convenience entry point for running
// image generation batches with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/bananaflow"
//
//	cfg := config.DefaultConfig()
//	cfg.Endpoint.BaseURL = "https://generativelanguage.googleapis.com"
//	cfg.Endpoint.APIKey = os.Getenv("BANANAFLOW_ENDPOINT_API_KEY")
//
//	p, err := bananaflow.New(cfg)
//	results, summary, err := p.Generate(ctx, batch.Spec{Prompt: "海边日落", Count: 4, Seed: 42})
//
// 各子包可独立使用；此包只负责把它们按配置拼装起来。
package bananaflow

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/bananaflow/batch"
	"github.com/BaSui01/bananaflow/codec"
	"github.com/BaSui01/bananaflow/config"
	"github.com/BaSui01/bananaflow/executor"
	"github.com/BaSui01/bananaflow/gemini"
	"github.com/BaSui01/bananaflow/internal/metrics"
	"github.com/BaSui01/bananaflow/types"
)

// Option configures the pipeline created by [New].
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	redis      *redis.Client
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics registers pipeline metrics on the given registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(o *options) { o.registerer = registerer }
}

// WithRedisClient 使用外部 Redis 客户端作为编码缓存二级层，
// 生命周期由调用方管理。
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redis = client }
}

// Pipeline 是装配完成的批量生成管线。创建后不可变，可并发复用。
type Pipeline struct {
	cfg       *config.Config
	scheduler *batch.Scheduler
	logger    *zap.Logger

	rdb      *redis.Client
	ownRedis bool
}

// New 按配置装配管线。非法配置在此处快速失败。
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		built, err := config.BuildLogger(cfg.Log)
		if err != nil {
			return nil, types.NewError(types.ErrConfig, "日志初始化失败").WithCause(err)
		}
		logger = built
	}

	var collector *metrics.Collector
	if o.registerer != nil {
		collector = metrics.NewCollector("bananaflow", o.registerer, logger)
	}

	p := &Pipeline{cfg: cfg, logger: logger}

	cache := codec.NewEncodeCache(cfg.Cache.Capacity, logger, collector)
	if o.redis != nil {
		p.rdb = o.redis
		cache.WithRedis(p.rdb, cfg.Cache.RedisTTL)
	} else if cfg.Cache.EnableRedis {
		p.rdb = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		p.ownRedis = true
		cache.WithRedis(p.rdb, cfg.Cache.RedisTTL)
	}

	decoder := codec.NewDecodePool(cfg.Concurrency.DecodeWorkers, logger, collector)

	endpointCfg := gemini.Config{
		BaseURL:        cfg.Endpoint.BaseURL,
		APIKey:         cfg.Endpoint.APIKey,
		Model:          cfg.Endpoint.Model,
		BypassProxy:    cfg.Endpoint.BypassProxy,
		VerifySSL:      cfg.Endpoint.VerifySSL,
		ConnectTimeout: cfg.Timeout.Connect,
	}
	factory := func() (executor.Endpoint, error) {
		return gemini.NewClient(endpointCfg, logger), nil
	}

	policy := executor.RetryPolicy{
		MaxAttempts:       cfg.Retry.MaxAttempts,
		InitialBackoff:    cfg.Retry.InitialBackoff,
		BackoffMultiplier: cfg.Retry.BackoffMultiplier,
	}

	p.scheduler = batch.NewScheduler(
		factory,
		cfg.Timeout.Budget(),
		policy,
		cfg.Concurrency,
		cache,
		decoder,
		logger,
		collector,
	)
	return p, nil
}

// Generate 展开批次描述并执行到每个任务终态。
// 结果按任务下标升序返回，附带批次聚合统计。
func (p *Pipeline) Generate(ctx context.Context, spec batch.Spec, opts ...batch.RunOptions) ([]types.JobResult, *types.BatchSummary, error) {
	jobs, err := batch.BuildJobs(spec)
	if err != nil {
		return nil, nil, err
	}
	var runOpts batch.RunOptions
	if len(opts) > 0 {
		runOpts = opts[0]
	}
	return p.scheduler.Run(ctx, jobs, runOpts)
}

// Close 释放管线持有的资源。外部注入的 Redis 客户端不在此关闭。
func (p *Pipeline) Close() error {
	if p.ownRedis && p.rdb != nil {
		return p.rdb.Close()
	}
	return nil
}
