package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/bananaflow/codec"
	"github.com/BaSui01/bananaflow/config"
	"github.com/BaSui01/bananaflow/executor"
	"github.com/BaSui01/bananaflow/internal/metrics"
	"github.com/BaSui01/bananaflow/types"
)

// EndpointFactory 为每个工作协程创建独立的远端接口实例。
// 各 worker 持有独立连接池，彼此的慢响应互不拖累。
type EndpointFactory func() (executor.Endpoint, error)

// ProgressFunc 在每个任务到达终态时按完成顺序回调。
// 回调串行执行，completed 单调递增直到 total。
type ProgressFunc func(result types.JobResult, completed, total int)

// RunOptions 单次批量运行的可选项。
type RunOptions struct {
	// OnProgress 任务完成回调，nil 表示不关心进度
	OnProgress ProgressFunc
}

// Scheduler 把一批任务派发到有界工作池并汇集结果。
// 调度器本身不可变，可被多个批次并发复用。
type Scheduler struct {
	factory     EndpointFactory
	budget      types.TimeoutBudget
	policy      executor.RetryPolicy
	concurrency config.ConcurrencyConfig
	cache       *codec.EncodeCache
	decoder     *codec.DecodePool
	logger      *zap.Logger
	collector   *metrics.Collector
}

// NewScheduler 创建调度器。
func NewScheduler(
	factory EndpointFactory,
	budget types.TimeoutBudget,
	policy executor.RetryPolicy,
	concurrency config.ConcurrencyConfig,
	cache *codec.EncodeCache,
	decoder *codec.DecodePool,
	logger *zap.Logger,
	collector *metrics.Collector,
) *Scheduler {
	if concurrency.NetworkWorkers < 1 {
		concurrency.NetworkWorkers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		factory:     factory,
		budget:      budget,
		policy:      policy,
		concurrency: concurrency,
		cache:       cache,
		decoder:     decoder,
		logger:      logger.With(zap.String("component", "scheduler")),
		collector:   collector,
	}
}

// Run 执行整批任务直到每个任务到达终态。
// 每个任务恰好产生一个结果，按 Index 升序返回。
// 外部取消时在途任务标记为取消、未起步任务直接取消，仍返回完整结果列表。
func (s *Scheduler) Run(ctx context.Context, jobs []*types.Job, opts RunOptions) ([]types.JobResult, *types.BatchSummary, error) {
	if len(jobs) == 0 {
		return nil, nil, types.NewError(types.ErrConfig, "批次为空，没有可执行的任务")
	}

	runID := uuid.NewString()[:8]
	logger := s.logger.With(zap.String("run_id", runID))
	start := time.Now()

	workers := s.concurrency.NetworkWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	logger.Info("批次开始",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", workers),
		zap.Duration("stagger", s.concurrency.StaggerInterval),
		zap.Bool("continue_on_error", s.concurrency.ContinueOnError))

	// 失败快停与外部取消共用同一个内部 context
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var limiter *rate.Limiter
	if s.concurrency.StaggerInterval > 0 && len(jobs) > 1 {
		limiter = rate.NewLimiter(rate.Every(s.concurrency.StaggerInterval), 1)
	}

	var (
		mu        sync.Mutex
		results   = make([]types.JobResult, 0, len(jobs))
		completed int
	)
	record := func(result types.JobResult) {
		mu.Lock()
		results = append(results, result)
		completed++
		done := completed
		if opts.OnProgress != nil {
			opts.OnProgress(result, done, len(jobs))
		}
		mu.Unlock()

		s.collector.ObserveJob(string(result.State))
		if result.State == types.JobFailed && !s.concurrency.ContinueOnError {
			logger.Warn("任务失败且快停模式开启，取消剩余任务", zap.Int("index", result.Index))
			cancelRun()
		}
	}

	jobCh := make(chan *types.Job)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		endpoint, err := s.factory()
		if err != nil {
			cancelRun()
			close(jobCh)
			wg.Wait()
			return nil, nil, types.NewError(types.ErrConfig, "创建远端接口失败").WithCause(err)
		}
		exec := executor.NewExecutor(endpoint, s.budget, s.policy, logger, s.collector).
			WithLimiter(limiter)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				// 已取消的批次不再起步新任务，但必须为其产出结果
				if runCtx.Err() != nil {
					record(s.cancelledResult(job))
					continue
				}
				record(s.runOne(runCtx, exec, job))
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	elapsed := time.Since(start)
	summary := types.Summarize(results, elapsed, len(jobs))
	s.collector.ObserveBatch(elapsed, len(jobs))

	logger.Info("批次结束",
		zap.Int("succeeded", summary.TotalSucceeded),
		zap.Int("failed", summary.TotalFailed),
		zap.Int("cancelled", summary.TotalCancelled),
		zap.Duration("elapsed", elapsed))

	if ctx.Err() != nil {
		return results, summary, types.NewError(types.ErrCancelled, "批次被调用方取消").WithCause(ctx.Err())
	}
	return results, summary, nil
}

// runOne 驱动单个任务从编码、执行到解码的完整链路。
func (s *Scheduler) runOne(ctx context.Context, exec *executor.Executor, job *types.Job) types.JobResult {
	encoded, err := s.cache.EncodeAll(ctx, job.InputImages)
	if err != nil {
		// 参考图编码失败只影响当前任务
		msg := "输入图像编码失败"
		if pipeErr, ok := err.(*types.Error); ok {
			msg = pipeErr.Message
		}
		return types.JobResult{
			Index: job.Index,
			State: types.JobFailed,
			Error: msg,
			Seed:  job.Seed,
		}
	}

	outcome := exec.Execute(ctx, job, encoded)

	switch outcome.Kind {
	case types.OutcomeSuccess:
		if len(outcome.Response.Images) == 0 {
			return types.JobResult{
				Index: job.Index,
				State: types.JobFailed,
				Error: "API 未返回图像数据",
				Text:  outcome.Response.Text,
				Seed:  job.Seed,
			}
		}
		return types.JobResult{
			Index:   job.Index,
			State:   types.JobSucceeded,
			Success: true,
			Images:  s.decoder.DecodeAll(ctx, outcome.Response.Images),
			Text:    outcome.Response.Text,
			Seed:    job.Seed,
		}
	case types.OutcomeCancelled:
		return s.cancelledResult(job)
	default:
		return types.JobResult{
			Index: job.Index,
			State: types.JobFailed,
			Error: outcome.Err.Message,
			Seed:  job.Seed,
		}
	}
}

func (s *Scheduler) cancelledResult(job *types.Job) types.JobResult {
	return types.JobResult{
		Index: job.Index,
		State: types.JobCancelled,
		Error: "任务已取消",
		Seed:  job.Seed,
	}
}
