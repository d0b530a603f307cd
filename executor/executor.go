// Package executor 负责单个任务的完整执行生命周期：
// 预算检查、发起请求、按失败阶段决定重试，直到得出带标签的终态结果。
package executor

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/bananaflow/internal/metrics"
	"github.com/BaSui01/bananaflow/types"
)

// Endpoint 是执行器眼中的远端生成接口。
// remainingRead 是本次尝试可用的读取时间，<= 0 表示无限制。
type Endpoint interface {
	Send(ctx context.Context, job *types.Job, encodedInputs []string, remainingRead time.Duration) (*types.RawResponse, *types.Error)
}

// RetryPolicy 重试与退避策略。
type RetryPolicy struct {
	// MaxAttempts 最大尝试次数（含首次），与读取预算互为独立上限
	MaxAttempts int
	// InitialBackoff 初始重试间隔
	InitialBackoff time.Duration
	// BackoffMultiplier 每次重试后的间隔倍增因子
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns sensible retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       2,
		InitialBackoff:    2 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// Executor 对单个任务执行重试循环。
// 读取预算从首次尝试开始计时、跨重试共享；连接超时每次尝试独立。
// 次数上限与预算上限互相独立，先触碰哪个就停在哪个。
type Executor struct {
	endpoint  Endpoint
	budget    types.TimeoutBudget
	policy    RetryPolicy
	limiter   *rate.Limiter
	logger    *zap.Logger
	collector *metrics.Collector
}

// NewExecutor 创建执行器。
func NewExecutor(endpoint Endpoint, budget types.TimeoutBudget, policy RetryPolicy, logger *zap.Logger, collector *metrics.Collector) *Executor {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffMultiplier < 1.0 {
		policy.BackoffMultiplier = 1.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		endpoint:  endpoint,
		budget:    budget,
		policy:    policy,
		logger:    logger.With(zap.String("component", "executor")),
		collector: collector,
	}
}

// WithLimiter 挂载批次共享的起步限流器，用于任务错峰。
func (e *Executor) WithLimiter(limiter *rate.Limiter) *Executor {
	e.limiter = limiter
	return e
}

// Execute 执行任务直到终态。失败与取消以 Outcome 标签返回，不抛错。
func (e *Executor) Execute(ctx context.Context, job *types.Job, encodedInputs []string) types.Outcome {
	// 错峰仅作用于任务起步，不作用于重试
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.cancelled(job, 0, 0)
		}
	}

	start := time.Now()
	var lastErr *types.Error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return e.cancelled(job, attempt-1, time.Since(start))
		}

		// 每次尝试前先结算剩余预算
		remaining := time.Duration(0)
		if !e.budget.Unlimited() {
			remaining = e.budget.ReadTimeout - time.Since(start)
			if remaining <= 0 {
				return e.budgetExhausted(job, attempt-1, time.Since(start), lastErr)
			}
		}

		attemptStart := time.Now()
		resp, sendErr := e.endpoint.Send(ctx, job, encodedInputs, remaining)
		attemptElapsed := time.Since(attemptStart)

		if sendErr == nil {
			e.collector.ObserveAttempt(string(types.PhaseHTTP), "success", attemptElapsed)
			e.logger.Info("任务执行成功",
				zap.Int("index", job.Index),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", time.Since(start)))
			return types.Outcome{
				Kind:     types.OutcomeSuccess,
				Response: resp,
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
		}

		if sendErr.Code == types.ErrCancelled {
			return e.cancelled(job, attempt, time.Since(start))
		}

		lastErr = sendErr
		result := "terminal"
		if sendErr.Retryable {
			result = "retryable"
		}
		e.collector.ObserveAttempt(string(sendErr.Phase), result, attemptElapsed)

		if !sendErr.Retryable {
			e.logger.Warn("任务终态失败",
				zap.Int("index", job.Index),
				zap.Int("attempt", attempt),
				zap.String("code", string(sendErr.Code)),
				zap.String("phase", string(sendErr.Phase)))
			return types.Outcome{
				Kind:     types.OutcomeFailed,
				Err:      sendErr,
				Attempts: attempt,
				Elapsed:  time.Since(start),
			}
		}

		if attempt >= e.policy.MaxAttempts {
			break
		}

		delay := e.backoffDelay(attempt)
		e.collector.IncRetry()
		e.logger.Warn("可重试失败，等待后重试",
			zap.Int("index", job.Index),
			zap.Int("attempt", attempt),
			zap.String("code", string(sendErr.Code)),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return e.cancelled(job, attempt, time.Since(start))
		case <-time.After(delay):
		}
	}

	// 可重试错误耗尽次数后定格为终态
	failure := types.NewError(lastErr.Code,
		fmt.Sprintf("共尝试 %d 次仍未成功：%s", e.policy.MaxAttempts, lastErr.Message)).
		WithPhase(lastErr.Phase).
		WithCause(lastErr)
	return types.Outcome{
		Kind:     types.OutcomeFailed,
		Err:      failure,
		Attempts: e.policy.MaxAttempts,
		Elapsed:  time.Since(start),
	}
}

func (e *Executor) backoffDelay(attempt int) time.Duration {
	return time.Duration(float64(e.policy.InitialBackoff) *
		math.Pow(e.policy.BackoffMultiplier, float64(attempt-1)))
}

func (e *Executor) cancelled(job *types.Job, attempts int, elapsed time.Duration) types.Outcome {
	e.logger.Info("任务已取消", zap.Int("index", job.Index))
	return types.Outcome{
		Kind:     types.OutcomeCancelled,
		Err:      types.NewError(types.ErrCancelled, "任务已取消"),
		Attempts: attempts,
		Elapsed:  elapsed,
	}
}

func (e *Executor) budgetExhausted(job *types.Job, attempts int, elapsed time.Duration, lastErr *types.Error) types.Outcome {
	e.logger.Warn("读取时间预算耗尽，停止重试",
		zap.Int("index", job.Index),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", elapsed))
	err := types.NewError(types.ErrReadTimeout,
		fmt.Sprintf("读取时间预算（%.0fs）已耗尽，停止重试", e.budget.ReadTimeout.Seconds())).
		WithPhase(types.PhaseRead)
	if lastErr != nil {
		err = err.WithCause(lastErr)
	}
	return types.Outcome{
		Kind:     types.OutcomeFailed,
		Err:      err,
		Attempts: attempts,
		Elapsed:  elapsed,
	}
}
