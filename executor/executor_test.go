package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bananaflow/types"
)

// fakeEndpoint 按预设脚本逐次返回结果，并记录每次收到的剩余预算。
type fakeEndpoint struct {
	mu        sync.Mutex
	script    []func() (*types.RawResponse, *types.Error)
	calls     int
	budgets   []time.Duration
	callDelay time.Duration
}

func (f *fakeEndpoint) Send(ctx context.Context, job *types.Job, encodedInputs []string, remainingRead time.Duration) (*types.RawResponse, *types.Error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.budgets = append(f.budgets, remainingRead)
	f.mu.Unlock()

	if f.callDelay > 0 {
		time.Sleep(f.callDelay)
	}
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx]()
}

func ok() func() (*types.RawResponse, *types.Error) {
	return func() (*types.RawResponse, *types.Error) {
		return &types.RawResponse{Images: []string{"payload"}}, nil
	}
}

func connectErr() func() (*types.RawResponse, *types.Error) {
	return func() (*types.RawResponse, *types.Error) {
		return nil, types.NewError(types.ErrConnect, "连接失败").
			WithPhase(types.PhaseConnect).
			WithRetryable(true)
	}
}

func readErr() func() (*types.RawResponse, *types.Error) {
	return func() (*types.RawResponse, *types.Error) {
		return nil, types.NewError(types.ErrReadTimeout, "读取超时").
			WithPhase(types.PhaseRead)
	}
}

func fastPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, InitialBackoff: time.Millisecond, BackoffMultiplier: 1.5}
}

func TestExecutor_SuccessFirstAttempt(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){ok()}}
	exec := NewExecutor(ep, types.TimeoutBudget{}, fastPolicy(2), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	require.NotNil(t, outcome.Response)
	assert.Len(t, outcome.Response.Images, 1)
}

func TestExecutor_ConnectErrorRetriesThenSucceeds(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){connectErr(), ok()}}
	exec := NewExecutor(ep, types.TimeoutBudget{}, fastPolicy(3), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, ep.calls)
}

func TestExecutor_ReadPhaseFailureIsTerminal(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){readErr(), ok()}}
	exec := NewExecutor(ep, types.TimeoutBudget{}, fastPolicy(3), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	// 读取阶段失败绝不自动重试
	assert.Equal(t, types.OutcomeFailed, outcome.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, ep.calls)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, types.ErrReadTimeout, outcome.Err.Code)
	assert.Equal(t, types.PhaseRead, outcome.Err.Phase)
}

func TestExecutor_ExhaustedAttemptsBecomeTerminal(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){connectErr()}}
	exec := NewExecutor(ep, types.TimeoutBudget{}, fastPolicy(2), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeFailed, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 2, ep.calls)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, types.ErrConnect, outcome.Err.Code)
	assert.Contains(t, outcome.Err.Message, "共尝试 2 次")
	assert.False(t, outcome.Err.Retryable)
}

func TestExecutor_SharedReadBudgetShrinksAcrossAttempts(t *testing.T) {
	ep := &fakeEndpoint{
		script:    []func() (*types.RawResponse, *types.Error){connectErr(), ok()},
		callDelay: 30 * time.Millisecond,
	}
	budget := types.TimeoutBudget{ConnectTimeout: time.Second, ReadTimeout: 10 * time.Second}
	exec := NewExecutor(ep, budget, fastPolicy(3), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeSuccess, outcome.Kind)
	require.Len(t, ep.budgets, 2)
	// 第二次尝试可用预算必须少于第一次：预算全局共享而非逐次刷新
	assert.Less(t, ep.budgets[1], ep.budgets[0])
	assert.Greater(t, ep.budgets[0], 9*time.Second)
}

func TestExecutor_BudgetExhaustedStopsRetries(t *testing.T) {
	ep := &fakeEndpoint{
		script:    []func() (*types.RawResponse, *types.Error){connectErr()},
		callDelay: 60 * time.Millisecond,
	}
	budget := types.TimeoutBudget{ConnectTimeout: time.Second, ReadTimeout: 50 * time.Millisecond}
	exec := NewExecutor(ep, budget, fastPolicy(5), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeFailed, outcome.Kind)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, types.ErrReadTimeout, outcome.Err.Code)
	assert.Contains(t, outcome.Err.Message, "预算")
	// 次数上限远未触及，停止原因是预算耗尽
	assert.Less(t, ep.calls, 5)
}

func TestExecutor_UnlimitedBudgetPassesZero(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){ok()}}
	exec := NewExecutor(ep, types.TimeoutBudget{ConnectTimeout: time.Second}, fastPolicy(2), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeSuccess, outcome.Kind)
	require.Len(t, ep.budgets, 1)
	assert.Equal(t, time.Duration(0), ep.budgets[0])
}

func TestExecutor_CancelDuringBackoff(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){connectErr()}}
	policy := RetryPolicy{MaxAttempts: 3, InitialBackoff: 5 * time.Second, BackoffMultiplier: 1.5}
	exec := NewExecutor(ep, types.TimeoutBudget{}, policy, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome := exec.Execute(ctx, &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeCancelled, outcome.Kind)
	assert.Less(t, time.Since(start), time.Second, "取消应立即中断退避等待")
	assert.Equal(t, 1, ep.calls)
}

func TestExecutor_CancelledEndpointResultPropagates(t *testing.T) {
	ep := &fakeEndpoint{script: []func() (*types.RawResponse, *types.Error){
		func() (*types.RawResponse, *types.Error) {
			return nil, types.NewError(types.ErrCancelled, "请求已取消")
		},
	}}
	exec := NewExecutor(ep, types.TimeoutBudget{}, fastPolicy(3), zap.NewNop(), nil)

	outcome := exec.Execute(context.Background(), &types.Job{Index: 0, Prompt: "p"}, nil)

	assert.Equal(t, types.OutcomeCancelled, outcome.Kind)
	assert.Equal(t, 1, ep.calls)
}
