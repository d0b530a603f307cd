package batch

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/bananaflow/codec"
	"github.com/BaSui01/bananaflow/config"
	"github.com/BaSui01/bananaflow/executor"
	"github.com/BaSui01/bananaflow/types"
)

// scriptedEndpoint 按任务下标决定行为，供调度器集成测试使用。
type scriptedEndpoint struct {
	mu      sync.Mutex
	delays  map[int]time.Duration
	fail    map[int]*types.Error
	payload string
	calls   map[int]int
}

func newScriptedEndpoint(t *testing.T) *scriptedEndpoint {
	t.Helper()
	img := imaging.New(4, 4, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &scriptedEndpoint{
		delays:  map[int]time.Duration{},
		fail:    map[int]*types.Error{},
		payload: base64.StdEncoding.EncodeToString(buf.Bytes()),
		calls:   map[int]int{},
	}
}

func (s *scriptedEndpoint) Send(ctx context.Context, job *types.Job, encodedInputs []string, remainingRead time.Duration) (*types.RawResponse, *types.Error) {
	s.mu.Lock()
	s.calls[job.Index]++
	delay := s.delays[job.Index]
	failErr := s.fail[job.Index]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, types.NewError(types.ErrCancelled, "请求已取消")
		case <-time.After(delay):
		}
	}
	if failErr != nil {
		// 每次调用返回独立副本，避免重试间共享可变状态
		clone := *failErr
		return nil, &clone
	}
	return &types.RawResponse{Images: []string{s.payload}, Text: "done"}, nil
}

func newTestScheduler(ep executor.Endpoint, conc config.ConcurrencyConfig) *Scheduler {
	factory := func() (executor.Endpoint, error) { return ep, nil }
	policy := executor.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffMultiplier: 1.5}
	cache := codec.NewEncodeCache(4, zap.NewNop(), nil)
	decoder := codec.NewDecodePool(2, zap.NewNop(), nil)
	return NewScheduler(factory, types.TimeoutBudget{}, policy, conc, cache, decoder, zap.NewNop(), nil)
}

func defaultConc() config.ConcurrencyConfig {
	return config.ConcurrencyConfig{NetworkWorkers: 4, DecodeWorkers: 2, ContinueOnError: true}
}

func TestScheduler_EveryJobGetsExactlyOneResult(t *testing.T) {
	ep := newScriptedEndpoint(t)
	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 6, Seed: 10})
	require.NoError(t, err)

	results, summary, err := newTestScheduler(ep, defaultConc()).Run(context.Background(), jobs, RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 6)

	seen := map[int]bool{}
	for i, r := range results {
		assert.Equal(t, i, r.Index, "结果必须按 Index 升序")
		assert.False(t, seen[r.Index], "Index %d 出现多次", r.Index)
		seen[r.Index] = true
		assert.Equal(t, types.JobSucceeded, r.State)
		assert.NotEmpty(t, r.Images)
	}
	assert.Equal(t, 6, summary.TotalRequested)
	assert.Equal(t, 6, summary.TotalSucceeded)
}

func TestScheduler_CompletionOrderIndependentOfIndexOrder(t *testing.T) {
	ep := newScriptedEndpoint(t)
	// 下标越小延迟越大，完成顺序与下标顺序相反
	ep.delays[0] = 120 * time.Millisecond
	ep.delays[1] = 60 * time.Millisecond
	ep.delays[2] = 10 * time.Millisecond

	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 3, Seed: -1})
	require.NoError(t, err)

	var completionOrder []int
	var completedSeq []int
	opts := RunOptions{OnProgress: func(r types.JobResult, completed, total int) {
		completionOrder = append(completionOrder, r.Index)
		completedSeq = append(completedSeq, completed)
		assert.Equal(t, 3, total)
	}}

	results, _, err := newTestScheduler(ep, defaultConc()).Run(context.Background(), jobs, opts)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 1, 0}, completionOrder, "进度回调按完成顺序触发")
	assert.Equal(t, []int{1, 2, 3}, completedSeq, "完成计数单调递增")
	for i, r := range results {
		assert.Equal(t, i, r.Index, "最终结果仍按 Index 升序")
	}
}

func TestScheduler_SingleFailureDoesNotAffectSiblings(t *testing.T) {
	ep := newScriptedEndpoint(t)
	ep.fail[2] = types.NewError(types.ErrRemoteHTTP, "服务暂时不可用").
		WithPhase(types.PhaseHTTP).
		WithHTTPStatus(503).
		WithRetryable(true)

	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 4, Seed: 1})
	require.NoError(t, err)

	results, summary, err := newTestScheduler(ep, defaultConc()).Run(context.Background(), jobs, RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 3, summary.TotalSucceeded)
	assert.Equal(t, 1, summary.TotalFailed)

	failed := results[2]
	assert.Equal(t, types.JobFailed, failed.State)
	assert.Contains(t, failed.Error, "共尝试 2 次", "可重试错误耗尽次数后定格为终态")
	// 重试只发生在失败任务上
	assert.Equal(t, 2, ep.calls[2])
	assert.Equal(t, 1, ep.calls[0])
}

func TestScheduler_FailFastCancelsRemaining(t *testing.T) {
	ep := newScriptedEndpoint(t)
	ep.fail[0] = types.NewError(types.ErrReadTimeout, "读取超时").WithPhase(types.PhaseRead)
	for i := 1; i < 8; i++ {
		ep.delays[i] = 80 * time.Millisecond
	}

	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 8, Seed: -1})
	require.NoError(t, err)

	conc := config.ConcurrencyConfig{NetworkWorkers: 2, DecodeWorkers: 2, ContinueOnError: false}
	results, summary, err := newTestScheduler(ep, conc).Run(context.Background(), jobs, RunOptions{})
	require.NoError(t, err, "快停是内部取消，不是调用方错误")
	require.Len(t, results, 8, "取消的任务也必须产出结果")

	assert.Equal(t, 1, summary.TotalFailed)
	assert.Greater(t, summary.TotalCancelled, 0, "快停后剩余任务应被取消")
	assert.Equal(t, 8, summary.TotalSucceeded+summary.TotalFailed+summary.TotalCancelled)
}

func TestScheduler_ExternalCancelReturnsCompleteResults(t *testing.T) {
	ep := newScriptedEndpoint(t)
	for i := 0; i < 6; i++ {
		ep.delays[i] = 200 * time.Millisecond
	}

	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 6, Seed: -1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	conc := config.ConcurrencyConfig{NetworkWorkers: 2, DecodeWorkers: 2, ContinueOnError: true}
	results, summary, err := newTestScheduler(ep, conc).Run(ctx, jobs, RunOptions{})

	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
	require.Len(t, results, 6)
	assert.Greater(t, summary.TotalCancelled, 0)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
}

// cancelThenSucceedEndpoint 在返回成功前取消外部 context，
// 模拟"网络已完成、批次随即被取消"的时序。
type cancelThenSucceedEndpoint struct {
	cancel  context.CancelFunc
	payload string
	count   int
}

func (e *cancelThenSucceedEndpoint) Send(ctx context.Context, job *types.Job, encodedInputs []string, remainingRead time.Duration) (*types.RawResponse, *types.Error) {
	e.cancel()
	images := make([]string, e.count)
	for i := range images {
		images[i] = e.payload
	}
	return &types.RawResponse{Images: images}, nil
}

func TestScheduler_CancelReachesDecodeStage(t *testing.T) {
	base := newScriptedEndpoint(t)
	ctx, cancel := context.WithCancel(context.Background())
	ep := &cancelThenSucceedEndpoint{cancel: cancel, payload: base.payload, count: 8}

	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 1, Seed: -1})
	require.NoError(t, err)

	conc := config.ConcurrencyConfig{NetworkWorkers: 1, DecodeWorkers: 2, ContinueOnError: true}
	results, _, err := newTestScheduler(ep, conc).Run(ctx, jobs, RunOptions{})

	require.Error(t, err)
	assert.Equal(t, types.ErrCancelled, types.GetErrorCode(err))
	require.Len(t, results, 1)

	// 取消后解码阶段不再调度新任务，载荷以占位图顶替
	require.Len(t, results[0].Images, 8, "批次形状保持不变")
	for i, img := range results[0].Images {
		assert.Equal(t, codec.Placeholder(), img, "第 %d 项应为占位图", i)
	}
}

func TestScheduler_NoImagesInResponseFailsJob(t *testing.T) {
	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 1, Seed: -1})
	require.NoError(t, err)

	sched := newTestScheduler(&textOnlyEndpoint{}, defaultConc())
	results, summary, err := sched.Run(context.Background(), jobs, RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, types.JobFailed, results[0].State)
	assert.Contains(t, results[0].Error, "未返回图像数据")
	assert.Equal(t, "只有文字", results[0].Text)
	assert.Equal(t, 1, summary.TotalFailed)
}

type textOnlyEndpoint struct{}

func (e *textOnlyEndpoint) Send(ctx context.Context, job *types.Job, encodedInputs []string, remainingRead time.Duration) (*types.RawResponse, *types.Error) {
	return &types.RawResponse{Text: "只有文字"}, nil
}

func TestScheduler_StaggerSpacesJobStarts(t *testing.T) {
	ep := newScriptedEndpoint(t)
	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 3, Seed: -1})
	require.NoError(t, err)

	conc := config.ConcurrencyConfig{
		NetworkWorkers:  3,
		DecodeWorkers:   2,
		StaggerInterval: 50 * time.Millisecond,
		ContinueOnError: true,
	}

	start := time.Now()
	results, _, err := newTestScheduler(ep, conc).Run(context.Background(), jobs, RunOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 三个任务错峰起步，至少消耗两个完整间隔
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestScheduler_EmptyBatchRejected(t *testing.T) {
	ep := newScriptedEndpoint(t)
	_, _, err := newTestScheduler(ep, defaultConc()).Run(context.Background(), nil, RunOptions{})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfig, types.GetErrorCode(err))
}

func TestScheduler_SequentialWhenSingleWorker(t *testing.T) {
	ep := newScriptedEndpoint(t)
	jobs, err := BuildJobs(Spec{Prompt: "p", Count: 3, Seed: 5})
	require.NoError(t, err)

	conc := config.ConcurrencyConfig{NetworkWorkers: 1, DecodeWorkers: 1, ContinueOnError: true}

	var order []int
	opts := RunOptions{OnProgress: func(r types.JobResult, completed, total int) {
		order = append(order, r.Index)
	}}

	results, _, err := newTestScheduler(ep, conc).Run(context.Background(), jobs, opts)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{0, 1, 2}, order, "单 worker 下按提交顺序执行")
}
