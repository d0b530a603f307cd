package types

import "time"

// Job 是批次中一个独立的生成任务。提交后不可变，由调度器持有其生命周期。
type Job struct {
	// Index 任务在批次中的下标，结果按此排序返回
	Index int `json:"index"`
	// Prompt 生成提示词
	Prompt string `json:"prompt"`
	// InputImages 参考图原始字节（PNG/JPEG），编码由 codec 统一处理
	InputImages [][]byte `json:"-"`
	// Seed 随机种子，负数表示交由远端随机
	Seed int64 `json:"seed"`
	// AspectRatio 目标比例（"1:1"、"16:9" 等），"Auto" 或空表示不指定
	AspectRatio string `json:"aspect_ratio,omitempty"`
	// ImageSize 目标分辨率档位（1K/2K/4K）
	ImageSize string `json:"image_size,omitempty"`
	// Model 覆盖默认模型，空则使用端点配置
	Model string `json:"model,omitempty"`
}

// HasPayload 判断任务是否携带有效载荷（提示词或至少一张参考图）。
func (j *Job) HasPayload() bool {
	if j.Prompt != "" {
		return true
	}
	for _, img := range j.InputImages {
		if len(img) > 0 {
			return true
		}
	}
	return false
}

// TimeoutBudget 定义一次任务的超时预算。
// ReadTimeout 是跨所有重试共享的全局读取预算；Connect 每次尝试重新计算。
type TimeoutBudget struct {
	// ConnectTimeout 单次连接阶段超时
	ConnectTimeout time.Duration `json:"connect_timeout"`
	// ReadTimeout 全局读取预算，<= 0 表示无限制
	ReadTimeout time.Duration `json:"read_timeout"`
}

// Unlimited 判断读取预算是否无限制。
func (b TimeoutBudget) Unlimited() bool { return b.ReadTimeout <= 0 }

// RawResponse 是一次成功网络调用返回的已解析内容。
type RawResponse struct {
	// Images base64 编码的图片载荷，顺序与远端返回一致
	Images []string `json:"images"`
	// Text 远端附带的文本内容（已合并）
	Text string `json:"text"`
}

// OutcomeKind 标记一次执行的最终走向。
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome 是执行器对单个任务的带标签结果。
// 失败与取消都以值而非异常形式返回，调用方按 Kind 分流。
type Outcome struct {
	Kind     OutcomeKind   `json:"kind"`
	Response *RawResponse  `json:"response,omitempty"`
	Err      *Error        `json:"-"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}

// JobState 是任务的终态。输出结果中不存在 Pending。
type JobState string

const (
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// JobResult 每个任务恰好产生一个，按 Index 升序返回给调用方。
type JobResult struct {
	Index   int      `json:"index"`
	State   JobState `json:"state"`
	Success bool     `json:"success"`
	// Images 解码后的图片字节（PNG），失败项为占位图
	Images [][]byte `json:"-"`
	Text   string   `json:"text,omitempty"`
	Error  string   `json:"error,omitempty"`
	Seed   int64    `json:"seed"`
}

// BatchSummary 批次聚合统计，由结果派生，不逐任务存储。
type BatchSummary struct {
	TotalRequested int           `json:"total_requested"`
	TotalSucceeded int           `json:"total_succeeded"`
	TotalFailed    int           `json:"total_failed"`
	TotalCancelled int           `json:"total_cancelled"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Summarize 从结果列表计算批次统计。
func Summarize(results []JobResult, elapsed time.Duration, requested int) *BatchSummary {
	s := &BatchSummary{TotalRequested: requested, Elapsed: elapsed}
	for _, r := range results {
		switch r.State {
		case JobSucceeded:
			s.TotalSucceeded++
		case JobCancelled:
			s.TotalCancelled++
		default:
			s.TotalFailed++
		}
	}
	return s
}
