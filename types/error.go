package types

import "fmt"

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Pipeline error codes
const (
	// ErrConnect 连接阶段失败（DNS、TCP、TLS），可安全重试
	ErrConnect ErrorCode = "CONNECT_ERROR"
	// ErrReadTimeout 读取阶段超时或预算耗尽，不自动重试
	ErrReadTimeout ErrorCode = "READ_TIMEOUT"
	// ErrRemoteHTTP 远端返回非 2xx 状态码
	ErrRemoteHTTP ErrorCode = "REMOTE_HTTP"
	// ErrCancelled 调用被取消，不计为失败
	ErrCancelled ErrorCode = "CANCELLED"
	// ErrDecode 单张图片解码失败，局部隔离
	ErrDecode ErrorCode = "DECODE_ERROR"
	// ErrConfig 配置或输入非法，调度前快速失败
	ErrConfig ErrorCode = "CONFIG_ERROR"
	// ErrResponseFormat 2xx 响应但响应体无法解析
	ErrResponseFormat ErrorCode = "RESPONSE_FORMAT"
)

// Phase identifies which stage of a network attempt an error belongs to.
type Phase string

const (
	// PhaseConnect 建立连接阶段（请求尚未送达远端）
	PhaseConnect Phase = "connect"
	// PhaseRead 请求已发出，等待/读取响应阶段
	PhaseRead Phase = "read"
	// PhaseHTTP 收到了 HTTP 响应，按状态码分类
	PhaseHTTP Phase = "http"
)

// Error represents a structured error with code, phase, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Phase      Phase     `json:"phase,omitempty"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithPhase tags the error with the attempt phase it occurred in.
func (e *Error) WithPhase(phase Phase) *Error {
	e.Phase = phase
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// GetPhase extracts the attempt phase from an error.
func GetPhase(err error) Phase {
	if e, ok := err.(*Error); ok {
		return e.Phase
	}
	return ""
}

// RetryableStatuses 是允许自动重试的 HTTP 状态码集合。
// 与远端约定固定，不随调用方配置变化。
var RetryableStatuses = map[int]bool{
	408: true,
	409: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}
