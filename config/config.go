// =============================================================================
// 📦 bananaflow 配置结构
// =============================================================================
// 批量生成管线的全部显式配置，无进程级隐藏状态。
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/bananaflow/types"
)

// Config 是管线的完整配置结构
type Config struct {
	// Endpoint 远端生成接口配置
	Endpoint EndpointConfig `yaml:"endpoint"`

	// Timeout 超时预算配置
	Timeout TimeoutConfig `yaml:"timeout"`

	// Retry 重试与退避配置
	Retry RetryConfig `yaml:"retry"`

	// Concurrency 并发与调度配置
	Concurrency ConcurrencyConfig `yaml:"concurrency"`

	// Cache 输入图编码缓存配置
	Cache CacheConfig `yaml:"cache"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// EndpointConfig 远端生成接口配置
type EndpointConfig struct {
	// BaseURL 接口基础地址，可以是裸域名或已拼好的 :generateContent 地址
	BaseURL string `yaml:"base_url"`
	// APIKey 鉴权密钥
	APIKey string `yaml:"api_key"`
	// Model 默认模型标识
	Model string `yaml:"model"`
	// BypassProxy 绕过系统代理
	BypassProxy bool `yaml:"bypass_proxy"`
	// VerifySSL 校验服务端证书
	VerifySSL bool `yaml:"verify_ssl"`
}

// TimeoutConfig 超时预算配置
type TimeoutConfig struct {
	// Connect 单次连接阶段超时，每次重试独立计算
	Connect time.Duration `yaml:"connect"`
	// Read 全局读取预算，从首次尝试起计时，0 表示无限制
	Read time.Duration `yaml:"read"`
}

// Budget 转换为执行器使用的超时预算。
func (t TimeoutConfig) Budget() types.TimeoutBudget {
	return types.TimeoutBudget{ConnectTimeout: t.Connect, ReadTimeout: t.Read}
}

// RetryConfig 重试与退避配置
type RetryConfig struct {
	// MaxAttempts 最大尝试次数（含首次），与读取预算互为独立上限
	MaxAttempts int `yaml:"max_attempts"`
	// InitialBackoff 初始重试间隔
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// BackoffMultiplier 每次重试后的间隔倍增因子
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// ConcurrencyConfig 并发与调度配置
type ConcurrencyConfig struct {
	// NetworkWorkers 网络并发上限
	NetworkWorkers int `yaml:"network_workers"`
	// DecodeWorkers 解码并发上限，独立于网络并发
	DecodeWorkers int `yaml:"decode_workers"`
	// StaggerInterval 任务起始错峰间隔，0 表示不错峰
	StaggerInterval time.Duration `yaml:"stagger_interval"`
	// ContinueOnError 单任务失败后是否继续执行其余任务
	ContinueOnError bool `yaml:"continue_on_error"`
}

// CacheConfig 输入图编码缓存配置
type CacheConfig struct {
	// Capacity 本地 LRU 容量（条目数）
	Capacity int `yaml:"capacity"`
	// EnableRedis 启用 Redis 二级缓存（纯性能优化，失败只降级不报错）
	EnableRedis bool `yaml:"enable_redis"`
	// RedisAddr Redis 地址
	RedisAddr string `yaml:"redis_addr"`
	// RedisTTL Redis 条目过期时间
	RedisTTL time.Duration `yaml:"redis_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug / info / warn / error
	Level string `yaml:"level"`
	// Format 输出格式: json / console
	Format string `yaml:"format"`
}

// Validate 校验配置，非法配置在任何任务派发前快速失败。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint.BaseURL) == "" {
		return types.NewError(types.ErrConfig, "endpoint.base_url 不能为空")
	}
	if strings.TrimSpace(c.Endpoint.Model) == "" {
		return types.NewError(types.ErrConfig, "endpoint.model 不能为空")
	}
	if c.Timeout.Connect <= 0 {
		return types.NewError(types.ErrConfig,
			fmt.Sprintf("timeout.connect 必须为正值，当前 %v", c.Timeout.Connect))
	}
	if c.Timeout.Read < 0 {
		return types.NewError(types.ErrConfig,
			fmt.Sprintf("timeout.read 不能为负值，当前 %v（0 表示无限制）", c.Timeout.Read))
	}
	if c.Retry.MaxAttempts < 1 {
		return types.NewError(types.ErrConfig,
			fmt.Sprintf("retry.max_attempts 至少为 1，当前 %d", c.Retry.MaxAttempts))
	}
	if c.Retry.InitialBackoff <= 0 {
		return types.NewError(types.ErrConfig, "retry.initial_backoff 必须为正值")
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		return types.NewError(types.ErrConfig, "retry.backoff_multiplier 不能小于 1.0")
	}
	if c.Concurrency.NetworkWorkers < 1 || c.Concurrency.DecodeWorkers < 1 {
		return types.NewError(types.ErrConfig, "concurrency worker 数至少为 1")
	}
	if c.Concurrency.StaggerInterval < 0 {
		return types.NewError(types.ErrConfig, "concurrency.stagger_interval 不能为负值")
	}
	if c.Cache.Capacity < 1 {
		return types.NewError(types.ErrConfig, "cache.capacity 至少为 1")
	}
	if c.Cache.EnableRedis && strings.TrimSpace(c.Cache.RedisAddr) == "" {
		return types.NewError(types.ErrConfig, "启用 Redis 缓存时 cache.redis_addr 不能为空")
	}
	return nil
}
