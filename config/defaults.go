// =============================================================================
// 📦 bananaflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Endpoint:    DefaultEndpointConfig(),
		Timeout:     DefaultTimeoutConfig(),
		Retry:       DefaultRetryConfig(),
		Concurrency: DefaultConcurrencyConfig(),
		Cache:       DefaultCacheConfig(),
		Log:         DefaultLogConfig(),
	}
}

// DefaultEndpointConfig 返回默认端点配置
func DefaultEndpointConfig() EndpointConfig {
	return EndpointConfig{
		Model:     "gemini-3-pro-image-preview",
		VerifySSL: true,
	}
}

// DefaultTimeoutConfig 返回默认超时配置
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Connect: 15 * time.Second,
		Read:    420 * time.Second,
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    2 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// DefaultConcurrencyConfig 返回默认并发配置
func DefaultConcurrencyConfig() ConcurrencyConfig {
	return ConcurrencyConfig{
		NetworkWorkers:  4,
		DecodeWorkers:   8,
		StaggerInterval: 200 * time.Millisecond,
		ContinueOnError: true,
	}
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity: 16,
		RedisTTL: time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "console",
	}
}
