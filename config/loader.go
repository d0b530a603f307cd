// =============================================================================
// 📦 bananaflow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("bananaflow.yaml").
//	    WithEnvPrefix("BANANAFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader 配置加载器
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "BANANAFLOW"}
}

// WithConfigPath 设置 YAML 配置文件路径（可选）
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 执行加载: 默认值 → YAML → 环境变量，最后统一校验。
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 用环境变量覆盖关键配置项。
// 密钥类配置通常只通过环境变量注入，避免落盘。
func (l *Loader) applyEnv(cfg *Config) {
	l.envString("API_KEY", &cfg.Endpoint.APIKey)
	l.envString("BASE_URL", &cfg.Endpoint.BaseURL)
	l.envString("MODEL", &cfg.Endpoint.Model)
	l.envBool("BYPASS_PROXY", &cfg.Endpoint.BypassProxy)
	l.envBool("VERIFY_SSL", &cfg.Endpoint.VerifySSL)

	l.envDuration("CONNECT_TIMEOUT", &cfg.Timeout.Connect)
	l.envDuration("READ_TIMEOUT", &cfg.Timeout.Read)

	l.envInt("MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	l.envDuration("INITIAL_BACKOFF", &cfg.Retry.InitialBackoff)

	l.envInt("NETWORK_WORKERS", &cfg.Concurrency.NetworkWorkers)
	l.envInt("DECODE_WORKERS", &cfg.Concurrency.DecodeWorkers)
	l.envDuration("STAGGER_INTERVAL", &cfg.Concurrency.StaggerInterval)
	l.envBool("CONTINUE_ON_ERROR", &cfg.Concurrency.ContinueOnError)

	l.envInt("CACHE_CAPACITY", &cfg.Cache.Capacity)
	l.envBool("CACHE_ENABLE_REDIS", &cfg.Cache.EnableRedis)
	l.envString("CACHE_REDIS_ADDR", &cfg.Cache.RedisAddr)

	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
			return
		}
		// 兼容纯数字（按秒处理），与原始配置文件格式一致
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = time.Duration(secs * float64(time.Second))
		}
	}
}
