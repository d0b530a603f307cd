package gemini

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/bananaflow/types"
)

// maxErrorBodyBytes 错误响应体读取上限，摘要只取前 300 字符
const maxErrorBodyBytes = 64 << 10

// Client 是一次性尝试的传输客户端。每个实例持有独立连接池，
// 调度器按 worker 创建，互不共享。
type Client struct {
	cfg    Config
	topP   float64
	client *http.Client
	logger *zap.Logger
}

// NewClient 创建端点客户端。
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.BypassProxy {
		transport.Proxy = nil
	}
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 用户显式关闭校验
	}

	return &Client{
		cfg:    cfg,
		topP:   0.95,
		client: &http.Client{Transport: transport},
		logger: logger.With(zap.String("component", "gemini_client")),
	}
}

// Send 发起一次生成调用。remainingRead 是本次尝试可用的剩余读取预算，
// <= 0 表示无限制。失败统一返回按阶段分类的 *types.Error，
// 重试与预算决策由上层 executor 完成。
func (c *Client) Send(ctx context.Context, job *types.Job, encodedInputs []string, remainingRead time.Duration) (*types.RawResponse, *types.Error) {
	model := job.Model
	if model == "" {
		model = c.cfg.Model
	}

	url, cfgErr := buildGenerateURL(c.cfg.BaseURL, model)
	if cfgErr != nil {
		return nil, cfgErr
	}

	body, cfgErr := buildRequest(job, encodedInputs, c.topP)
	if cfgErr != nil {
		return nil, cfgErr
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "请求体序列化失败").WithCause(err)
	}

	reqCtx := ctx
	if remainingRead > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, remainingRead)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrConfig, "构造 HTTP 请求失败").WithCause(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	httpReq.Header.Set("X-Banana-Client", "bananaflow")

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		return nil, c.classifyTransportError(ctx, err, elapsed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		summary := summarizeErrorBody(errBody)
		retryable := types.RetryableStatuses[resp.StatusCode]
		if retryable {
			c.logger.Warn("远端返回可重试状态码",
				zap.Int("status", resp.StatusCode),
				zap.Duration("elapsed", elapsed))
		}
		return nil, types.NewError(types.ErrRemoteHTTP,
			fmt.Sprintf("远端返回异常（HTTP %d）：%s", resp.StatusCode, summary)).
			WithPhase(types.PhaseHTTP).
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(retryable)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.NewError(types.ErrResponseFormat, "接口返回数据格式异常").
			WithPhase(types.PhaseRead).
			WithCause(err)
	}

	return extractContent(&parsed), nil
}
