package gemini

import "time"

// Config 配置 Gemini 兼容图像端点。
type Config struct {
	// BaseURL 可以是裸域名、以 /models/{model} 结尾的地址、
	// 或已拼好 :generateContent 的完整地址
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key" yaml:"api_key"`
	Model   string `json:"model,omitempty" yaml:"model,omitempty"`
	// BypassProxy 绕过系统代理直连
	BypassProxy bool `json:"bypass_proxy,omitempty" yaml:"bypass_proxy,omitempty"`
	// VerifySSL 校验服务端证书
	VerifySSL bool `json:"verify_ssl" yaml:"verify_ssl"`
	// ConnectTimeout 连接阶段超时，由 Client 的 Dialer 强制执行
	ConnectTimeout time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
}

// DefaultConfig 返回默认端点配置。
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://generativelanguage.googleapis.com",
		Model:          "gemini-3-pro-image-preview",
		VerifySSL:      true,
		ConnectTimeout: 15 * time.Second,
	}
}

// --- generateContent wire format ---

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type generationConfig struct {
	TopP               float64      `json:"topP,omitempty"`
	Seed               *int64       `json:"seed,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string      `json:"text,omitempty"`
				InlineData *inlineData `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type errorResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}
