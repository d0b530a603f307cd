package gemini

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	maxSummaryLen = 300
	// balanceExhaustedMessage 已知的余额不足模式统一映射为固定文案，
	// 避免把上游的计费细节直接透给用户
	balanceExhaustedMessage = "余额不足：账户额度不足以完成本次请求，请充值后重试"
	emptyBodyMessage        = "无响应内容"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// summarizeErrorBody 从错误响应体提取对用户安全的摘要。
// 隐去源站 URL、请求 ID 等可定位上游的细节。
func summarizeErrorBody(body []byte) string {
	if len(body) == 0 {
		return emptyBodyMessage
	}

	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != nil {
			message := strings.TrimSpace(parsed.Error.Message)
			normalized := strings.ToLower(message)
			if strings.Contains(normalized, "token quota") && strings.Contains(normalized, "not enough") {
				return balanceExhaustedMessage
			}
			if message != "" {
				return truncateSummary(stripURLs(message))
			}
		}
		if message := strings.TrimSpace(parsed.Message); message != "" {
			return truncateSummary(stripURLs(message))
		}
	}

	// JSON 解析失败时回退到纯文本
	text := strings.TrimSpace(string(body))
	if text == "" {
		return emptyBodyMessage
	}
	return truncateSummary(stripURLs(text))
}

// stripURLs 把消息中的 URL 替换为占位符，避免泄露源站域名。
func stripURLs(s string) string {
	return urlPattern.ReplaceAllString(s, "[链接已隐去]")
}

func truncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryLen {
		return s
	}
	return string(runes[:maxSummaryLen])
}
