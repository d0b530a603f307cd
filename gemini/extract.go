package gemini

import (
	"regexp"
	"strings"

	"github.com/BaSui01/bananaflow/types"
)

// markdownBase64Pattern 匹配文本中内嵌的 Markdown base64 图像:
// ![...](data:image/png;base64,....)
var markdownBase64Pattern = regexp.MustCompile(
	`!\[[^\]]*\]\(data:image/(?:png|jpeg|jpg|gif|webp|bmp);base64,([A-Za-z0-9+/=]+)\)`)

// extractContent 从 generateContent 响应中提取图片与文本。
// 支持两种图片形态：标准 inlineData，以及部分网关把图片以
// Markdown base64 形式塞进 text 字段的情况。
func extractContent(resp *generateResponse) *types.RawResponse {
	var images []string
	var texts []string

	for _, candidate := range resp.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" &&
				strings.HasPrefix(p.InlineData.MimeType, "image/") {
				images = append(images, p.InlineData.Data)
				continue
			}

			text := strings.TrimSpace(p.Text)
			if text == "" {
				continue
			}

			matches := markdownBase64Pattern.FindAllStringSubmatch(text, -1)
			if len(matches) > 0 {
				for _, m := range matches {
					if m[1] != "" {
						images = append(images, m[1])
					}
				}
				// 移除已提取的图像，保留剩余文本
				if remaining := strings.TrimSpace(markdownBase64Pattern.ReplaceAllString(text, "")); remaining != "" {
					texts = append(texts, remaining)
				}
				continue
			}

			texts = append(texts, text)
		}
	}

	return &types.RawResponse{
		Images: images,
		Text:   strings.Join(texts, "\n"),
	}
}
