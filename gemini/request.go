package gemini

import (
	"fmt"
	"strings"

	"github.com/BaSui01/bananaflow/types"
)

// aspectRatioAliases 白名单内的比例原样透传，其余 trim 后照传，
// 交由远端校验。
var aspectRatioAliases = map[string]string{
	"1:1":  "1:1",
	"2:3":  "2:3",
	"3:2":  "3:2",
	"3:4":  "3:4",
	"4:3":  "4:3",
	"4:5":  "4:5",
	"5:4":  "5:4",
	"9:16": "9:16",
	"16:9": "16:9",
	"21:9": "21:9",
}

var validImageSizes = map[string]bool{"1K": true, "2K": true, "4K": true}

func normalizeAspectRatio(aspectRatio string) string {
	trimmed := strings.TrimSpace(aspectRatio)
	if trimmed == "" || strings.EqualFold(trimmed, "auto") {
		return ""
	}
	if alias, ok := aspectRatioAliases[trimmed]; ok {
		return alias
	}
	return trimmed
}

func normalizeImageSize(imageSize string) string {
	normalized := strings.ToUpper(strings.TrimSpace(imageSize))
	if validImageSizes[normalized] {
		return normalized
	}
	// 默认 2K，与原始接口约定一致
	return "2K"
}

// buildRequest 把任务组装为 generateContent 请求体。
// encodedInputs 是已经 base64 编码的参考图（编码与缓存由 codec 负责）。
func buildRequest(job *types.Job, encodedInputs []string, topP float64) (*generateRequest, *types.Error) {
	prompt := strings.TrimSpace(job.Prompt)
	if prompt == "" && len(encodedInputs) == 0 {
		return nil, types.NewError(types.ErrConfig, "请输入提示词或提供至少一张参考图像")
	}

	// 把分辨率和比例作为参数后缀附加到提示词末尾，提高弱代理网关的命中率
	var suffixParts []string
	size := normalizeImageSize(job.ImageSize)
	suffixParts = append(suffixParts, "分辨率: "+size)
	if aspect := normalizeAspectRatio(job.AspectRatio); aspect != "" {
		suffixParts = append(suffixParts, "比例: "+aspect)
	}
	if prompt != "" {
		prompt = prompt + " [" + strings.Join(suffixParts, ", ") + "]"
	}

	var parts []part
	if prompt != "" {
		parts = append(parts, part{Text: prompt})
	}
	for _, encoded := range encodedInputs {
		if encoded == "" {
			continue
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: "image/png",
			Data:     encoded,
		}})
	}

	gc := &generationConfig{
		TopP:               topP,
		ResponseModalities: []string{"IMAGE"},
	}
	if job.Seed >= 0 {
		seed := job.Seed
		gc.Seed = &seed
	}

	ic := &imageConfig{ImageSize: size}
	if aspect := normalizeAspectRatio(job.AspectRatio); aspect != "" {
		ic.AspectRatio = aspect
	}
	gc.ImageConfig = ic

	return &generateRequest{
		Contents:         []content{{Role: "user", Parts: parts}},
		GenerationConfig: gc,
	}, nil
}

// buildGenerateURL 容错拼接 generateContent 地址。
// 允许 BaseURL 已经是完整地址、以模型名结尾、或包含 /models/ 路径。
func buildGenerateURL(baseURL, model string) (string, *types.Error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", types.NewError(types.ErrConfig, "未配置有效的 API Base URL")
	}

	model = normalizeModelID(model)
	if model == "" {
		return "", types.NewError(types.ErrConfig, "未指定模型类型")
	}

	switch {
	case strings.HasSuffix(base, ":generateContent"):
		return base, nil
	case strings.Contains(base, ":generate"):
		return base, nil
	case strings.HasSuffix(base, "/"+model):
		return base + ":generateContent", nil
	case strings.Contains(base, "/models/"):
		return base + ":generateContent", nil
	default:
		return fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, model), nil
	}
}

// normalizeModelID 去掉调用方误带的 models/ 与 v1beta/ 前缀。
func normalizeModelID(model string) string {
	model = strings.TrimSpace(model)
	if idx := strings.Index(model, "/models/"); idx >= 0 {
		model = model[idx+len("/models/"):]
	}
	for _, prefix := range []string{"models/", "v1beta/"} {
		if strings.HasPrefix(model, prefix) {
			model = model[len(prefix):]
		}
	}
	return model
}
