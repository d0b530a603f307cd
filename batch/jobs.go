// Package batch 负责整批任务的展开、派发、汇集与聚合统计。
package batch

import (
	"fmt"
	"strings"

	"github.com/BaSui01/bananaflow/types"
)

// Spec 描述一次批量生成请求。批内任务共享提示词与参考图，
// 仅随机种子按下标递增（除非交由远端随机）。
type Spec struct {
	// Prompt 生成提示词
	Prompt string
	// Count 批次任务数
	Count int
	// Seed 基准种子：任务 i 使用 Seed+i；负数表示全部交由远端随机
	Seed int64
	// InputImages 整批共享的参考图原始字节
	InputImages [][]byte
	// AspectRatio 目标比例，"Auto" 或空表示不指定
	AspectRatio string
	// ImageSize 目标分辨率档位（1K/2K/4K）
	ImageSize string
	// Model 覆盖端点默认模型
	Model string
}

// maxBatchSize 单批任务数上限，防止误配打爆远端配额。
const maxBatchSize = 64

// BuildJobs 把批次描述展开为独立任务。非法描述在任何派发前快速失败。
func BuildJobs(spec Spec) ([]*types.Job, error) {
	if spec.Count < 1 {
		return nil, types.NewError(types.ErrConfig,
			fmt.Sprintf("批次任务数至少为 1，当前 %d", spec.Count))
	}
	if spec.Count > maxBatchSize {
		return nil, types.NewError(types.ErrConfig,
			fmt.Sprintf("批次任务数不能超过 %d，当前 %d", maxBatchSize, spec.Count))
	}

	hasImage := false
	for _, img := range spec.InputImages {
		if len(img) > 0 {
			hasImage = true
			break
		}
	}
	if strings.TrimSpace(spec.Prompt) == "" && !hasImage {
		return nil, types.NewError(types.ErrConfig, "请输入提示词或提供至少一张参考图像")
	}

	jobs := make([]*types.Job, spec.Count)
	for i := 0; i < spec.Count; i++ {
		seed := int64(-1)
		if spec.Seed >= 0 {
			seed = spec.Seed + int64(i)
		}
		jobs[i] = &types.Job{
			Index:       i,
			Prompt:      spec.Prompt,
			InputImages: spec.InputImages,
			Seed:        seed,
			AspectRatio: spec.AspectRatio,
			ImageSize:   spec.ImageSize,
			Model:       spec.Model,
		}
	}
	return jobs, nil
}
