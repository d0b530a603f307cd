// =============================================================================
// bananaflow 主入口
// =============================================================================
// 批量图像生成命令行工具
//
// 使用方法:
//
//	bananaflow run --prompt "海边日落" --count 4        # 执行一个批次
//	bananaflow run --config config.yaml --out ./output  # 指定配置与输出目录
//	bananaflow version                                  # 显示版本信息
// =============================================================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/BaSui01/bananaflow"
	"github.com/BaSui01/bananaflow/batch"
	"github.com/BaSui01/bananaflow/config"
	"github.com/BaSui01/bananaflow/types"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runBatch(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🖼️ run 命令
// =============================================================================

func runBatch(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "配置文件路径（YAML）")
	prompt := fs.String("prompt", "", "生成提示词")
	count := fs.Int("count", 1, "批次任务数")
	seed := fs.Int64("seed", -1, "基准种子，负数表示远端随机")
	aspectRatio := fs.String("aspect-ratio", "", "目标比例，如 16:9")
	imageSize := fs.String("image-size", "", "分辨率档位 1K/2K/4K")
	outDir := fs.String("out", ".", "输出目录")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	loader := config.NewLoader().WithEnvPrefix("BANANAFLOW")
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.BuildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	p, err := bananaflow.New(cfg, bananaflow.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "管线初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer p.Close()

	// Ctrl+C 触发优雅取消，在途任务标记为取消并保留已完成结果
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec := batch.Spec{
		Prompt:      *prompt,
		Count:       *count,
		Seed:        *seed,
		AspectRatio: *aspectRatio,
		ImageSize:   *imageSize,
	}

	opts := batch.RunOptions{OnProgress: func(r types.JobResult, completed, total int) {
		fmt.Printf("[%d/%d] 任务 #%d %s\n", completed, total, r.Index, r.State)
	}}

	results, summary, runErr := p.Generate(ctx, spec, opts)
	if runErr != nil && results == nil {
		fmt.Fprintf(os.Stderr, "批次执行失败: %v\n", runErr)
		os.Exit(1)
	}

	if err := writeResults(*outDir, results); err != nil {
		fmt.Fprintf(os.Stderr, "写出结果失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("完成: 成功 %d / 失败 %d / 取消 %d，耗时 %s\n",
		summary.TotalSucceeded, summary.TotalFailed, summary.TotalCancelled, summary.Elapsed)
	for _, r := range results {
		if r.State == types.JobFailed {
			fmt.Printf("任务 #%d 失败: %s\n", r.Index, r.Error)
		}
	}

	if runErr != nil || summary.TotalSucceeded == 0 {
		os.Exit(1)
	}
}

// writeResults 把成功任务的图片落盘，文件名携带任务下标与图片序号。
func writeResults(dir string, results []types.JobResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, r := range results {
		if r.State != types.JobSucceeded {
			continue
		}
		for n, img := range r.Images {
			name := fmt.Sprintf("banana_%03d_%d.png", r.Index, n)
			if err := os.WriteFile(filepath.Join(dir, name), img, 0o644); err != nil {
				return err
			}
			fmt.Printf("已保存 %s\n", filepath.Join(dir, name))
		}
	}
	return nil
}

// =============================================================================
// 🔧 辅助命令
// =============================================================================

func printVersion() {
	fmt.Printf("bananaflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func printUsage() {
	fmt.Println(`bananaflow - 批量图像生成工具

Usage:
  bananaflow run [flags]    执行一个生成批次
  bananaflow version        显示版本信息
  bananaflow help           显示帮助

Run flags:
  --config path       配置文件路径（YAML）
  --prompt text       生成提示词
  --count n           批次任务数（默认 1）
  --seed n            基准种子，负数表示远端随机
  --aspect-ratio r    目标比例，如 16:9
  --image-size s      分辨率档位 1K/2K/4K
  --out dir           输出目录（默认当前目录）

环境变量（BANANAFLOW_ 前缀）可覆盖配置文件，例如:
  BANANAFLOW_ENDPOINT_API_KEY、BANANAFLOW_ENDPOINT_BASE_URL`)
}
