// =============================================================================
// MeshFlow 主入口
// =============================================================================
// 服装 3D 扫描摄取流水线与检索 API
//
// 使用方法:
//
//	meshflow run --dataset ./data/train             # 执行一次摄取批处理
//	meshflow run --policy gated --reset             # 门控分析并清空存储
//	meshflow serve --config config.yaml             # 启动检索 API
//	meshflow migrate up                             # 运行数据库迁移
//	meshflow migrate status                         # 查看迁移状态
//	meshflow version                                # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(fmt.Sprintf("%s (%s, built %s)", Version, GitCommit, BuildTime)),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	); err != nil {
		os.Exit(1)
	}
}
