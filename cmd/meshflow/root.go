package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/config"
)

// rootOptions 所有子命令共享的全局状态，在 PersistentPreRunE 中填充
type rootOptions struct {
	configPath string
	envFile    string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "meshflow",
		Short: "Garment 3D-scan ingestion pipeline and retrieval API",
		Long: `MeshFlow walks garment scan datasets, converts OBJ meshes to GLB,
extracts geometric features and stores the results in a relational
metadata store plus a GridFS blob store.

Configuration comes from defaults, an optional YAML file and MESHFLOW_*
environment variables (a .env file is read first when present).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.sync()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Path to dotenv file (ignored when missing)")

	cmd.AddCommand(
		newRunCmd(opts),
		newServeCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// load 读取配置并初始化日志
func (o *rootOptions) load() error {
	loader := config.NewLoader().WithDotEnv(o.envFile)
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	o.cfg = cfg
	o.logger = initLogger(cfg.Log)
	return nil
}

func (o *rootOptions) sync() {
	if o.logger != nil {
		_ = o.logger.Sync()
	}
}
