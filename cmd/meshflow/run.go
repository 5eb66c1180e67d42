package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/internal/metrics"
	"github.com/BaSui01/meshflow/internal/telemetry"
	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/pipeline"
	"github.com/BaSui01/meshflow/scanner"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🧵 run 命令
// =============================================================================

type runFlags struct {
	datasets       []string
	output         string
	maxPerCategory int
	policy         string
	reset          bool
	report         string
	migrate        bool
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one ingestion batch over the dataset roots",
		Long: `Walks every dataset root, converts each accepted OBJ to GLB, analyzes it
and writes one metadata row plus one GridFS blob per item. Per-item failures
are reported in the summary table and never abort the batch.`,
		Example: `  # Ingest two splits with the default quota
  meshflow run --dataset ./data/train --dataset ./data/test

  # Only accept analyzable meshes, start from empty stores
  meshflow run --policy gated --reset --report report.parquet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.apply(cmd, &opts.cfg.Pipeline)
			return runIngest(cmd.Context(), opts.cfg, f.migrate, opts.logger, cmd.OutOrStdout())
		},
	}

	f.register(cmd.Flags())

	return cmd
}

func (f *runFlags) register(fl *pflag.FlagSet) {
	fl.StringArrayVarP(&f.datasets, "dataset", "d", nil, "Dataset root directory (repeatable)")
	fl.StringVarP(&f.output, "output", "o", "", "Directory for converted GLB files")
	fl.IntVar(&f.maxPerCategory, "max-per-category", 0, "Maximum accepted items per category")
	fl.StringVar(&f.policy, "policy", "", "Analysis policy: gated or ungated")
	fl.BoolVar(&f.reset, "reset", false, "Empty both stores before the run")
	fl.StringVar(&f.report, "report", "", "Write the run report as Parquet to this path")
	fl.BoolVar(&f.migrate, "migrate", false, "Apply SQL migrations before the run")
}

// apply 只覆盖命令行显式给出的字段
func (f *runFlags) apply(cmd *cobra.Command, pc *config.PipelineConfig) {
	changed := cmd.Flags().Changed
	if changed("dataset") {
		pc.DatasetDirs = f.datasets
	}
	if changed("output") {
		pc.OutputDir = f.output
	}
	if changed("max-per-category") {
		pc.MaxPerCategory = f.maxPerCategory
	}
	if changed("policy") {
		pc.AnalysisPolicy = f.policy
	}
	if changed("reset") {
		pc.ResetStores = f.reset
	}
	if changed("report") {
		pc.ReportPath = f.report
	}
}

func runIngest(ctx context.Context, cfg *config.Config, runMigrations bool, logger *zap.Logger, out io.Writer) error {
	if err := cfg.ValidateForRun(); err != nil {
		return err
	}
	policy, err := mesh.ParsePolicy(cfg.Pipeline.AnalysisPolicy)
	if err != nil {
		return err
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return types.NewError(types.ErrSetup, "init telemetry").WithCause(err)
	}
	defer shutdownTelemetry(providers, logger)

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)

	stores, err := openStores(ctx, cfg, runMigrations, collector, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("closing stores", zap.Error(err))
		}
	}()

	orch, err := pipeline.New(pipeline.Config{
		DatasetDirs:    cfg.Pipeline.DatasetDirs,
		OutputDir:      cfg.Pipeline.OutputDir,
		MaxPerCategory: cfg.Pipeline.MaxPerCategory,
		Policy:         policy,
		ResetStores:    cfg.Pipeline.ResetStores,
	}, pipeline.Deps{
		Walker:    scanner.New(logger),
		Converter: mesh.NewConverter(logger),
		Analyzer:  mesh.NewAnalyzer(logger),
		Metadata:  stores.metadata,
		Blobs:     stores.blobs,
	}, logger,
		pipeline.WithMetrics(collector),
		pipeline.WithTracer(providers.Tracer()),
		pipeline.WithMeter(providers.Meter()),
	)
	if err != nil {
		return types.NewError(types.ErrSetup, "build pipeline").WithCause(err)
	}

	report, runErr := orch.Process(ctx)
	if report != nil {
		if err := report.RenderTable(out); err != nil {
			logger.Warn("render report table", zap.Error(err))
		}
		if path := cfg.Pipeline.ReportPath; path != "" {
			if err := report.WriteParquet(path); err != nil {
				logger.Warn("write parquet report", zap.String("path", path), zap.Error(err))
			} else {
				logger.Info("report written", zap.String("path", path), zap.Int("rows", len(report.Entries)))
			}
		}
	}

	if path := cfg.Metrics.TextfilePath; path != "" {
		if err := collector.WriteTextfile(path, prometheus.DefaultGatherer); err != nil {
			logger.Warn("write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}

	if runErr != nil {
		return fmt.Errorf("ingestion run: %w", runErr)
	}
	return nil
}

func shutdownTelemetry(p *telemetry.Providers, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
}
