package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/meshflow/api/handlers"
	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/internal/metrics"
	"github.com/BaSui01/meshflow/internal/server"
	"github.com/BaSui01/meshflow/internal/telemetry"
)

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the retrieval API",
		Long: `Serves stored GLB files and metadata rows over HTTP:

  GET /api/glb/{item_id}        latest GLB for the item, as an attachment
  GET /api/metadata/{item_id}   metadata row
  GET /api/metadata             rows, filtered by ?category and ?limit
  GET /api/items                item ids present in the blob store
  GET /health, /ready, /version`,
		Example: `  meshflow serve --config config.yaml
  meshflow serve --port 9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				opts.cfg.Server.HTTPPort = port
			}
			return runServe(cmd.Context(), opts.cfg, opts.logger)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides server.http_port)")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	providers, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(providers, logger)

	collector := metrics.NewCollector(cfg.Metrics.Namespace, logger)

	stores, err := openStores(ctx, cfg, false, collector, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("closing stores", zap.Error(err))
		}
	}()

	handler := buildRouter(ctx, routerDeps{
		blobs:    stores.blobs,
		metadata: stores.metadata,
		checks: []handlers.HealthCheck{
			handlers.NewPingCheck("metadata", stores.pool.Ping),
			handlers.NewPingCheck("blobs", stores.blobs.Ping),
		},
		collector: collector,
		server:    cfg.Server,
		logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	api := server.NewManager("api", handler, server.ConfigFrom(cfg.Server, cfg.Server.HTTPPort), logger)
	g.Go(func() error { return api.Run(gctx) })

	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		ms := server.NewManager("metrics", mux, server.ConfigFrom(cfg.Server, cfg.Server.MetricsPort), logger)
		g.Go(func() error { return ms.Run(gctx) })
	}

	return g.Wait()
}

// routerDeps buildRouter 的依赖
type routerDeps struct {
	blobs     handlers.BlobReader
	metadata  handlers.MetadataReader
	checks    []handlers.HealthCheck
	collector *metrics.Collector
	server    config.ServerConfig
	logger    *zap.Logger
}

// buildRouter 注册所有路由并套上中间件链。ctx 结束时限流器的清理协程退出。
func buildRouter(ctx context.Context, d routerDeps) http.Handler {
	logger := d.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()

	health := handlers.NewHealthHandler(logger)
	for _, c := range d.checks {
		health.RegisterCheck(c)
	}
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	handlers.NewAssetHandler(d.blobs, d.metadata, logger).Register(mux)

	if d.server.MetricsPort == 0 {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return Chain(mux,
		RequestID(),
		Recovery(logger),
		SecurityHeaders(),
		RequestLogger(logger),
		MetricsMiddleware(d.collector),
		OTelTracing(),
		CORS(d.server.CORSAllowedOrigins),
		RateLimiter(ctx, d.server.RateLimitRPS, d.server.RateLimitBurst, logger),
	)
}
