package main

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/config"
	"github.com/BaSui01/meshflow/internal/database"
	"github.com/BaSui01/meshflow/internal/metrics"
	"github.com/BaSui01/meshflow/internal/migration"
	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/types"
)

// storeSet 一次命令执行期间持有的两个存储及其底层连接
type storeSet struct {
	pool     *database.PoolManager
	metadata *store.MetadataStore
	gridfs   *store.GridFSBucket
	blobs    *store.BlobStore
}

// openStores 连接元数据库与 GridFS。任何一步失败都返回 SETUP_ERROR，
// 已打开的连接会被关闭。
func openStores(ctx context.Context, cfg *config.Config, runMigrations bool, collector *metrics.Collector, logger *zap.Logger) (*storeSet, error) {
	if runMigrations {
		if err := migrateUp(ctx, cfg.Database, logger); err != nil {
			return nil, types.NewError(types.ErrSetup, "run migrations").WithCause(err)
		}
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, types.NewError(types.ErrSetup, "open metadata store").WithCause(err)
	}

	pool, err := database.NewPoolManager(db, database.PoolConfigFrom(cfg.Database), logger, database.WithMetrics(collector))
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
		return nil, types.NewError(types.ErrSetup, "configure connection pool").WithCause(err)
	}

	set := &storeSet{
		pool:     pool,
		metadata: store.NewMetadataStore(db, logger),
	}

	if cfg.Database.AutoMigrate {
		if err := set.metadata.AutoMigrate(ctx); err != nil {
			set.Close(ctx)
			return nil, types.NewError(types.ErrSetup, "auto-migrate metadata table").WithCause(err)
		}
	}

	bucket, err := store.ConnectGridFS(ctx, store.GridFSConfig{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		Bucket:         cfg.Mongo.Bucket,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
	}, logger)
	if err != nil {
		set.Close(ctx)
		return nil, types.NewError(types.ErrSetup, "connect blob store").WithCause(err)
	}
	set.gridfs = bucket
	set.blobs = store.NewBlobStore(bucket, logger)

	return set, nil
}

// Close 关闭所有已打开的连接
func (s *storeSet) Close(ctx context.Context) error {
	var errs []error
	if s.gridfs != nil {
		errs = append(errs, s.gridfs.Close(ctx))
	}
	if s.pool != nil {
		errs = append(errs, s.pool.Close())
	}
	return errors.Join(errs...)
}

func migrateUp(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return err
	}
	version, dirty, err := m.Version(ctx)
	if err != nil {
		return err
	}
	logger.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
