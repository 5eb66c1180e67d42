package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/internal/ctxkeys"
	"github.com/BaSui01/meshflow/internal/metrics"
	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/scanner"
	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/types"
)

const instrumentationName = "github.com/BaSui01/meshflow/pipeline"

// =============================================================================
// 🔌 依赖接口
// =============================================================================

// FolderWalker 遍历数据集根目录
type FolderWalker interface {
	Walk(ctx context.Context, roots []string, visit func(scanner.Folder) error) error
}

// MeshConverter 网格格式转换
type MeshConverter interface {
	Convert(sourcePath, outDir string) (mesh.Conversion, error)
}

// MeshAnalyzer 网格特征分析
type MeshAnalyzer interface {
	Analyze(path string, policy mesh.Policy) (types.Analysis, error)
}

// MetadataWriter 元数据存储
type MetadataWriter interface {
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	Get(ctx context.Context, itemID string) (*store.ItemRow, error)
	Upsert(ctx context.Context, rec types.ItemRecord) error
	Restore(ctx context.Context, row store.ItemRow) error
	Delete(ctx context.Context, itemID string) error
}

// BlobWriter 二进制产物存储
type BlobWriter interface {
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
	Put(ctx context.Context, itemID, filename string, r io.Reader, meta store.BlobMetadata) error
	Summary() store.BlobSummary
}

// Deps 编排器依赖的组件，全部必填
type Deps struct {
	Walker    FolderWalker
	Converter MeshConverter
	Analyzer  MeshAnalyzer
	Metadata  MetadataWriter
	Blobs     BlobWriter
}

func (d Deps) validate() error {
	var missing []string
	if d.Walker == nil {
		missing = append(missing, "walker")
	}
	if d.Converter == nil {
		missing = append(missing, "converter")
	}
	if d.Analyzer == nil {
		missing = append(missing, "analyzer")
	}
	if d.Metadata == nil {
		missing = append(missing, "metadata")
	}
	if d.Blobs == nil {
		missing = append(missing, "blobs")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing dependencies: %s", strings.Join(missing, ", "))
	}
	return nil
}

// =============================================================================
// ⚙️ 配置
// =============================================================================

// Config 单次运行的参数
type Config struct {
	DatasetDirs    []string
	OutputDir      string
	MaxPerCategory int
	Policy         mesh.Policy
	// 开始前清空两个存储
	ResetStores bool
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithMetrics 设置 Prometheus 指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *Orchestrator) {
		o.metrics = c
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithMeter 设置 OTel meter，默认使用全局 MeterProvider
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) {
		o.meter = m
	}
}

// =============================================================================
// 🎼 编排器
// =============================================================================

// Orchestrator 驱动 扫描 → 转换 → 分析 → 入库 的单线程批处理
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	metrics     *metrics.Collector
	tracer      trace.Tracer
	meter       metric.Meter
	itemCounter metric.Int64Counter

	quota *QuotaCounter
}

// New 创建编排器
func New(cfg Config, deps Deps, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if cfg.MaxPerCategory <= 0 {
		return nil, fmt.Errorf("max per category must be positive, got %d", cfg.MaxPerCategory)
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if cfg.Policy == "" {
		cfg.Policy = mesh.PolicyUngated
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(zap.String("component", "orchestrator")),
		quota:  NewQuotaCounter(cfg.MaxPerCategory),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(instrumentationName)
	}
	if o.meter == nil {
		o.meter = otel.Meter(instrumentationName)
	}

	counter, err := o.meter.Int64Counter("meshflow.pipeline.items",
		metric.WithDescription("Processed source files by outcome"),
		metric.WithUnit("{item}"))
	if err != nil {
		o.logger.Warn("failed to create otel item counter", zap.Error(err))
		counter, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("meshflow.pipeline.items")
	}
	o.itemCounter = counter

	return o, nil
}

// Quota 返回配额计数器，只读使用
func (o *Orchestrator) Quota() *QuotaCounter {
	return o.quota
}

// Process 执行一次完整批处理。
//
// 单个条目的失败都记录在报告里，不会中止批次。返回的 error 只在两种情况下非 nil：
// 存储初始化失败（SETUP_ERROR，此时尚未处理任何条目），或 ctx 被取消
// （此时返回截至取消时的部分报告）。
func (o *Orchestrator) Process(ctx context.Context) (*Report, error) {
	report := newReport()
	ctx = ctxkeys.WithRunID(ctx, report.RunID.String())
	ctx, span := o.tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			attribute.String("run.id", report.RunID.String()),
			attribute.String("pipeline.policy", string(o.cfg.Policy)),
			attribute.Int("pipeline.max_per_category", o.cfg.MaxPerCategory),
		))
	defer span.End()

	o.logger.Info("pipeline run started",
		zap.String("run_id", report.RunID.String()),
		zap.Strings("dataset_dirs", o.cfg.DatasetDirs),
		zap.String("policy", string(o.cfg.Policy)),
		zap.Int("max_per_category", o.cfg.MaxPerCategory),
	)

	if err := o.setup(ctx); err != nil {
		report.finish(store.BlobSummary{})
		span.RecordError(err)
		span.SetStatus(codes.Error, "setup failed")
		o.metrics.RecordRun("setup_error", report.Duration())
		o.logger.Error("pipeline setup failed", zap.Error(err))
		return report, err
	}

	o.quota.Reset()
	o.metrics.ResetCategoryAccepted()

	walkErr := o.deps.Walker.Walk(ctx, o.cfg.DatasetDirs, func(folder scanner.Folder) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.processFolder(ctx, folder, report)
		return nil
	})

	summary := o.deps.Blobs.Summary()
	report.finish(summary)
	o.metrics.RecordBlobSummary(summary.Uploaded, summary.Deleted, summary.Failed)

	span.SetAttributes(
		attribute.Int("pipeline.inserted", report.Inserted),
		attribute.Int("pipeline.failed", report.Failed),
		attribute.Int("pipeline.skipped", report.Skipped),
	)

	if walkErr != nil {
		span.RecordError(walkErr)
		span.SetStatus(codes.Error, "run interrupted")
		o.metrics.RecordRun("interrupted", report.Duration())
		o.logger.Warn("pipeline run interrupted",
			zap.Int("entries", len(report.Entries)),
			zap.Error(walkErr),
		)
		return report, fmt.Errorf("pipeline interrupted: %w", walkErr)
	}

	o.metrics.RecordRun("completed", report.Duration())
	o.logger.Info("pipeline run completed",
		zap.String("run_id", report.RunID.String()),
		zap.Int("inserted", report.Inserted),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int64("blobs_uploaded", summary.Uploaded),
		zap.Int64("blobs_replaced", summary.Deleted),
		zap.Int64("blobs_failed", summary.Failed),
		zap.Duration("duration", report.Duration()),
	)
	return report, nil
}

// setup 检查两个存储可用，按需清空
func (o *Orchestrator) setup(ctx context.Context) error {
	if err := o.deps.Metadata.Ping(ctx); err != nil {
		return types.NewError(types.ErrSetup, "metadata store unavailable").WithCause(err)
	}
	if err := o.deps.Blobs.Ping(ctx); err != nil {
		return types.NewError(types.ErrSetup, "blob store unavailable").WithCause(err)
	}
	if !o.cfg.ResetStores {
		return nil
	}
	if err := o.deps.Metadata.Reset(ctx); err != nil {
		return types.NewError(types.ErrSetup, "reset metadata store").WithCause(err)
	}
	if err := o.deps.Blobs.Reset(ctx); err != nil {
		return types.NewError(types.ErrSetup, "reset blob store").WithCause(err)
	}
	o.logger.Info("stores reset before run")
	return nil
}

// =============================================================================
// 📁 文件夹处理
// =============================================================================

func (o *Orchestrator) processFolder(ctx context.Context, folder scanner.Folder, report *Report) {
	if folder.Failed() {
		entry := Entry{
			ItemID:   folder.Name,
			FolderID: folder.Name,
			Path:     folder.Path,
			Category: folder.Category,
			Outcome: failure(KindScanError,
				types.Fail("%v", folder.Err),
				types.NewError(types.ErrScan, "list folder").WithCause(folder.Err).WithItem(folder.Name)),
		}
		o.record(ctx, report, entry)
		return
	}

	if len(folder.Sources) == 0 {
		return
	}

	// 达到上限的类别整个文件夹跳过，不产生报告条目
	if o.quota.Full(folder.Category) {
		o.logger.Debug("category quota reached, folder skipped",
			zap.String("folder", folder.Path),
			zap.String("category", folder.Category),
		)
		return
	}

	base := baseRecord(folder)
	for _, src := range folder.Sources {
		// 同一文件夹内的多个源文件逐个占用名额
		if o.quota.Full(folder.Category) {
			o.logger.Debug("category quota reached mid-folder",
				zap.String("folder", folder.Path),
				zap.String("source", src),
			)
			break
		}
		o.record(ctx, report, o.processFile(ctx, folder, src, base))
	}
}

// baseRecord 由文件夹标志构造条目模板
func baseRecord(folder scanner.Folder) types.ItemRecord {
	return types.ItemRecord{
		FolderID:     folder.Name,
		Path:         folder.Path,
		SourcePath:   folder.Path,
		HasOBJ:       folder.HasOBJ,
		HasMTL:       folder.HasMTL,
		HasPCD:       folder.HasPCD,
		HasKeypoints: folder.HasKeypoints,
		HasBorder:    folder.HasBorder,
		Textures:     folder.Textures,
		Category:     folder.Category,
		SourceFormat: types.SourceFormatOBJ,
		ConvertedTo:  types.ConvertedGLB,
	}
}

// ItemID 计算条目 ID：文件夹只有一个源文件时用文件夹名，否则为 <folder>__<stem>
func ItemID(folder scanner.Folder, sourcePath string) string {
	if len(folder.Sources) <= 1 {
		return folder.Name
	}
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return folder.Name + "__" + stem
}

// =============================================================================
// 🧵 单个源文件
// =============================================================================

func (o *Orchestrator) processFile(ctx context.Context, folder scanner.Folder, src string, base types.ItemRecord) (entry Entry) {
	rec := base.Clone()
	rec.ItemID = ItemID(folder, src)
	rec.SourceFile = filepath.Base(src)

	entry = Entry{
		ItemID:     rec.ItemID,
		FolderID:   rec.FolderID,
		SourceFile: rec.SourceFile,
		Path:       rec.Path,
		Category:   rec.Category,
	}

	ctx, span := o.tracer.Start(ctx, "pipeline.item",
		trace.WithAttributes(
			attribute.String("item.id", rec.ItemID),
			attribute.String("item.category", rec.Category),
			attribute.String("item.source", rec.SourceFile),
		))
	defer func() {
		span.SetAttributes(attribute.String("item.outcome", string(entry.Kind)))
		if entry.Err != nil {
			span.RecordError(entry.Err)
		}
		if entry.Kind.Failed() {
			span.SetStatus(codes.Error, entry.Status.Reason())
		}
		span.End()
	}()

	stage := "convert"
	// 元数据写入成功后置为 true，blob 写入成功后复位
	var previous *store.ItemRow
	pendingBlob := false
	defer func() {
		if r := recover(); r != nil {
			kind, errKind := KindConversionError, types.ErrConversion
			if stage == "upload" {
				kind, errKind = KindStoreWriteError, types.ErrStoreWrite
			}
			if pendingBlob {
				o.revertMetadata(context.WithoutCancel(ctx), rec.ItemID, previous)
			}
			cause := fmt.Errorf("panic: %v", r)
			entry.Outcome = failure(kind, types.Fail("internal error: %v", r),
				types.NewError(errKind, "panic during "+stage).WithCause(cause).WithItem(rec.ItemID))
			o.logger.Error("recovered panic while processing item",
				zap.String("item_id", rec.ItemID),
				zap.String("stage", stage),
				zap.Any("panic", r),
			)
		}
	}()

	// 转换
	outDir := filepath.Join(o.cfg.OutputDir, folder.Category, folder.Name)
	started := time.Now()
	conv, err := o.deps.Converter.Convert(src, outDir)
	o.metrics.RecordStage("convert", time.Since(started))
	if err != nil {
		o.logger.Warn("mesh conversion failed",
			zap.String("item_id", rec.ItemID),
			zap.String("source", src),
			zap.Error(err),
		)
		entry.Outcome = failure(KindConversionError, types.Fail("GLB conversion failed"),
			types.NewError(types.ErrConversion, "GLB conversion failed").WithCause(err).WithItem(rec.ItemID))
		return entry
	}
	rec.Path = conv.OutputPath
	entry.Path = conv.OutputPath
	for _, w := range conv.Warnings {
		rec.AddNote(w)
	}
	o.metrics.RecordGLBSize(conv.Bytes)

	// 分析
	stage = "analyze"
	started = time.Now()
	analysis, err := o.deps.Analyzer.Analyze(conv.OutputPath, o.cfg.Policy)
	o.metrics.RecordStage("analyze", time.Since(started))
	switch {
	case errors.Is(err, mesh.ErrNoTexture):
		if rmErr := os.Remove(conv.OutputPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			o.logger.Warn("failed to remove gated artifact",
				zap.String("path", conv.OutputPath),
				zap.Error(rmErr),
			)
		}
		o.logger.Info("item skipped by texture gate", zap.String("item_id", rec.ItemID))
		entry.Path = rec.SourcePath
		entry.Outcome = Outcome{
			Kind:   KindPolicySkip,
			Status: types.Skipped("no texture"),
			Err:    types.NewError(types.ErrPolicySkip, "no texture").WithItem(rec.ItemID),
		}
		return entry
	case err != nil:
		o.logger.Warn("mesh analysis failed", zap.String("item_id", rec.ItemID), zap.Error(err))
		analysis = types.Analysis{FileSizeKB: analysis.FileSizeKB}
	}
	rec.Analysis = analysis
	entry.Analysis = analysis

	kind := KindOK
	var degraded error
	if !analysis.Success {
		kind = KindAnalysisDegraded
		rec.AddNote("analysis failed")
		degraded = types.NewError(types.ErrAnalysis, "feature extraction failed").WithCause(err).WithItem(rec.ItemID)
	}

	// 入库：先元数据，再 blob
	stage = "upload"
	started = time.Now()
	defer func() { o.metrics.RecordStage("upload", time.Since(started)) }()
	rec.Status = types.StatusOK

	previous, err = o.deps.Metadata.Get(ctx, rec.ItemID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		o.logger.Error("metadata lookup failed", zap.String("item_id", rec.ItemID), zap.Error(err))
		entry.Outcome = failure(KindStoreWriteError, types.Fail("Upload failed: %v", err),
			types.NewError(types.ErrStoreWrite, "metadata lookup").WithCause(err).WithItem(rec.ItemID))
		return entry
	}

	if err := o.deps.Metadata.Upsert(ctx, rec); err != nil {
		o.logger.Error("metadata upsert failed", zap.String("item_id", rec.ItemID), zap.Error(err))
		entry.Outcome = failure(KindStoreWriteError, types.Fail("Upload failed: %v", err),
			types.NewError(types.ErrStoreWrite, "metadata upsert").WithCause(err).WithItem(rec.ItemID))
		return entry
	}

	pendingBlob = true
	if err := o.putBlob(ctx, rec); err != nil {
		pendingBlob = false
		o.logger.Error("blob upload failed", zap.String("item_id", rec.ItemID), zap.Error(err))
		o.revertMetadata(context.WithoutCancel(ctx), rec.ItemID, previous)
		entry.Outcome = failure(KindStoreWriteError, types.Fail("Upload failed: %v", err),
			types.NewError(types.ErrStoreWrite, "blob put").WithCause(err).WithItem(rec.ItemID))
		return entry
	}

	pendingBlob = false

	accepted, _ := o.quota.TryAccept(rec.Category)
	o.metrics.SetCategoryAccepted(rec.Category, accepted)

	entry.Outcome = Outcome{Kind: kind, Status: types.StatusOK, Err: degraded}
	o.logger.Info("item ingested",
		zap.String("item_id", rec.ItemID),
		zap.String("category", rec.Category),
		zap.Int("category_accepted", accepted),
		zap.Bool("analysis_success", analysis.Success),
	)
	return entry
}

// revertMetadata 撤销本次 upsert：之前有行则写回旧行，否则删除
func (o *Orchestrator) revertMetadata(ctx context.Context, itemID string, previous *store.ItemRow) {
	var err error
	if previous != nil {
		err = o.deps.Metadata.Restore(ctx, *previous)
	} else {
		err = o.deps.Metadata.Delete(ctx, itemID)
	}
	if err != nil {
		o.logger.Error("failed to roll back metadata row",
			zap.String("item_id", itemID),
			zap.Bool("restore", previous != nil),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) putBlob(ctx context.Context, rec types.ItemRecord) error {
	f, err := os.Open(rec.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	return o.deps.Blobs.Put(ctx, rec.ItemID, filepath.Base(rec.Path), f, store.BlobMetadata{
		ItemID:     rec.ItemID,
		Path:       rec.SourcePath,
		SourceFile: rec.SourceFile,
		Category:   rec.Category,
	})
}

// record 追加报告条目并记录指标
func (o *Orchestrator) record(ctx context.Context, report *Report, entry Entry) {
	report.add(entry)
	o.metrics.RecordItem(entry.Category, string(entry.Kind))
	o.itemCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", entry.Category),
		attribute.String("outcome", string(entry.Kind)),
	))
}
