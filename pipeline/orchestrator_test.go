package pipeline

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/scanner"
	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/testutil"
	"github.com/BaSui01/meshflow/testutil/fixtures"
	"github.com/BaSui01/meshflow/testutil/mocks"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🧪 测试装置
// =============================================================================

type harness struct {
	root   string
	out    string
	meta   *store.MetadataStore
	bucket *mocks.MockBucket
	blobs  *store.BlobStore
	walker FolderWalker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "meta.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	meta := store.NewMetadataStore(db, zap.NewNop())
	require.NoError(t, meta.AutoMigrate(context.Background()))

	bucket := mocks.NewMockBucket()
	return &harness{
		root:   t.TempDir(),
		out:    t.TempDir(),
		meta:   meta,
		bucket: bucket,
		blobs:  store.NewBlobStore(bucket, zap.NewNop()),
		walker: scanner.New(zap.NewNop()),
	}
}

func (h *harness) deps() Deps {
	return Deps{
		Walker:    h.walker,
		Converter: mesh.NewConverter(zap.NewNop()),
		Analyzer:  mesh.NewAnalyzer(zap.NewNop()),
		Metadata:  h.meta,
		Blobs:     h.blobs,
	}
}

func (h *harness) config(max int, policy mesh.Policy) Config {
	return Config{
		DatasetDirs:    []string{h.root},
		OutputDir:      h.out,
		MaxPerCategory: max,
		Policy:         policy,
	}
}

func (h *harness) run(t *testing.T, cfg Config) *Report {
	t.Helper()
	o, err := New(cfg, h.deps(), zap.NewNop())
	require.NoError(t, err)
	report, err := o.Process(testutil.TestContext(t))
	require.NoError(t, err)
	return report
}

func (h *harness) count(t *testing.T) int64 {
	t.Helper()
	n, err := h.meta.Count(context.Background())
	require.NoError(t, err)
	return n
}

func itemIDs(r *Report) []string {
	ids := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		ids = append(ids, e.ItemID)
	}
	return ids
}

// =============================================================================
// 🧪 场景
// =============================================================================

func TestProcess_TexturedDressIsIngested(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())

	report := h.run(t, h.config(2, mesh.PolicyGated))

	require.Len(t, report.Entries, 1)
	entry := report.Entries[0]
	assert.Equal(t, "dressA", entry.ItemID)
	assert.Equal(t, types.StatusOK, entry.Status)
	assert.Equal(t, KindOK, entry.Kind)
	assert.True(t, entry.Analysis.Success)
	assert.Equal(t, filepath.Join(h.out, "dresses", "dressA", "dressA.glb"), entry.Path)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, int64(1), h.count(t))
	row, err := h.meta.Get(context.Background(), "dressA")
	require.NoError(t, err)
	assert.Equal(t, "dresses", row.Category)
	assert.True(t, row.HasOBJ)
	assert.True(t, row.HasMTL)
	assert.Equal(t, 1, row.TextureCount)
	assert.True(t, row.AnalysisSuccess)
	require.NotNil(t, row.PolygonCount)
	assert.Equal(t, 12, *row.PolygonCount)

	files := h.bucket.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "dressA.glb", files[0].Filename)
	assert.Equal(t, "dressA", files[0].Metadata.ItemID)
	assert.Equal(t, filepath.Join(h.root, "dresses", "dressA"), files[0].Metadata.Path)
	assert.Equal(t, "dressA.obj", files[0].Metadata.SourceFile)

	assert.Equal(t, int64(1), report.Blobs.Uploaded)
}

func TestProcess_FullCategorySkipsFolderEntirely(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())
	fixtures.WriteGarment(t, h.root, "dresses", "dressB", fixtures.Textured())
	fixtures.WriteGarment(t, h.root, "tops", "tee", fixtures.Textured())

	o, err := New(h.config(1, mesh.PolicyUngated), h.deps(), zap.NewNop())
	require.NoError(t, err)
	report, err := o.Process(testutil.TestContext(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"dressA", "tee"}, itemIDs(report))
	_, found := report.Find("dressB")
	assert.False(t, found)

	_, err = h.meta.Get(context.Background(), "dressB")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, h.bucket.Files(), 2)
	assert.NoDirExists(t, filepath.Join(h.out, "dresses", "dressB"))

	assert.Equal(t, 1, o.Quota().Count("dresses"))
	assert.Equal(t, 1, o.Quota().Count("tops"))
}

func TestProcess_QuotaRecheckedPerSourceFile(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Garment{
		Stems: []string{"a_front", "b_side", "c_back"},
		Shape: fixtures.Cube,
	})

	report := h.run(t, h.config(2, mesh.PolicyUngated))
	assert.Equal(t, []string{"dressA__a_front", "dressA__b_side"}, itemIDs(report))
	assert.Equal(t, int64(2), h.count(t))

	for _, e := range report.Entries {
		assert.Equal(t, "dressA", e.FolderID)
	}
}

func TestProcess_GateSkipRemovesArtifactAndKeepsQuota(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Plain())
	fixtures.WriteGarment(t, h.root, "dresses", "dressB", fixtures.Textured())

	o, err := New(h.config(1, mesh.PolicyGated), h.deps(), zap.NewNop())
	require.NoError(t, err)
	report, err := o.Process(testutil.TestContext(t))
	require.NoError(t, err)

	require.Len(t, report.Entries, 2)
	skipped := report.Entries[0]
	assert.Equal(t, "dressA", skipped.ItemID)
	assert.True(t, skipped.Status.IsSkipped())
	assert.Equal(t, types.Skipped("no texture"), skipped.Status)
	assert.Equal(t, KindPolicySkip, skipped.Kind)
	assert.NoFileExists(t, filepath.Join(h.out, "dresses", "dressA", "dressA.glb"))
	assert.Equal(t, []string{"dresses/dressB/dressB.glb"}, testutil.ListFiles(t, h.out))

	_, err = h.meta.Get(context.Background(), "dressA")
	assert.ErrorIs(t, err, store.ErrNotFound)
	for _, f := range h.bucket.Files() {
		assert.NotEqual(t, "dressA", f.Metadata.ItemID)
	}

	// 被跳过的条目不占名额
	assert.Equal(t, types.StatusOK, report.Entries[1].Status)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Inserted)
	assert.Equal(t, 1, o.Quota().Count("dresses"))
}

func TestProcess_UngatedAcceptsPlainMesh(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Plain())

	report := h.run(t, h.config(2, mesh.PolicyUngated))
	require.Len(t, report.Entries, 1)
	assert.Equal(t, types.StatusOK, report.Entries[0].Status)
	assert.Equal(t, int64(1), h.count(t))
}

func TestProcess_ConversionFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Garment{Broken: true})
	fixtures.WriteGarment(t, h.root, "dresses", "dressB", fixtures.Textured())

	report := h.run(t, h.config(2, mesh.PolicyGated))

	require.Len(t, report.Entries, 2)
	failed := report.Entries[0]
	assert.Equal(t, "dressA", failed.ItemID)
	assert.Equal(t, types.Fail("GLB conversion failed"), failed.Status)
	assert.Equal(t, KindConversionError, failed.Kind)
	assert.Equal(t, types.ErrConversion, types.GetErrorKind(failed.Err))

	assert.Equal(t, types.StatusOK, report.Entries[1].Status)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Inserted)
}

func TestProcess_MissingTextureIsNoted(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Garment{
		Shape:   fixtures.Cube,
		UV:      true,
		Texture: "missing.png",
	})

	report := h.run(t, h.config(2, mesh.PolicyUngated))
	require.Len(t, report.Entries, 1)
	assert.Equal(t, types.StatusOK, report.Entries[0].Status)

	row, err := h.meta.Get(context.Background(), "dressA")
	require.NoError(t, err)
	require.NotNil(t, row.MetadataNotes)
	assert.Contains(t, *row.MetadataNotes, "missing.png")
}

func TestProcess_RerunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())
	fixtures.WriteGarment(t, h.root, "tops", "tee", fixtures.Textured())

	first := h.run(t, h.config(2, mesh.PolicyGated))
	second := h.run(t, h.config(2, mesh.PolicyGated))

	assert.Equal(t, itemIDs(first), itemIDs(second))
	for i := range first.Entries {
		assert.Equal(t, first.Entries[i].Status, second.Entries[i].Status)
		assert.Equal(t, first.Entries[i].Analysis, second.Entries[i].Analysis)
	}
	assert.NotEqual(t, first.RunID, second.RunID)

	assert.Equal(t, int64(2), h.count(t))
	assert.Len(t, h.bucket.Files(), 2)
	assert.Equal(t, 4, h.bucket.UploadCalls())
	assert.Equal(t, 2, h.bucket.DeleteCalls())
}

func TestProcess_ResetStoresClearsPreviousRun(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())
	h.run(t, h.config(2, mesh.PolicyUngated))

	require.NoError(t, os.RemoveAll(filepath.Join(h.root, "dresses", "dressA")))
	fixtures.WriteGarment(t, h.root, "dresses", "dressB", fixtures.Textured())

	cfg := h.config(2, mesh.PolicyUngated)
	cfg.ResetStores = true
	report := h.run(t, cfg)

	assert.Equal(t, []string{"dressB"}, itemIDs(report))
	assert.Equal(t, int64(1), h.count(t))
	assert.Equal(t, 1, h.bucket.DropCalls())
	files := h.bucket.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "dressB.glb", files[0].Filename)
}

// =============================================================================
// 🧪 存储失败
// =============================================================================

func TestProcess_BlobFailureRemovesMetadataRow(t *testing.T) {
	h := newHarness(t)
	h.bucket.WithUploadError(errors.New("gridfs unavailable"))
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())
	fixtures.WriteGarment(t, h.root, "dresses", "dressB", fixtures.Textured())

	o, err := New(h.config(1, mesh.PolicyUngated), h.deps(), zap.NewNop())
	require.NoError(t, err)
	report, err := o.Process(testutil.TestContext(t))
	require.NoError(t, err)

	// 失败不占名额，dressB 依然会被尝试
	require.Len(t, report.Entries, 2)
	for _, e := range report.Entries {
		assert.Equal(t, KindStoreWriteError, e.Kind)
		assert.True(t, strings.HasPrefix(string(e.Status), "FAIL: Upload failed: "), e.Status)
		assert.Equal(t, types.ErrStoreWrite, types.GetErrorKind(e.Err))
	}
	assert.Equal(t, int64(0), h.count(t))
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, int64(2), report.Blobs.Failed)
	assert.Equal(t, 0, o.Quota().Count("dresses"))
}

func TestProcess_BlobFailureOnRerunRestoresPreviousRow(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())
	h.run(t, h.config(2, mesh.PolicyGated))

	before, err := h.meta.Get(context.Background(), "dressA")
	require.NoError(t, err)

	h.bucket.WithUploadError(errors.New("gridfs unavailable"))
	report := h.run(t, h.config(2, mesh.PolicyGated))
	require.Len(t, report.Entries, 1)
	assert.Equal(t, KindStoreWriteError, report.Entries[0].Kind)

	after, err := h.meta.Get(context.Background(), "dressA")
	require.NoError(t, err, "row from the first run must survive a failed re-upload")
	assert.Equal(t, *before, *after)
	assert.Len(t, h.bucket.Files(), 1)
}

// panickingBlobs 在 Put 中 panic
type panickingBlobs struct {
	*store.BlobStore
}

func (panickingBlobs) Put(context.Context, string, string, io.Reader, store.BlobMetadata) error {
	panic("bucket driver crashed")
}

func TestProcess_UploadPanicRollsBackMetadata(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())

	deps := h.deps()
	deps.Blobs = panickingBlobs{BlobStore: h.blobs}
	o, err := New(h.config(2, mesh.PolicyUngated), deps, zap.NewNop())
	require.NoError(t, err)

	report, err := o.Process(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, KindStoreWriteError, report.Entries[0].Kind)
	assert.Equal(t, types.ErrStoreWrite, types.GetErrorKind(report.Entries[0].Err))
	assert.Equal(t, int64(0), h.count(t))
	assert.Equal(t, 0, o.Quota().Count("dresses"))
}

type failingMetadata struct {
	*store.MetadataStore
	err error
}

func (f failingMetadata) Upsert(context.Context, types.ItemRecord) error {
	return f.err
}

func TestProcess_MetadataFailureSkipsBlob(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())

	deps := h.deps()
	deps.Metadata = failingMetadata{MetadataStore: h.meta, err: errors.New("deadlock detected")}
	o, err := New(h.config(2, mesh.PolicyUngated), deps, zap.NewNop())
	require.NoError(t, err)

	report, err := o.Process(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, types.Fail("Upload failed: deadlock detected"), report.Entries[0].Status)
	assert.Equal(t, 0, h.bucket.UploadCalls())
}

func TestProcess_SetupErrorAbortsBeforeAnyItem(t *testing.T) {
	h := newHarness(t)
	h.bucket.WithPingError(errors.New("connection refused"))
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())

	walked := false
	deps := h.deps()
	deps.Walker = walkerFunc(func(context.Context, []string, func(scanner.Folder) error) error {
		walked = true
		return nil
	})

	o, err := New(h.config(2, mesh.PolicyUngated), deps, zap.NewNop())
	require.NoError(t, err)
	report, err := o.Process(testutil.TestContext(t))

	require.Error(t, err)
	assert.Equal(t, types.ErrSetup, types.GetErrorKind(err))
	assert.True(t, types.IsFatal(err))
	assert.False(t, walked)
	require.NotNil(t, report)
	assert.Empty(t, report.Entries)
	assert.NoDirExists(t, filepath.Join(h.out, "dresses"))
}

func TestProcess_ResetFailureIsSetupError(t *testing.T) {
	h := newHarness(t)
	h.bucket.WithDropError(errors.New("not authorized"))

	cfg := h.config(2, mesh.PolicyUngated)
	cfg.ResetStores = true
	o, err := New(cfg, h.deps(), zap.NewNop())
	require.NoError(t, err)

	_, err = o.Process(testutil.TestContext(t))
	assert.Equal(t, types.ErrSetup, types.GetErrorKind(err))
}

// =============================================================================
// 🧪 扫描与取消
// =============================================================================

type walkerFunc func(ctx context.Context, roots []string, visit func(scanner.Folder) error) error

func (f walkerFunc) Walk(ctx context.Context, roots []string, visit func(scanner.Folder) error) error {
	return f(ctx, roots, visit)
}

func TestProcess_ScanErrorEntry(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())
	fixtures.WriteGarment(t, h.root, "dresses", "dressB", fixtures.Textured())

	broken := filepath.Join(h.root, "dresses", "dressA")
	h.walker = scanner.New(nil, scanner.WithReadDir(func(dir string) ([]fs.DirEntry, error) {
		if dir == broken {
			return nil, fs.ErrPermission
		}
		return os.ReadDir(dir)
	}))

	report := h.run(t, h.config(2, mesh.PolicyUngated))

	require.Len(t, report.Entries, 2)
	scanErr := report.Entries[0]
	assert.Equal(t, "dressA", scanErr.ItemID)
	assert.Equal(t, KindScanError, scanErr.Kind)
	assert.True(t, scanErr.Status.IsFail())
	assert.ErrorIs(t, scanErr.Err, fs.ErrPermission)
	assert.Equal(t, types.StatusOK, report.Entries[1].Status)
	assert.Equal(t, 1, report.Failed)
}

func TestProcess_CancelledContext(t *testing.T) {
	h := newHarness(t)
	fixtures.WriteGarment(t, h.root, "dresses", "dressA", fixtures.Textured())

	o, err := New(h.config(2, mesh.PolicyUngated), h.deps(), zap.NewNop())
	require.NoError(t, err)

	report, err := o.Process(testutil.CancelledContext())
	// ping 在 sqlite 上也会感知取消，两种错误都可以接受
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Entries)
}

func TestNew_Validation(t *testing.T) {
	h := newHarness(t)

	_, err := New(h.config(0, mesh.PolicyUngated), h.deps(), nil)
	assert.Error(t, err)

	cfg := h.config(1, mesh.PolicyUngated)
	cfg.OutputDir = ""
	_, err = New(cfg, h.deps(), nil)
	assert.Error(t, err)

	_, err = New(h.config(1, mesh.PolicyUngated), Deps{Walker: h.walker}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "converter, analyzer, metadata, blobs")

	o, err := New(Config{OutputDir: h.out, MaxPerCategory: 1}, h.deps(), nil)
	require.NoError(t, err)
	assert.Equal(t, mesh.PolicyUngated, o.cfg.Policy)
}

func TestItemID(t *testing.T) {
	single := scanner.Folder{Name: "dressA", Sources: []string{"/d/dressA/dressA.obj"}}
	assert.Equal(t, "dressA", ItemID(single, single.Sources[0]))

	multi := scanner.Folder{Name: "dressA", Sources: []string{"/d/dressA/front.obj", "/d/dressA/back.OBJ"}}
	assert.Equal(t, "dressA__front", ItemID(multi, multi.Sources[0]))
	assert.Equal(t, "dressA__back", ItemID(multi, multi.Sources[1]))
}
