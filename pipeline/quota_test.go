package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/meshflow/mesh"
	"github.com/BaSui01/meshflow/scanner"
	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/testutil/mocks"
	"github.com/BaSui01/meshflow/types"
)

func TestQuotaCounter(t *testing.T) {
	q := NewQuotaCounter(2)
	assert.False(t, q.Full("dresses"))

	n, ok := q.TryAccept("dresses")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	n, ok = q.TryAccept("dresses")
	assert.True(t, ok)
	assert.Equal(t, 2, n)
	assert.True(t, q.Full("dresses"))

	n, ok = q.TryAccept("dresses")
	assert.False(t, ok)
	assert.Equal(t, 2, n)
	assert.False(t, q.Full("tops"))
	assert.Equal(t, map[string]int{"dresses": 2}, q.Snapshot())

	q.Reset()
	assert.Equal(t, 0, q.Count("dresses"))
}

func TestQuotaCounter_Unlimited(t *testing.T) {
	q := NewQuotaCounter(0)
	for i := 0; i < 10; i++ {
		_, ok := q.TryAccept("dresses")
		assert.True(t, ok)
	}
	assert.False(t, q.Full("dresses"))
}

// =============================================================================
// 🎲 配额属性测试
// =============================================================================

// stubConverter 写出占位 GLB，stem 以 bad 开头时失败
type stubConverter struct{}

func (stubConverter) Convert(src, outDir string) (mesh.Conversion, error) {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	if strings.HasPrefix(stem, "bad") {
		return mesh.Conversion{}, errors.New("unparsable")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return mesh.Conversion{}, err
	}
	out := filepath.Join(outDir, stem+".glb")
	if err := os.WriteFile(out, []byte("glTF"), 0o644); err != nil {
		return mesh.Conversion{}, err
	}
	return mesh.Conversion{OutputPath: out, Bytes: 4}, nil
}

// stubAnalyzer stem 以 plain 开头时视为无贴图
type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(path string, policy mesh.Policy) (types.Analysis, error) {
	if policy == mesh.PolicyGated && strings.HasPrefix(filepath.Base(path), "plain") {
		return types.Analysis{}, mesh.ErrNoTexture
	}
	return types.Analysis{PolygonCount: types.IntPtr(2), Success: true}, nil
}

// memMetadata 内存元数据存储
type memMetadata struct {
	rows map[string]types.ItemRecord
}

func (m *memMetadata) Ping(context.Context) error  { return nil }
func (m *memMetadata) Reset(context.Context) error { clear(m.rows); return nil }
func (m *memMetadata) Upsert(_ context.Context, rec types.ItemRecord) error {
	m.rows[rec.ItemID] = rec
	return nil
}
func (m *memMetadata) Delete(_ context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

// sliceWalker 按给定顺序交出文件夹
type sliceWalker []scanner.Folder

func (w sliceWalker) Walk(ctx context.Context, _ []string, visit func(scanner.Folder) error) error {
	for _, f := range w {
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func TestProperty_QuotaNeverExceeded(t *testing.T) {
	base := t.TempDir()
	categories := []string{"dresses", "tops", "trousers"}
	prefixes := []string{"ok", "bad", "plain"}

	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 3).Draw(rt, "limit")
		policy := rapid.SampledFrom([]mesh.Policy{mesh.PolicyGated, mesh.PolicyUngated}).Draw(rt, "policy")
		folderCount := rapid.IntRange(0, 12).Draw(rt, "folders")

		runDir, err := os.MkdirTemp(base, "run")
		if err != nil {
			rt.Fatalf("mkdir: %v", err)
		}

		var folders []scanner.Folder
		for i := 0; i < folderCount; i++ {
			category := rapid.SampledFrom(categories).Draw(rt, fmt.Sprintf("category_%d", i))
			name := fmt.Sprintf("item%02d", i)
			dir := filepath.Join(runDir, "src", category, name)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				rt.Fatalf("mkdir: %v", err)
			}
			sources := rapid.IntRange(1, 3).Draw(rt, fmt.Sprintf("sources_%d", i))
			folder := scanner.Folder{Path: dir, Name: name, Category: category, HasOBJ: true}
			for s := 0; s < sources; s++ {
				prefix := rapid.SampledFrom(prefixes).Draw(rt, fmt.Sprintf("kind_%d_%d", i, s))
				src := filepath.Join(dir, fmt.Sprintf("%s_%d.obj", prefix, s))
				if err := os.WriteFile(src, []byte("# obj"), 0o644); err != nil {
					rt.Fatalf("write: %v", err)
				}
				folder.Sources = append(folder.Sources, src)
			}
			folders = append(folders, folder)
		}

		meta := &memMetadata{rows: map[string]types.ItemRecord{}}
		bucket := mocks.NewMockBucket()
		o, err := New(Config{
			OutputDir:      filepath.Join(runDir, "out"),
			MaxPerCategory: limit,
			Policy:         policy,
		}, Deps{
			Walker:    sliceWalker(folders),
			Converter: stubConverter{},
			Analyzer:  stubAnalyzer{},
			Metadata:  meta,
			Blobs:     store.NewBlobStore(bucket, zap.NewNop()),
		}, zap.NewNop())
		if err != nil {
			rt.Fatalf("new: %v", err)
		}

		report, err := o.Process(context.Background())
		if err != nil {
			rt.Fatalf("process: %v", err)
		}

		accepted := map[string]int{}
		for _, e := range report.Entries {
			if e.Kind.Inserted() {
				accepted[e.Category]++
			}
			if policy == mesh.PolicyGated && strings.HasPrefix(e.SourceFile, "plain") {
				if !e.Status.IsSkipped() {
					rt.Fatalf("%s: gated plain mesh has status %q", e.ItemID, e.Status)
				}
				if _, ok := meta.rows[e.ItemID]; ok {
					rt.Fatalf("%s: gated plain mesh reached metadata store", e.ItemID)
				}
			}
		}
		for category, n := range accepted {
			if n > limit {
				rt.Fatalf("category %s accepted %d > %d", category, n, limit)
			}
			if n != o.Quota().Count(category) {
				rt.Fatalf("category %s: report %d, counter %d", category, n, o.Quota().Count(category))
			}
		}
		if len(meta.rows) != report.Inserted {
			rt.Fatalf("metadata rows %d, inserted %d", len(meta.rows), report.Inserted)
		}
		if len(bucket.Files()) != report.Inserted {
			rt.Fatalf("blobs %d, inserted %d", len(bucket.Files()), report.Inserted)
		}
		if report.Inserted+report.Failed+report.Skipped != len(report.Entries) {
			rt.Fatalf("counters do not add up: %+v", report)
		}
	})
}
