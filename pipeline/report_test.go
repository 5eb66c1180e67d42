package pipeline

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/meshflow/types"
)

func sampleReport() *Report {
	r := newReport()
	r.add(Entry{
		ItemID:     "dressA",
		FolderID:   "dressA",
		SourceFile: "dressA.obj",
		Path:       "/out/dresses/dressA/dressA.glb",
		Category:   "dresses",
		Outcome:    Outcome{Kind: KindOK, Status: types.StatusOK},
		Analysis: types.Analysis{
			PolygonCount: types.IntPtr(12000),
			FileSizeKB:   types.IntPtr(2048),
			IsClosed:     types.BoolPtr(true),
			Genus:        types.IntPtr(0),
			SurfaceArea:  types.FloatPtr(6),
			Success:      true,
		},
	})
	r.add(Entry{
		ItemID:   "dressB",
		Category: "dresses",
		Outcome: failure(KindConversionError, types.Fail("GLB conversion failed"),
			types.NewError(types.ErrConversion, "GLB conversion failed").WithCause(errors.New("bad face"))),
	})
	r.add(Entry{
		ItemID:   "dressC",
		Category: "dresses",
		Outcome:  Outcome{Kind: KindPolicySkip, Status: types.Skipped("no texture")},
	})
	r.StartedAt = time.Now().Add(-1500 * time.Millisecond)
	r.finish(r.Blobs)
	return r
}

func TestReport_Counters(t *testing.T) {
	r := sampleReport()
	assert.Equal(t, 1, r.Inserted)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Skipped)
	assert.GreaterOrEqual(t, r.Duration(), 1500*time.Millisecond)

	e, ok := r.Find("dressB")
	require.True(t, ok)
	assert.Equal(t, "[CONVERSION_ERROR] GLB conversion failed: bad face", e.Detail())
	_, ok = r.Find("nope")
	assert.False(t, ok)
}

func TestReport_RenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().RenderTable(&buf))

	out := buf.String()
	assert.Contains(t, out, "dressA")
	assert.Contains(t, out, "12,000")
	assert.Contains(t, out, "2.0 MiB")
	assert.Contains(t, out, "FAIL: GLB conversion failed")
	assert.Contains(t, out, "SKIPPED: no texture")
	// go-pretty 默认把页脚转为大写
	assert.Contains(t, out, "INSERTED 1 / FAILED 1 / SKIPPED 1")
}

func TestReport_ParquetExport(t *testing.T) {
	r := sampleReport()
	path := filepath.Join(t.TempDir(), "report.parquet")
	require.NoError(t, r.WriteParquet(path))

	rows, err := ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	ok := rows[0]
	assert.Equal(t, r.RunID.String(), ok.RunID)
	assert.Equal(t, "dressA", ok.ItemID)
	assert.Equal(t, "ok", ok.Kind)
	require.NotNil(t, ok.PolygonCount)
	assert.Equal(t, int64(12000), *ok.PolygonCount)
	require.NotNil(t, ok.IsClosed)
	assert.True(t, *ok.IsClosed)
	assert.Nil(t, ok.AvgEdgeLength)
	assert.True(t, ok.AnalysisSuccess)

	failed := rows[1]
	assert.Equal(t, "conversion_error", failed.Kind)
	assert.Contains(t, failed.Detail, "bad face")
	assert.Nil(t, failed.PolygonCount)
}

func TestReport_WriteParquetBadPath(t *testing.T) {
	err := sampleReport().WriteParquet(filepath.Join(t.TempDir(), "missing", "r.parquet"))
	assert.Error(t, err)
}

func TestOutcomeKind(t *testing.T) {
	assert.True(t, KindStoreWriteError.Failed())
	assert.True(t, KindScanError.Failed())
	assert.False(t, KindPolicySkip.Failed())
	assert.False(t, KindAnalysisDegraded.Failed())
	assert.True(t, KindAnalysisDegraded.Inserted())
	assert.False(t, KindConversionError.Inserted())
}
