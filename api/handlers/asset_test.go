package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/testutil/mocks"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🧪 测试装置
// =============================================================================

type assetFixture struct {
	mux    *http.ServeMux
	meta   *store.MetadataStore
	bucket *mocks.MockBucket
	blobs  *store.BlobStore
}

func newAssetFixture(t *testing.T) *assetFixture {
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
	blobs := store.NewBlobStore(bucket, zap.NewNop())

	mux := http.NewServeMux()
	NewAssetHandler(blobs, meta, zap.NewNop()).Register(mux)
	return &assetFixture{mux: mux, meta: meta, bucket: bucket, blobs: blobs}
}

func (f *assetFixture) putItem(t *testing.T, itemID, category string, glb []byte) {
	t.Helper()
	ctx := context.Background()
	rec := types.ItemRecord{
		ItemID:   itemID,
		FolderID: itemID,
		Path:     "/out/" + category + "/" + itemID + "/" + itemID + ".glb",
		HasOBJ:   true,
		Category: category,
		Analysis: types.Analysis{Success: true, PolygonCount: types.IntPtr(12)},
	}
	require.NoError(t, f.meta.Upsert(ctx, rec))
	require.NoError(t, f.blobs.Put(ctx, itemID, itemID+".glb", bytes.NewReader(glb), store.BlobMetadata{
		ItemID:   itemID,
		Path:     "/data/" + category + "/" + itemID,
		Category: category,
	}))
}

func (f *assetFixture) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func decodeResponse(t *testing.T, body io.Reader, data any) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	if data != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}

// =============================================================================
// 🧪 GLB 下载
// =============================================================================

func TestAssetHandler_GLB(t *testing.T) {
	f := newAssetFixture(t)
	f.putItem(t, "dressA", "dresses", []byte("glTF-dressA"))

	w := f.get("/api/glb/dressA")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, GLBContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=dressA.glb`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "glTF-dressA", w.Body.String())
}

func TestAssetHandler_GLB_ReturnsLatestUpload(t *testing.T) {
	f := newAssetFixture(t)
	f.putItem(t, "dressA", "dresses", []byte("v1"))
	f.putItem(t, "dressA", "dresses", []byte("v2"))

	w := f.get("/api/glb/dressA")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v2", w.Body.String())
}

func TestAssetHandler_GLB_NotFound(t *testing.T) {
	f := newAssetFixture(t)

	w := f.get("/api/glb/missing")

	require.Equal(t, http.StatusNotFound, w.Code)
	resp := decodeResponse(t, w.Body, nil)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrNotFound), resp.Error.Code)
	assert.Equal(t, "missing", resp.Error.ItemID)
}

func TestAssetHandler_GLB_StoreFailure(t *testing.T) {
	f := newAssetFixture(t)
	f.bucket.WithFindError(errors.New("server selection timeout"))

	w := f.get("/api/glb/dressA")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// =============================================================================
// 🧪 元数据查询
// =============================================================================

func TestAssetHandler_Metadata(t *testing.T) {
	f := newAssetFixture(t)
	f.putItem(t, "dressA", "dresses", []byte("glb"))

	w := f.get("/api/metadata/dressA")
	require.Equal(t, http.StatusOK, w.Code)

	var row store.ItemRow
	resp := decodeResponse(t, w.Body, &row)
	assert.True(t, resp.Success)
	assert.Equal(t, "dressA", row.ItemID)
	assert.Equal(t, "dresses", row.Category)
	require.NotNil(t, row.PolygonCount)
	assert.Equal(t, 12, *row.PolygonCount)
	assert.Equal(t, types.ConvertedGLB, row.ConvertedTo)
}

func TestAssetHandler_Metadata_NotFound(t *testing.T) {
	f := newAssetFixture(t)

	w := f.get("/api/metadata/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssetHandler_ListMetadata(t *testing.T) {
	f := newAssetFixture(t)
	f.putItem(t, "dressA", "dresses", []byte("a"))
	f.putItem(t, "dressB", "dresses", []byte("b"))
	f.putItem(t, "shirtA", "shirts", []byte("c"))

	tests := []struct {
		name  string
		path  string
		code  int
		items []string
	}{
		{"all", "/api/metadata", http.StatusOK, []string{"dressA", "dressB", "shirtA"}},
		{"by category", "/api/metadata?category=dresses", http.StatusOK, []string{"dressA", "dressB"}},
		{"limited", "/api/metadata?limit=1", http.StatusOK, []string{"dressA"}},
		{"unknown category", "/api/metadata?category=hats", http.StatusOK, []string{}},
		{"bad limit", "/api/metadata?limit=zero", http.StatusBadRequest, nil},
		{"negative limit", "/api/metadata?limit=-3", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(tt.path)
			require.Equal(t, tt.code, w.Code)
			if tt.items == nil {
				return
			}
			var rows []store.ItemRow
			decodeResponse(t, w.Body, &rows)
			ids := make([]string, 0, len(rows))
			for _, r := range rows {
				ids = append(ids, r.ItemID)
			}
			assert.Equal(t, tt.items, ids)
		})
	}
}

// =============================================================================
// 🧪 条目列表
// =============================================================================

func TestAssetHandler_ListItems(t *testing.T) {
	f := newAssetFixture(t)
	f.putItem(t, "shirtA", "shirts", []byte("a"))
	f.putItem(t, "dressA", "dresses", []byte("b"))
	f.putItem(t, "dressA", "dresses", []byte("c"))

	w := f.get("/api/items")
	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	decodeResponse(t, w.Body, &ids)
	assert.Equal(t, []string{"dressA", "shirtA"}, ids)
}

func TestAssetHandler_ListItems_Empty(t *testing.T) {
	f := newAssetFixture(t)

	w := f.get("/api/items")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestAssetHandler_MethodNotAllowed(t *testing.T) {
	f := newAssetFixture(t)

	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/glb/dressA", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
