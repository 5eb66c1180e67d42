package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/types"
)

// GLBContentType GLB 二进制的 MIME 类型
const GLBContentType = "model/gltf-binary"

// 单次列表最多返回的行数
const maxListLimit = 1000

// =============================================================================
// 📦 资产检索 Handler
// =============================================================================

// BlobReader 读取已上传的 GLB
type BlobReader interface {
	Open(ctx context.Context, itemID string) (*store.Blob, error)
	ListItemIDs(ctx context.Context) ([]string, error)
}

// MetadataReader 读取条目元数据
type MetadataReader interface {
	Get(ctx context.Context, itemID string) (*store.ItemRow, error)
	List(ctx context.Context, category string, limit int) ([]store.ItemRow, error)
}

// AssetHandler 提供 GLB 下载与元数据查询
type AssetHandler struct {
	blobs    BlobReader
	metadata MetadataReader
	logger   *zap.Logger
}

// NewAssetHandler 创建资产检索处理器
func NewAssetHandler(blobs BlobReader, metadata MetadataReader, logger *zap.Logger) *AssetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetHandler{
		blobs:    blobs,
		metadata: metadata,
		logger:   logger.With(zap.String("component", "asset_handler")),
	}
}

// Register 把检索路由挂到 mux 上
func (h *AssetHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/glb/{item_id}", h.HandleGLB)
	mux.HandleFunc("GET /api/metadata/{item_id}", h.HandleMetadata)
	mux.HandleFunc("GET /api/metadata", h.HandleListMetadata)
	mux.HandleFunc("GET /api/items", h.HandleListItems)
}

// HandleGLB GET /api/glb/{item_id}
// 返回条目最新上传的 GLB，作为附件下载
func (h *AssetHandler) HandleGLB(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}

	blob, err := h.blobs.Open(r.Context(), itemID)
	if err != nil {
		h.writeStoreError(w, itemID, "no GLB stored for item", err)
		return
	}

	h.logger.Debug("serving GLB",
		zap.String("item_id", itemID),
		zap.String("filename", blob.Filename),
		zap.String("size", humanize.IBytes(uint64(len(blob.Data)))),
	)

	w.Header().Set("Content-Type", GLBContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": blob.Filename}))
	http.ServeContent(w, r, blob.Filename, blob.UploadDate, bytes.NewReader(blob.Data))
}

// HandleMetadata GET /api/metadata/{item_id}
func (h *AssetHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.itemID(w, r)
	if !ok {
		return
	}

	row, err := h.metadata.Get(r.Context(), itemID)
	if err != nil {
		h.writeStoreError(w, itemID, "no metadata stored for item", err)
		return
	}
	WriteSuccess(w, row)
}

// HandleListMetadata GET /api/metadata?category=dresses&limit=50
func (h *AssetHandler) HandleListMetadata(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteErrorMessage(w, types.ErrInvalidRequest, fmt.Sprintf("invalid limit %q", raw), h.logger)
			return
		}
		limit = min(n, maxListLimit)
	}

	rows, err := h.metadata.List(r.Context(), q.Get("category"), limit)
	if err != nil {
		WriteError(w, types.NewError(types.ErrUnavailable, "metadata store unavailable").WithCause(err), h.logger)
		return
	}
	if rows == nil {
		rows = []store.ItemRow{}
	}
	WriteSuccess(w, rows)
}

// HandleListItems GET /api/items
// 返回 blob 存储中存在 GLB 的条目 id
func (h *AssetHandler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	ids, err := h.blobs.ListItemIDs(r.Context())
	if err != nil {
		WriteError(w, types.NewError(types.ErrUnavailable, "blob store unavailable").WithCause(err), h.logger)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	WriteSuccess(w, ids)
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *AssetHandler) itemID(w http.ResponseWriter, r *http.Request) (string, bool) {
	itemID := strings.TrimSpace(r.PathValue("item_id"))
	if itemID == "" {
		WriteErrorMessage(w, types.ErrInvalidRequest, "item id is required", h.logger)
		return "", false
	}
	return itemID, true
}

func (h *AssetHandler) writeStoreError(w http.ResponseWriter, itemID, notFoundMsg string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, types.NewError(types.ErrNotFound, notFoundMsg).WithItem(itemID), h.logger)
		return
	}
	WriteError(w, types.NewError(types.ErrUnavailable, "store lookup failed").WithItem(itemID).WithCause(err), h.logger)
}
