package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/internal/ctxkeys"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 📦 Blob 存储
// =============================================================================

// BlobMetadata 随 blob 一起保存的元数据
type BlobMetadata struct {
	ItemID     string `bson:"item_id" json:"item_id"`
	Path       string `bson:"path" json:"path"`
	SourceFile string `bson:"source_file,omitempty" json:"source_file,omitempty"`
	Category   string `bson:"category,omitempty" json:"category,omitempty"`
}

// BlobFile bucket 中的一个文件
type BlobFile struct {
	ID         string
	Filename   string
	Length     int64
	UploadDate time.Time
	Metadata   BlobMetadata
}

// BlobFilter 查询条件，空字段不参与过滤
type BlobFilter struct {
	ItemID   string
	Filename string
	// 文件名后缀，Filename 为空时生效
	Suffix string
}

// Matches 判断文件是否满足过滤条件
func (f BlobFilter) Matches(file BlobFile) bool {
	if f.ItemID != "" && file.Metadata.ItemID != f.ItemID {
		return false
	}
	if f.Filename != "" {
		return file.Filename == f.Filename
	}
	if f.Suffix != "" && !strings.HasSuffix(file.Filename, f.Suffix) {
		return false
	}
	return true
}

// Bucket 底层 blob 存储，生产实现为 GridFS
type Bucket interface {
	Upload(ctx context.Context, filename string, r io.Reader, meta BlobMetadata) (string, error)
	Find(ctx context.Context, filter BlobFilter) ([]BlobFile, error)
	Delete(ctx context.Context, id string) error
	Download(ctx context.Context, id string, w io.Writer) (int64, error)
	Drop(ctx context.Context) error
	Ping(ctx context.Context) error
}

// BlobSummary 上传计数
type BlobSummary struct {
	Uploaded int64 `json:"uploaded"`
	Deleted  int64 `json:"deleted"`
	Failed   int64 `json:"failed"`
}

// Blob 读取到内存的 blob
type Blob struct {
	Filename   string
	Data       []byte
	UploadDate time.Time
	Metadata   BlobMetadata
}

// BlobStore 在 Bucket 之上实现替换语义与计数
type BlobStore struct {
	bucket Bucket
	logger *zap.Logger

	uploaded atomic.Int64
	deleted  atomic.Int64
	failed   atomic.Int64
}

// NewBlobStore 创建 blob 存储
func NewBlobStore(bucket Bucket, logger *zap.Logger) *BlobStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobStore{bucket: bucket, logger: logger.With(zap.String("component", "blob_store"))}
}

// Put 上传 blob，并在新 blob 写入成功后删除同一 (filename, item_id) 的旧版本
func (s *BlobStore) Put(ctx context.Context, itemID, filename string, r io.Reader, meta BlobMetadata) error {
	meta.ItemID = itemID
	logger := s.logger.With(ctxkeys.Fields(ctx)...)

	previous, err := s.bucket.Find(ctx, BlobFilter{ItemID: itemID, Filename: filename})
	if err != nil {
		s.failed.Add(1)
		return fmt.Errorf("find previous %s: %w", filename, err)
	}

	id, err := s.bucket.Upload(ctx, filename, r, meta)
	if err != nil {
		s.failed.Add(1)
		logger.Error("blob upload failed", zap.String("item_id", itemID), zap.String("filename", filename), zap.Error(err))
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	s.uploaded.Add(1)

	for _, old := range previous {
		if old.ID == id {
			continue
		}
		if err := s.bucket.Delete(ctx, old.ID); err != nil {
			// 旧版本残留不影响读取，Open 总是返回最新一份
			logger.Warn("failed to retire previous blob",
				zap.String("item_id", itemID),
				zap.String("blob_id", old.ID),
				zap.Error(err),
			)
			continue
		}
		s.deleted.Add(1)
	}

	logger.Debug("blob stored",
		zap.String("item_id", itemID),
		zap.String("filename", filename),
		zap.String("blob_id", id),
		zap.Int("retired", len(previous)),
	)
	return nil
}

// Summary 返回计数快照
func (s *BlobStore) Summary() BlobSummary {
	return BlobSummary{
		Uploaded: s.uploaded.Load(),
		Deleted:  s.deleted.Load(),
		Failed:   s.failed.Load(),
	}
}

// Reset 删除整个 bucket
func (s *BlobStore) Reset(ctx context.Context) error {
	if err := s.bucket.Drop(ctx); err != nil {
		return fmt.Errorf("drop bucket: %w", err)
	}
	s.logger.Info("blob store reset")
	return nil
}

// Ping 检查底层存储连接
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.bucket.Ping(ctx)
}

// Open 返回条目最新的 .glb blob，不存在时返回 ErrNotFound
func (s *BlobStore) Open(ctx context.Context, itemID string) (*Blob, error) {
	files, err := s.bucket.Find(ctx, BlobFilter{ItemID: itemID, Suffix: "." + types.ConvertedGLB})
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", itemID, err)
	}
	if len(files) == 0 {
		return nil, ErrNotFound
	}

	latest := slices.MaxFunc(files, func(a, b BlobFile) int {
		if c := a.UploadDate.Compare(b.UploadDate); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	var buf bytes.Buffer
	if _, err := s.bucket.Download(ctx, latest.ID, &buf); err != nil {
		return nil, fmt.Errorf("download %s: %w", latest.Filename, err)
	}
	return &Blob{
		Filename:   latest.Filename,
		Data:       buf.Bytes(),
		UploadDate: latest.UploadDate,
		Metadata:   latest.Metadata,
	}, nil
}

// ListItemIDs 返回存有 .glb blob 的条目 id，去重并排序
func (s *BlobStore) ListItemIDs(ctx context.Context) ([]string, error) {
	files, err := s.bucket.Find(ctx, BlobFilter{Suffix: "." + types.ConvertedGLB})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		if f.Metadata.ItemID != "" {
			ids = append(ids, f.Metadata.ItemID)
		}
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
