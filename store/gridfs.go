package store

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

// =============================================================================
// 🍃 MongoDB GridFS 适配
// =============================================================================

// GridFSConfig GridFS 连接配置
type GridFSConfig struct {
	URI            string
	Database       string
	Bucket         string
	ConnectTimeout time.Duration
}

// GridFSBucket 基于 GridFS 的 Bucket 实现
type GridFSBucket struct {
	client *mongo.Client
	bucket *mongo.GridFSBucket
	logger *zap.Logger
}

// gridFSFile fs.files 文档
type gridFSFile struct {
	ID         bson.ObjectID `bson:"_id"`
	Filename   string        `bson:"filename"`
	Length     int64         `bson:"length"`
	UploadDate time.Time     `bson:"uploadDate"`
	Metadata   BlobMetadata  `bson:"metadata"`
}

// ConnectGridFS 连接 MongoDB 并确认可用，失败时返回错误
func ConnectGridFS(ctx context.Context, cfg GridFSConfig, logger *zap.Logger) (*GridFSBucket, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	bucket := client.Database(cfg.Database).GridFSBucket(options.GridFSBucket().SetName(cfg.Bucket))
	logger.Info("connected to gridfs",
		zap.String("database", cfg.Database),
		zap.String("bucket", cfg.Bucket),
	)
	return &GridFSBucket{
		client: client,
		bucket: bucket,
		logger: logger.With(zap.String("component", "gridfs")),
	}, nil
}

// Upload 写入新文件并返回其 id
func (g *GridFSBucket) Upload(ctx context.Context, filename string, r io.Reader, meta BlobMetadata) (string, error) {
	id, err := g.bucket.UploadFromStream(ctx, filename, r, options.GridFSUpload().SetMetadata(meta))
	if err != nil {
		return "", err
	}
	return id.Hex(), nil
}

// Find 按条件查询 fs.files
func (g *GridFSBucket) Find(ctx context.Context, filter BlobFilter) ([]BlobFile, error) {
	cursor, err := g.bucket.Find(ctx, filterDocument(filter))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []gridFSFile
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode gridfs files: %w", err)
	}
	out := make([]BlobFile, 0, len(docs))
	for _, d := range docs {
		out = append(out, BlobFile{
			ID:         d.ID.Hex(),
			Filename:   d.Filename,
			Length:     d.Length,
			UploadDate: d.UploadDate,
			Metadata:   d.Metadata,
		})
	}
	return out, nil
}

// filterDocument 把 BlobFilter 转换为 fs.files 查询文档
func filterDocument(f BlobFilter) bson.D {
	doc := bson.D{}
	if f.ItemID != "" {
		doc = append(doc, bson.E{Key: "metadata.item_id", Value: f.ItemID})
	}
	switch {
	case f.Filename != "":
		doc = append(doc, bson.E{Key: "filename", Value: f.Filename})
	case f.Suffix != "":
		doc = append(doc, bson.E{Key: "filename", Value: bson.Regex{Pattern: regexp.QuoteMeta(f.Suffix) + "$"}})
	}
	return doc
}

// Delete 删除文件及其分块
func (g *GridFSBucket) Delete(ctx context.Context, id string) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid blob id %q: %w", id, err)
	}
	return g.bucket.Delete(ctx, oid)
}

// Download 把文件内容写入 w
func (g *GridFSBucket) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return 0, fmt.Errorf("invalid blob id %q: %w", id, err)
	}
	return g.bucket.DownloadToStream(ctx, oid, w)
}

// Drop 删除 bucket 的 files 与 chunks 集合
func (g *GridFSBucket) Drop(ctx context.Context) error {
	return g.bucket.Drop(ctx)
}

// Ping 检查 MongoDB 连接
func (g *GridFSBucket) Ping(ctx context.Context) error {
	return g.client.Ping(ctx, readpref.Primary())
}

// Close 断开连接
func (g *GridFSBucket) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}
