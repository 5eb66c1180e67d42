package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/meshflow/types"
)

// ErrNotFound 条目或 blob 不存在
var ErrNotFound = errors.New("store: not found")

// =============================================================================
// 🗄️ 元数据行
// =============================================================================

// ItemRow fashion_items 表的一行
type ItemRow struct {
	ItemID     string  `gorm:"column:item_id;primaryKey;size:255" json:"item_id"`
	FolderID   *string `gorm:"column:folder_id" json:"folder_id"`
	SourceFile *string `gorm:"column:source_file" json:"source_file"`
	Path       string  `gorm:"column:path;not null" json:"path"`

	HasOBJ       bool `gorm:"column:has_obj;not null" json:"has_obj"`
	HasMTL       bool `gorm:"column:has_mtl;not null" json:"has_mtl"`
	HasPCD       bool `gorm:"column:has_pcd;not null" json:"has_pcd"`
	HasKeypoints bool `gorm:"column:has_keypoints;not null" json:"has_keypoints"`
	HasBorder    bool `gorm:"column:has_border;not null" json:"has_border"`
	TextureCount int  `gorm:"column:texture_count;not null" json:"texture_count"`

	PolygonCount *int   `gorm:"column:polygon_count" json:"polygon_count"`
	FileSizeKB   *int   `gorm:"column:file_size_kb" json:"file_size_kb"`
	Category     string `gorm:"column:category;not null;index" json:"category"`
	SourceFormat string `gorm:"column:source_format;not null" json:"source_format"`
	ConvertedTo  string `gorm:"column:converted_to;not null" json:"converted_to"`

	MeshDensity       *float64 `gorm:"column:mesh_density" json:"mesh_density"`
	AvgEdgeLength     *float64 `gorm:"column:avg_edge_length" json:"avg_edge_length"`
	BoundingBoxVolume *float64 `gorm:"column:bounding_box_volume" json:"bounding_box_volume"`
	SurfaceArea       *float64 `gorm:"column:surface_area" json:"surface_area"`
	NumMeshParts      *int     `gorm:"column:num_mesh_parts" json:"num_mesh_parts"`
	NumMaterials      *int     `gorm:"column:num_materials" json:"num_materials"`
	NumUVMaps         *int     `gorm:"column:num_uv_maps" json:"num_uv_maps"`
	Genus             *int     `gorm:"column:genus" json:"genus"`
	IsClosed          *bool    `gorm:"column:is_closed" json:"is_closed"`
	AnalysisSuccess   bool     `gorm:"column:analysis_success;not null" json:"analysis_success"`
	MetadataNotes     *string  `gorm:"column:metadata_notes" json:"metadata_notes"`

	// 由数据库在首次插入时赋值，upsert 不覆盖
	CreatedAt time.Time `gorm:"column:created_at;->;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName 表名固定为 fashion_items
func (ItemRow) TableName() string {
	return "fashion_items"
}

// upsertColumns 冲突时覆盖的列：除主键与 created_at 外的全部列
var upsertColumns = []string{
	"folder_id", "source_file", "path",
	"has_obj", "has_mtl", "has_pcd", "has_keypoints", "has_border", "texture_count",
	"polygon_count", "file_size_kb", "category", "source_format", "converted_to",
	"mesh_density", "avg_edge_length", "bounding_box_volume", "surface_area",
	"num_mesh_parts", "num_materials", "num_uv_maps", "genus", "is_closed",
	"analysis_success", "metadata_notes",
}

// RowFromRecord 把条目记录映射为表行
func RowFromRecord(rec types.ItemRecord) ItemRow {
	a := rec.Analysis
	row := ItemRow{
		ItemID:            rec.ItemID,
		Path:              rec.Path,
		HasOBJ:            rec.HasOBJ,
		HasMTL:            rec.HasMTL,
		HasPCD:            rec.HasPCD,
		HasKeypoints:      rec.HasKeypoints,
		HasBorder:         rec.HasBorder,
		TextureCount:      rec.TextureCount(),
		PolygonCount:      a.PolygonCount,
		FileSizeKB:        a.FileSizeKB,
		Category:          rec.Category,
		SourceFormat:      rec.SourceFormat,
		ConvertedTo:       rec.ConvertedTo,
		MeshDensity:       a.MeshDensity,
		AvgEdgeLength:     a.AvgEdgeLength,
		BoundingBoxVolume: a.BoundingBoxVolume,
		SurfaceArea:       a.SurfaceArea,
		NumMeshParts:      a.NumMeshParts,
		NumMaterials:      a.NumMaterials,
		NumUVMaps:         a.NumUVMaps,
		Genus:             a.Genus,
		IsClosed:          a.IsClosed,
		AnalysisSuccess:   a.Success,
		MetadataNotes:     rec.MetadataNotes,
	}
	if rec.FolderID != "" {
		row.FolderID = &rec.FolderID
	}
	if rec.SourceFile != "" {
		row.SourceFile = &rec.SourceFile
	}
	if row.SourceFormat == "" {
		row.SourceFormat = types.SourceFormatOBJ
	}
	if row.ConvertedTo == "" {
		row.ConvertedTo = types.ConvertedGLB
	}
	return row
}

// =============================================================================
// 📇 MetadataStore
// =============================================================================

// MetadataStore 基于 GORM 的条目元数据存储
type MetadataStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewMetadataStore 创建元数据存储，db 由调用方持有与关闭
func NewMetadataStore(db *gorm.DB, logger *zap.Logger) *MetadataStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataStore{db: db, logger: logger.With(zap.String("component", "metadata_store"))}
}

// AutoMigrate 用 GORM 建表，仅用于 sqlite/开发环境，生产使用 migrate 命令
func (s *MetadataStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&ItemRow{}); err != nil {
		return fmt.Errorf("auto migrate fashion_items: %w", err)
	}
	return nil
}

// Ping 检查数据库连接
func (s *MetadataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Upsert 在事务内插入或整行覆盖条目。失败时事务回滚并返回错误。
func (s *MetadataStore) Upsert(ctx context.Context, rec types.ItemRecord) error {
	if rec.ItemID == "" {
		return fmt.Errorf("upsert: empty item id")
	}
	row := RowFromRecord(rec)
	if err := s.upsertRow(ctx, &row); err != nil {
		s.logger.Error("metadata upsert failed", zap.String("item_id", rec.ItemID), zap.Error(err))
		return fmt.Errorf("upsert %s: %w", rec.ItemID, err)
	}

	s.logger.Debug("metadata upserted", zap.String("item_id", rec.ItemID))
	return nil
}

// Restore 把之前用 Get 读出的行原样写回，created_at 保持数据库中的值
func (s *MetadataStore) Restore(ctx context.Context, row ItemRow) error {
	if row.ItemID == "" {
		return fmt.Errorf("restore: empty item id")
	}
	if err := s.upsertRow(ctx, &row); err != nil {
		return fmt.Errorf("restore %s: %w", row.ItemID, err)
	}
	s.logger.Debug("metadata restored", zap.String("item_id", row.ItemID))
	return nil
}

func (s *MetadataStore) upsertRow(ctx context.Context, row *ItemRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(row).Error
	})
}

// Get 按 item_id 读取一行
func (s *MetadataStore) Get(ctx context.Context, itemID string) (*ItemRow, error) {
	var row ItemRow
	err := s.db.WithContext(ctx).Where("item_id = ?", itemID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", itemID, err)
	}
	return &row, nil
}

// Delete 删除一行，不存在时不报错
func (s *MetadataStore) Delete(ctx context.Context, itemID string) error {
	if err := s.db.WithContext(ctx).Where("item_id = ?", itemID).Delete(&ItemRow{}).Error; err != nil {
		return fmt.Errorf("delete %s: %w", itemID, err)
	}
	return nil
}

// Count 返回行数
func (s *MetadataStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&ItemRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count fashion_items: %w", err)
	}
	return n, nil
}

// List 按 item_id 升序列出，category 为空时返回全部
func (s *MetadataStore) List(ctx context.Context, category string, limit int) ([]ItemRow, error) {
	q := s.db.WithContext(ctx).Order("item_id")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ItemRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list fashion_items: %w", err)
	}
	return rows, nil
}

// Reset 清空全部行
func (s *MetadataStore) Reset(ctx context.Context) error {
	res := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&ItemRow{})
	if res.Error != nil {
		return fmt.Errorf("reset fashion_items: %w", res.Error)
	}
	s.logger.Info("metadata store reset", zap.Int64("rows_deleted", res.RowsAffected))
	return nil
}
