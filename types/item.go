package types

import (
	"fmt"
	"strings"
)

// 固定的源/目标格式
const (
	SourceFormatOBJ = "obj"
	ConvertedGLB    = "glb"
)

// =============================================================================
// 📦 条目记录
// =============================================================================

// ItemRecord 单件服装条目，由 Orchestrator 在每个源文件上构建
type ItemRecord struct {
	ItemID     string `json:"item_id"`
	FolderID   string `json:"folder_id"`
	SourceFile string `json:"source_file"`
	// 转换产物当前所在位置（转换前为源文件夹）
	Path string `json:"path"`
	// 源文件夹路径，写入 blob 元数据
	SourcePath string `json:"source_path"`

	HasOBJ       bool     `json:"has_obj"`
	HasMTL       bool     `json:"has_mtl"`
	HasPCD       bool     `json:"has_pcd"`
	HasKeypoints bool     `json:"has_keypoints"`
	HasBorder    bool     `json:"has_border"`
	Textures     []string `json:"textures"`

	Category      string  `json:"category"`
	SourceFormat  string  `json:"source_format"`
	ConvertedTo   string  `json:"converted_to"`
	MetadataNotes *string `json:"metadata_notes,omitempty"`

	Status   Status   `json:"status"`
	Analysis Analysis `json:"analysis"`
}

// TextureCount 返回纹理文件数量
func (r *ItemRecord) TextureCount() int {
	return len(r.Textures)
}

// AddNote 追加一条备注
func (r *ItemRecord) AddNote(note string) {
	if note == "" {
		return
	}
	if r.MetadataNotes == nil || *r.MetadataNotes == "" {
		r.MetadataNotes = &note
		return
	}
	joined := *r.MetadataNotes + "; " + note
	r.MetadataNotes = &joined
}

// Clone 返回独立副本，同一文件夹内的多个源文件互不覆盖
func (r ItemRecord) Clone() ItemRecord {
	out := r
	out.Textures = append([]string(nil), r.Textures...)
	if r.MetadataNotes != nil {
		note := *r.MetadataNotes
		out.MetadataNotes = &note
	}
	return out
}

// =============================================================================
// 📐 几何分析结果
// =============================================================================

// Analysis 转换后网格的几何/材质特征。数值字段为 nil 表示未知。
type Analysis struct {
	PolygonCount      *int     `json:"polygon_count"`
	FileSizeKB        *int     `json:"file_size_kb"`
	SurfaceArea       *float64 `json:"surface_area"`
	BoundingBoxVolume *float64 `json:"bounding_box_volume"`
	IsClosed          *bool    `json:"is_closed"`
	Genus             *int     `json:"genus"`
	AvgEdgeLength     *float64 `json:"avg_edge_length"`
	MeshDensity       *float64 `json:"mesh_density"`
	NumMeshParts      *int     `json:"num_mesh_parts"`
	NumMaterials      *int     `json:"num_materials"`
	NumUVMaps         *int     `json:"num_uv_maps"`
	Success           bool     `json:"analysis_success"`
}

// =============================================================================
// 🏷️ 状态
// =============================================================================

// Status 条目终态，消费方应按前缀匹配
type Status string

// 状态前缀
const (
	StatusOK      Status = "OK"
	statusFail           = "FAIL: "
	statusSkipped        = "SKIPPED: "
)

// Fail 构造 FAIL 状态
func Fail(format string, args ...any) Status {
	return Status(statusFail + fmt.Sprintf(format, args...))
}

// Skipped 构造 SKIPPED 状态
func Skipped(reason string) Status {
	return Status(statusSkipped + reason)
}

// IsOK 是否成功
func (s Status) IsOK() bool { return s == StatusOK }

// IsFail 是否失败
func (s Status) IsFail() bool { return strings.HasPrefix(string(s), statusFail) }

// IsSkipped 是否被策略跳过
func (s Status) IsSkipped() bool { return strings.HasPrefix(string(s), statusSkipped) }

// Reason 返回前缀之后的原因文本
func (s Status) Reason() string {
	str := string(s)
	switch {
	case s.IsFail():
		return strings.TrimPrefix(str, statusFail)
	case s.IsSkipped():
		return strings.TrimPrefix(str, statusSkipped)
	default:
		return ""
	}
}

// =============================================================================
// 🔧 指针辅助
// =============================================================================

// IntPtr 返回 int 指针
func IntPtr(v int) *int { return &v }

// FloatPtr 返回 float64 指针
func FloatPtr(v float64) *float64 { return &v }

// BoolPtr 返回 bool 指针
func BoolPtr(v bool) *bool { return &v }
