package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/parquet-go/parquet-go"

	"github.com/BaSui01/meshflow/store"
	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 📋 批处理报告
// =============================================================================

// Entry 报告中的一条记录，对应一个源文件或一次列目录失败
type Entry struct {
	ItemID     string `json:"item_id"`
	FolderID   string `json:"folder_id,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	Path       string `json:"path"`
	Category   string `json:"category"`
	Outcome
	Analysis types.Analysis `json:"analysis"`
}

// Detail 返回错误详情
func (e Entry) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Report 一次运行的结果，只存在于内存中
type Report struct {
	RunID      uuid.UUID         `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Entries    []Entry           `json:"entries"`
	Inserted   int               `json:"inserted"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Blobs      store.BlobSummary `json:"blobs"`
}

func newReport() *Report {
	return &Report{RunID: uuid.New(), StartedAt: time.Now()}
}

func (r *Report) add(e Entry) {
	r.Entries = append(r.Entries, e)
	switch {
	case e.Kind.Inserted():
		r.Inserted++
	case e.Kind == KindPolicySkip:
		r.Skipped++
	case e.Kind.Failed():
		r.Failed++
	}
}

func (r *Report) finish(summary store.BlobSummary) {
	r.FinishedAt = time.Now()
	r.Blobs = summary
}

// Duration 运行耗时
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Find 按 item_id 查找条目
func (r *Report) Find(itemID string) (Entry, bool) {
	for _, e := range r.Entries {
		if e.ItemID == itemID {
			return e, true
		}
	}
	return Entry{}, false
}

// =============================================================================
// 🖨️ 表格输出
// =============================================================================

// RenderTable 以表格形式输出报告
func (r *Report) RenderTable(w io.Writer) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Item", "Category", "Status", "Polygons", "Size", "Closed", "Genus"})

	for _, e := range r.Entries {
		tbl.AppendRow(table.Row{
			e.ItemID,
			e.Category,
			string(e.Status),
			intCell(e.Analysis.PolygonCount, humanize.Comma),
			intCell(e.Analysis.FileSizeKB, func(kb int64) string { return humanize.IBytes(uint64(kb) * 1024) }),
			boolCell(e.Analysis.IsClosed),
			intCell(e.Analysis.Genus, func(v int64) string { return fmt.Sprintf("%d", v) }),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d", len(r.Entries)),
		"",
		fmt.Sprintf("inserted %d / failed %d / skipped %d", r.Inserted, r.Failed, r.Skipped),
		"", "", "",
		r.Duration().Round(time.Millisecond).String(),
	})

	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

func intCell(v *int, format func(int64) string) string {
	if v == nil {
		return "-"
	}
	return format(int64(*v))
}

func boolCell(v *bool) string {
	if v == nil {
		return "-"
	}
	if *v {
		return "yes"
	}
	return "no"
}

// =============================================================================
// 🗂️ Parquet 导出
// =============================================================================

// ReportRow 报告导出为 Parquet 时的扁平行
type ReportRow struct {
	RunID             string   `parquet:"run_id"`
	ItemID            string   `parquet:"item_id"`
	FolderID          string   `parquet:"folder_id"`
	SourceFile        string   `parquet:"source_file"`
	Path              string   `parquet:"path"`
	Category          string   `parquet:"category"`
	Kind              string   `parquet:"kind"`
	Status            string   `parquet:"status"`
	Detail            string   `parquet:"detail"`
	PolygonCount      *int64   `parquet:"polygon_count,optional"`
	FileSizeKB        *int64   `parquet:"file_size_kb,optional"`
	SurfaceArea       *float64 `parquet:"surface_area,optional"`
	BoundingBoxVolume *float64 `parquet:"bounding_box_volume,optional"`
	IsClosed          *bool    `parquet:"is_closed,optional"`
	Genus             *int64   `parquet:"genus,optional"`
	AvgEdgeLength     *float64 `parquet:"avg_edge_length,optional"`
	MeshDensity       *float64 `parquet:"mesh_density,optional"`
	NumMeshParts      *int64   `parquet:"num_mesh_parts,optional"`
	NumMaterials      *int64   `parquet:"num_materials,optional"`
	NumUVMaps         *int64   `parquet:"num_uv_maps,optional"`
	AnalysisSuccess   bool     `parquet:"analysis_success"`
}

// Rows 把报告展开为扁平行
func (r *Report) Rows() []ReportRow {
	rows := make([]ReportRow, 0, len(r.Entries))
	for _, e := range r.Entries {
		a := e.Analysis
		rows = append(rows, ReportRow{
			RunID:             r.RunID.String(),
			ItemID:            e.ItemID,
			FolderID:          e.FolderID,
			SourceFile:        e.SourceFile,
			Path:              e.Path,
			Category:          e.Category,
			Kind:              string(e.Kind),
			Status:            string(e.Status),
			Detail:            e.Detail(),
			PolygonCount:      int64Ptr(a.PolygonCount),
			FileSizeKB:        int64Ptr(a.FileSizeKB),
			SurfaceArea:       a.SurfaceArea,
			BoundingBoxVolume: a.BoundingBoxVolume,
			IsClosed:          a.IsClosed,
			Genus:             int64Ptr(a.Genus),
			AvgEdgeLength:     a.AvgEdgeLength,
			MeshDensity:       a.MeshDensity,
			NumMeshParts:      int64Ptr(a.NumMeshParts),
			NumMaterials:      int64Ptr(a.NumMaterials),
			NumUVMaps:         int64Ptr(a.NumUVMaps),
			AnalysisSuccess:   a.Success,
		})
	}
	return rows
}

func int64Ptr(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

// WriteParquet 把报告写入 Parquet 文件
func (r *Report) WriteParquet(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[ReportRow](f)
	if _, err := writer.Write(r.Rows()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return f.Close()
}

// ReadParquet 读取 WriteParquet 写出的文件
func ReadParquet(path string) ([]ReportRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[ReportRow](pf)
	defer reader.Close()

	var rows []ReportRow
	for {
		batch := make([]ReportRow, 64)
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}
	return rows, nil
}
