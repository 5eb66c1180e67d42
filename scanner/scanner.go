package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// 📂 数据集目录扫描
// =============================================================================

// Folder 一个条目文件夹（直接包含至少一个 .obj 文件），或一次列目录失败
type Folder struct {
	// 文件夹路径
	Path string `json:"path"`
	// 文件夹名，同时是默认的 item_id
	Name string `json:"name"`
	// 父目录名
	Category string `json:"category"`

	// 可转换的源网格（.obj 且不以 border 开头），按文件名排序的完整路径
	Sources []string `json:"sources"`

	HasOBJ       bool     `json:"has_obj"`
	HasMTL       bool     `json:"has_mtl"`
	HasPCD       bool     `json:"has_pcd"`
	HasKeypoints bool     `json:"has_keypoints"`
	HasBorder    bool     `json:"has_border"`
	Textures     []string `json:"textures"`

	// 列目录失败时非空，其余字段只有 Path/Name/Category 有意义
	Err error `json:"-"`
}

// Failed 是否为列目录失败
func (f Folder) Failed() bool {
	return f.Err != nil
}

// ReadDirFunc 列目录函数，默认 os.ReadDir
type ReadDirFunc func(dir string) ([]fs.DirEntry, error)

// Option 扫描器选项
type Option func(*Scanner)

// WithReadDir 替换列目录实现
func WithReadDir(fn ReadDirFunc) Option {
	return func(s *Scanner) {
		s.readDir = fn
	}
}

// Scanner 按字典序深度优先遍历数据集根目录
type Scanner struct {
	readDir ReadDirFunc
	logger  *zap.Logger
}

// New 创建扫描器
func New(logger *zap.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		readDir: os.ReadDir,
		logger:  logger.With(zap.String("component", "folder_scanner")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Walk 依次遍历 roots，对每个条目文件夹与每次列目录失败调用 visit。
// 同一目录下的条目按名称排序，遍历顺序对同一棵目录树是确定的。
// visit 返回错误或 ctx 取消时停止遍历并返回该错误。
func (s *Scanner) Walk(ctx context.Context, roots []string, visit func(Folder) error) error {
	for _, root := range roots {
		if err := s.walkDir(ctx, filepath.Clean(root), visit); err != nil {
			return err
		}
	}
	return nil
}

// Collect 遍历并返回全部结果
func (s *Scanner) Collect(ctx context.Context, roots []string) ([]Folder, error) {
	var out []Folder
	err := s.Walk(ctx, roots, func(f Folder) error {
		out = append(out, f)
		return nil
	})
	return out, err
}

func (s *Scanner) walkDir(ctx context.Context, dir string, visit func(Folder) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.readDir(dir)
	if err != nil {
		s.logger.Warn("failed to list folder", zap.String("path", dir), zap.Error(err))
		return visit(Folder{
			Path:     dir,
			Name:     filepath.Base(dir),
			Category: filepath.Base(filepath.Dir(dir)),
			Err:      err,
		})
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return strings.Compare(a.Name(), b.Name())
	})

	var subdirs []string
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
			continue
		}
		files = append(files, e.Name())
	}

	if folder, ok := classify(dir, files); ok {
		s.logger.Debug("item folder found",
			zap.String("path", dir),
			zap.String("category", folder.Category),
			zap.Int("sources", len(folder.Sources)),
		)
		if err := visit(folder); err != nil {
			return err
		}
	}

	for _, sub := range subdirs {
		if err := s.walkDir(ctx, sub, visit); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// 🏷️ 文件名分类
// =============================================================================

var textureExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true}

// classify 根据文件名推导标志，目录中没有 .obj 时返回 false
func classify(dir string, names []string) (Folder, bool) {
	f := Folder{
		Path:     dir,
		Name:     filepath.Base(dir),
		Category: filepath.Base(filepath.Dir(dir)),
	}
	anyOBJ := false
	for _, name := range names {
		lower := strings.ToLower(name)
		ext := filepath.Ext(lower)
		switch {
		case ext == ".obj":
			anyOBJ = true
			if strings.HasPrefix(lower, "border") {
				f.HasBorder = true
			} else {
				f.HasOBJ = true
				f.Sources = append(f.Sources, filepath.Join(dir, name))
			}
		case ext == ".mtl":
			f.HasMTL = true
		case ext == ".pcd":
			if strings.HasPrefix(lower, "kp_") {
				f.HasKeypoints = true
			} else {
				f.HasPCD = true
			}
		case textureExts[ext]:
			f.Textures = append(f.Textures, name)
		}
	}
	return f, anyOBJ
}
