package mesh

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"

	"github.com/BaSui01/meshflow/types"
)

// =============================================================================
// 🔬 网格特征分析
// =============================================================================

// Policy 分析策略
type Policy string

const (
	// PolicyUngated 总是计算并返回完整特征
	PolicyUngated Policy = "ungated"
	// PolicyGated 没有贴图也没有 UV 的网格直接拒绝
	PolicyGated Policy = "gated"
)

// ParsePolicy 解析配置中的策略字符串
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyUngated, "":
		return PolicyUngated, nil
	case PolicyGated:
		return PolicyGated, nil
	default:
		return "", fmt.Errorf("unknown analysis policy %q", s)
	}
}

// ErrNoTexture gated 策略下网格没有任何颜色信息
var ErrNoTexture = errors.New("no texture")

// Analyzer 读取 GLB 并计算几何/材质统计
type Analyzer struct {
	logger *zap.Logger
}

// NewAnalyzer 创建分析器
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger.With(zap.String("component", "mesh_analyzer"))}
}

// Analyze 分析转换后的网格。
//
// 文件无法加载时返回 Success=false 的结果和 nil error，只有 FileSizeKB 有值。
// gated 策略下没有颜色信息时返回 ErrNoTexture。
func (a *Analyzer) Analyze(path string, policy Policy) (types.Analysis, error) {
	var result types.Analysis
	if info, err := os.Stat(path); err == nil {
		result.FileSizeKB = types.IntPtr(int(info.Size() / 1024))
	}

	scene, err := loadScene(path)
	if err != nil {
		a.logger.Warn("failed to load mesh for analysis", zap.String("path", path), zap.Error(err))
		return result, nil
	}

	if policy == PolicyGated && !scene.hasColor {
		return result, ErrNoTexture
	}

	topo := analyzeTopology(&scene.mesh)
	result.PolygonCount = types.IntPtr(scene.mesh.rawFaces)
	result.SurfaceArea = types.FloatPtr(topo.surfaceArea)
	result.BoundingBoxVolume = types.FloatPtr(orientedVolume(scene.mesh.vertices))
	result.IsClosed = types.BoolPtr(topo.watertight)
	result.Genus = types.IntPtr(topo.genus())
	if topo.edges > 0 {
		result.AvgEdgeLength = types.FloatPtr(topo.avgEdgeLength)
	}
	if topo.surfaceArea > 0 {
		result.MeshDensity = types.FloatPtr(float64(scene.mesh.rawFaces) / topo.surfaceArea)
	}
	result.NumMeshParts = types.IntPtr(topo.components)
	result.NumMaterials = types.IntPtr(scene.materials)
	result.NumUVMaps = types.IntPtr(scene.uvMaps)
	result.Success = true

	a.logger.Debug("mesh analyzed",
		zap.String("path", path),
		zap.Int("faces", scene.mesh.rawFaces),
		zap.Int("parts", topo.components),
		zap.Bool("watertight", topo.watertight),
	)
	return result, nil
}

// loadedScene 合并后的场景与材质信息
type loadedScene struct {
	mesh      weldedMesh
	materials int
	uvMaps    int
	hasColor  bool
}

// loadScene 读取 GLB 中所有三角形 primitive 并按位置焊接
func loadScene(path string) (scene *loadedScene, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode %s: panic: %v", path, r)
		}
	}()

	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}

	scene = &loadedScene{materials: len(doc.Materials)}
	w := newWelder()
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			if p.Mode != gltf.PrimitiveTriangles {
				continue
			}
			posIdx, ok := p.Attributes[gltf.POSITION]
			if !ok || posIdx >= len(doc.Accessors) {
				continue
			}
			positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
			if err != nil {
				return nil, fmt.Errorf("read positions: %w", err)
			}

			var indices []uint32
			if p.Indices != nil && *p.Indices < len(doc.Accessors) {
				if indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil); err != nil {
					return nil, fmt.Errorf("read indices: %w", err)
				}
			} else {
				indices = make([]uint32, len(positions))
				for i := range indices {
					indices[i] = uint32(i)
				}
			}
			w.addTriangles(positions, indices)

			uv := countTexcoords(p)
			if uv > scene.uvMaps {
				scene.uvMaps = uv
			}
			if uv > 0 || hasBaseColorTexture(doc, p) {
				scene.hasColor = true
			}
		}
	}

	if w.mesh.rawFaces == 0 {
		return nil, fmt.Errorf("no triangle geometry in %s", path)
	}
	scene.mesh = w.mesh
	return scene, nil
}

// countTexcoords 统计 TEXCOORD_n 属性个数
func countTexcoords(p *gltf.Primitive) int {
	n := 0
	for name := range p.Attributes {
		if strings.HasPrefix(name, "TEXCOORD_") {
			n++
		}
	}
	return n
}

func hasBaseColorTexture(doc *gltf.Document, p *gltf.Primitive) bool {
	if p.Material == nil || *p.Material >= len(doc.Materials) {
		return false
	}
	m := doc.Materials[*p.Material]
	return m.PBRMetallicRoughness != nil && m.PBRMetallicRoughness.BaseColorTexture != nil
}
