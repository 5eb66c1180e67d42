package mesh

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"go.uber.org/zap"
)

// =============================================================================
// 🔄 OBJ → GLB 转换器
// =============================================================================

// DefaultGray 没有可用贴图时使用的中性灰（RGBA 220,220,220,255）
var DefaultGray = [4]float64{220.0 / 255, 220.0 / 255, 220.0 / 255, 1}

// Conversion 一次转换的结果
type Conversion struct {
	// 输出 GLB 路径
	OutputPath string
	// 缺失贴图等非致命问题
	Warnings []string
	// 子几何体数
	Parts int
	// 三角化后的面数
	Faces int
	// 带贴图的子几何体数
	TexturedParts int
	// 输出文件字节数
	Bytes int64
}

// Converter 把 OBJ（含 MTL 与贴图）转换为二进制 glTF
type Converter struct {
	logger *zap.Logger
}

// NewConverter 创建转换器
func NewConverter(logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{logger: logger.With(zap.String("component", "mesh_converter"))}
}

// Convert 转换 sourcePath 并写入 outDir/<stem>.glb。源文件只读。
// 编码器内部的 panic 也会以 error 返回。
func (c *Converter) Convert(sourcePath, outDir string) (conv Conversion, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("convert %s: panic: %v", filepath.Base(sourcePath), r)
		}
	}()

	if !strings.EqualFold(filepath.Ext(sourcePath), ".obj") {
		return conv, fmt.Errorf("convert %s: not an obj file", sourcePath)
	}

	conv.Warnings = c.checkTextures(sourcePath)

	model, err := parseOBJFile(sourcePath)
	if err != nil {
		return conv, fmt.Errorf("parse %s: %w", filepath.Base(sourcePath), err)
	}
	materials := c.loadMaterials(sourcePath, model)

	doc, textured := buildDocument(model, materials, filepath.Dir(sourcePath), c.logger)
	conv.Parts = len(model.groups)
	conv.Faces = model.faceCount()
	conv.TexturedParts = textured

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return conv, fmt.Errorf("create output dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	conv.OutputPath = filepath.Join(outDir, stem+".glb")

	if err := gltf.SaveBinary(doc, conv.OutputPath); err != nil {
		_ = os.Remove(conv.OutputPath)
		return conv, fmt.Errorf("export %s: %w", filepath.Base(conv.OutputPath), err)
	}
	if info, statErr := os.Stat(conv.OutputPath); statErr == nil {
		conv.Bytes = info.Size()
	}

	c.logger.Debug("mesh converted",
		zap.String("source", sourcePath),
		zap.String("output", conv.OutputPath),
		zap.Int("parts", conv.Parts),
		zap.Int("faces", conv.Faces),
		zap.Int("textured_parts", conv.TexturedParts),
		zap.String("size", humanize.Bytes(uint64(conv.Bytes))),
	)
	return conv, nil
}

// checkTextures 检查同名 MTL 中引用的贴图是否存在。只告警，不改文件。
func (c *Converter) checkTextures(objPath string) []string {
	mtlPath := siblingMTL(objPath)
	if _, err := os.Stat(mtlPath); err != nil {
		return nil
	}
	refs, err := textureRefs(mtlPath)
	if err != nil {
		c.logger.Warn("failed to read material file", zap.String("mtl", mtlPath), zap.Error(err))
		return []string{fmt.Sprintf("unreadable material file %s", filepath.Base(mtlPath))}
	}

	var warnings []string
	dir := filepath.Dir(objPath)
	for _, ref := range refs {
		if _, err := os.Stat(filepath.Join(dir, ref)); err != nil {
			c.logger.Warn("texture not found",
				zap.String("texture", ref),
				zap.String("obj", objPath),
			)
			warnings = append(warnings, fmt.Sprintf("texture %s not found", ref))
		}
	}
	return warnings
}

// loadMaterials 读取 mtllib 声明的材质库，未声明时回退到同名 MTL
func (c *Converter) loadMaterials(objPath string, model *objModel) map[string]*objMaterial {
	dir := filepath.Dir(objPath)
	libs := model.mtllibs
	if len(libs) == 0 {
		libs = []string{filepath.Base(siblingMTL(objPath))}
	}

	out := make(map[string]*objMaterial)
	for _, lib := range libs {
		mats, err := parseMTLFile(filepath.Join(dir, lib))
		if err != nil {
			if !os.IsNotExist(err) {
				c.logger.Warn("failed to parse material library", zap.String("mtllib", lib), zap.Error(err))
			}
			continue
		}
		for name, m := range mats {
			out[name] = m
		}
	}
	return out
}

// =============================================================================
// 🧱 glTF 文档构建
// =============================================================================

// vertexKey 子几何体内唯一的 (v, vt, vn) 组合
type vertexKey = objRef

// buildDocument 每个子几何体生成一个 primitive，返回文档和带贴图的 primitive 数
func buildDocument(model *objModel, materials map[string]*objMaterial, dir string, logger *zap.Logger) (*gltf.Document, int) {
	doc := gltf.NewDocument()
	mb := &materialBuilder{doc: doc, dir: dir, logger: logger, byName: make(map[string]int), gray: -1}

	textured := 0
	gmesh := &gltf.Mesh{Name: "garment"}
	for _, g := range model.groups {
		var (
			positions [][3]float32
			uvs       [][2]float32
			normals   [][3]float32
			indices   []uint32
			lookup    = make(map[vertexKey]uint32)
			hasUV     = true
			hasNormal = true
		)
		for _, face := range g.faces {
			for _, ref := range face {
				if ref.vt < 0 {
					hasUV = false
				}
				if ref.vn < 0 {
					hasNormal = false
				}
			}
		}
		for _, face := range g.faces {
			for _, ref := range face {
				if !hasUV {
					ref.vt = -1
				}
				if !hasNormal {
					ref.vn = -1
				}
				idx, ok := lookup[ref]
				if !ok {
					idx = uint32(len(positions))
					lookup[ref] = idx
					positions = append(positions, model.positions[ref.v])
					if hasUV {
						uvs = append(uvs, model.texcoords[ref.vt])
					}
					if hasNormal {
						normals = append(normals, model.normals[ref.vn])
					}
				}
				indices = append(indices, idx)
			}
		}

		attrs := map[string]int{
			gltf.POSITION: modeler.WritePosition(doc, positions),
		}
		if hasUV {
			attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, uvs)
		}
		if hasNormal {
			attrs[gltf.NORMAL] = modeler.WriteNormal(doc, normals)
		}

		matIdx, isTextured := mb.resolve(materials[g.material], hasUV)
		if isTextured {
			textured++
		}

		gmesh.Primitives = append(gmesh.Primitives, &gltf.Primitive{
			Attributes: attrs,
			Indices:    gltf.Index(modeler.WriteIndices(doc, indices)),
			Material:   gltf.Index(matIdx),
		})
	}

	doc.Meshes = append(doc.Meshes, gmesh)
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: "garment", Mesh: gltf.Index(len(doc.Meshes) - 1)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	return doc, textured
}

// materialBuilder 按材质名复用 glTF 材质，灰色兜底材质全局共享一份
type materialBuilder struct {
	doc    *gltf.Document
	dir    string
	logger *zap.Logger
	byName map[string]int
	gray   int
}

// resolve 返回材质索引与是否绑定了贴图
func (b *materialBuilder) resolve(m *objMaterial, hasUV bool) (int, bool) {
	if m == nil || m.diffuseMap == "" || !hasUV {
		b.dropDiffuse(m)
		return b.grayMaterial(), false
	}
	if idx, ok := b.byName[m.name]; ok {
		return idx, true
	}

	img, err := b.writeImage(m.diffuseMap)
	if err != nil {
		b.logger.Debug("texture unusable, falling back to gray",
			zap.String("material", m.name),
			zap.String("texture", m.diffuseMap),
			zap.Error(err),
		)
		b.dropDiffuse(m)
		return b.grayMaterial(), false
	}

	b.doc.Textures = append(b.doc.Textures, &gltf.Texture{Source: gltf.Index(img)})
	factor := [4]float64{1, 1, 1, clamp01(m.opacity)}
	b.doc.Materials = append(b.doc.Materials, &gltf.Material{
		Name: m.name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor:  &factor,
			BaseColorTexture: &gltf.TextureInfo{Index: len(b.doc.Textures) - 1},
			MetallicFactor:   gltf.Float(0),
		},
	})
	idx := len(b.doc.Materials) - 1
	b.byName[m.name] = idx
	return idx, true
}

// dropDiffuse 记录被灰色回退材质覆盖的 Kd 颜色
func (b *materialBuilder) dropDiffuse(m *objMaterial) {
	if m == nil || !m.hasDiffuse {
		return
	}
	b.logger.Debug("diffuse color replaced by default gray",
		zap.String("material", m.name),
		zap.Float64s("kd", m.diffuse[:]),
	)
}

func (b *materialBuilder) grayMaterial() int {
	if b.gray >= 0 {
		return b.gray
	}
	gray := DefaultGray
	b.doc.Materials = append(b.doc.Materials, &gltf.Material{
		Name: "default_gray",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &gray,
			MetallicFactor:  gltf.Float(0),
		},
	})
	b.gray = len(b.doc.Materials) - 1
	return b.gray
}

// writeImage 把贴图嵌入 GLB 缓冲区，只接受 PNG 和 JPEG
func (b *materialBuilder) writeImage(ref string) (int, error) {
	mime, err := imageMIME(ref)
	if err != nil {
		return 0, err
	}
	f, err := os.Open(filepath.Join(b.dir, ref))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return modeler.WriteImage(b.doc, filepath.Base(ref), mime, f)
}

func imageMIME(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	default:
		return "", fmt.Errorf("unsupported texture format %q", filepath.Ext(name))
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
