// =============================================================================
// 👗 服装扫描数据集夹具
// =============================================================================
// 在临时目录中生成 <root>/<category>/<folder>/ 结构的数据集
//
// 使用方法:
//
//	root := t.TempDir()
//	dir := fixtures.WriteGarment(t, root, "dresses", "dressA", fixtures.Textured())
// =============================================================================
package fixtures

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Shape 网格形状
type Shape int

const (
	// Cube 闭合单位立方体，12 个三角形
	Cube Shape = iota
	// Quad 开放的单位正方形，2 个三角形
	Quad
	// TwoCubes 两个不相连的立方体
	TwoCubes
)

// Garment 描述一个条目文件夹的内容
type Garment struct {
	// 源网格文件名（不含扩展名），默认与文件夹同名
	Stems []string
	Shape Shape
	// 是否写入 vt 坐标
	UV bool
	// MTL 中 map_Kd 引用的贴图名，空表示不写 MTL
	Texture string
	// 是否真正写出贴图文件
	WriteTexture bool
	// 写入无法解析的 OBJ 内容
	Broken bool
	// 额外文件，如 kp_0.pcd、border.obj、scan.pcd
	Extras []string
}

// Textured 带 UV、MTL 和存在的 PNG 贴图
func Textured() Garment {
	return Garment{Shape: Cube, UV: true, Texture: "tex.png", WriteTexture: true}
}

// Plain 既无 UV 也无贴图
func Plain() Garment {
	return Garment{Shape: Cube}
}

// WriteGarment 在 root/category/folder 下写入条目文件并返回文件夹路径
func WriteGarment(t testing.TB, root, category, folder string, g Garment) string {
	t.Helper()

	dir := filepath.Join(root, category, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}

	stems := g.Stems
	if len(stems) == 0 {
		stems = []string{folder}
	}
	for _, stem := range stems {
		obj := OBJ(g.Shape, g.UV, "")
		if g.Texture != "" {
			obj = OBJ(g.Shape, g.UV, stem+".mtl")
			writeFile(t, filepath.Join(dir, stem+".mtl"), MTL("cloth", g.Texture))
		}
		if g.Broken {
			obj = "v 0 0 0\nf 1 2 3\n"
		}
		writeFile(t, filepath.Join(dir, stem+".obj"), obj)
	}
	if g.Texture != "" && g.WriteTexture {
		WritePNG(t, filepath.Join(dir, g.Texture))
	}
	for _, extra := range g.Extras {
		content := "# fixture\n"
		if strings.HasSuffix(extra, ".obj") {
			content = OBJ(Quad, false, "")
		}
		writeFile(t, filepath.Join(dir, extra), content)
	}
	return dir
}

// OBJ 生成指定形状的 OBJ 文本
func OBJ(shape Shape, uv bool, mtllib string) string {
	var b strings.Builder
	b.WriteString("# generated fixture\n")
	if mtllib != "" {
		fmt.Fprintf(&b, "mtllib %s\n", mtllib)
	}

	switch shape {
	case Quad:
		b.WriteString("o quad\n")
		b.WriteString("v 0 0 0\nv 1 0 0\nv 1 1 0\nv 0 1 0\n")
		if uv {
			b.WriteString("vt 0 0\nvt 1 0\nvt 1 1\nvt 0 1\n")
		}
		if mtllib != "" {
			b.WriteString("usemtl cloth\n")
		}
		b.WriteString(face(uv, 0, 1, 2, 3))
	case TwoCubes:
		writeCube(&b, "cube_a", 0, uv, mtllib != "")
		writeCube(&b, "cube_b", 5, uv, mtllib != "")
	default:
		writeCube(&b, "cube", 0, uv, mtllib != "")
	}
	return b.String()
}

// writeCube 写入一个沿 x 轴平移 offset 的单位立方体，四边形面
func writeCube(b *strings.Builder, name string, offset float64, uv, material bool) {
	fmt.Fprintf(b, "o %s\n", name)
	base := strings.Count(b.String(), "\nv ")
	for _, p := range [8][3]float64{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	} {
		fmt.Fprintf(b, "v %g %g %g\n", p[0]+offset, p[1], p[2])
	}
	if uv {
		for _, t := range [8][2]float64{
			{0, 0}, {1, 0}, {1, 1}, {0, 1},
			{0, 0}, {1, 0}, {1, 1}, {0, 1},
		} {
			fmt.Fprintf(b, "vt %g %g\n", t[0], t[1])
		}
	}
	if material {
		b.WriteString("usemtl cloth\n")
	}
	// 外法线方向的四边形
	for _, q := range [6][4]int{
		{0, 3, 2, 1}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {2, 3, 7, 6},
		{1, 2, 6, 5}, {0, 4, 7, 3},
	} {
		b.WriteString(face(uv, base+q[0], base+q[1], base+q[2], base+q[3]))
	}
}

// face 生成面指令，索引为 0 基
func face(uv bool, idx ...int) string {
	parts := make([]string, 0, len(idx)+1)
	parts = append(parts, "f")
	for _, i := range idx {
		if uv {
			parts = append(parts, fmt.Sprintf("%d/%d", i+1, i+1))
		} else {
			parts = append(parts, fmt.Sprintf("%d", i+1))
		}
	}
	return strings.Join(parts, " ") + "\n"
}

// MTL 生成单材质 MTL 文本
func MTL(material, texture string) string {
	return fmt.Sprintf("newmtl %s\nKd 0.8 0.8 0.8\nd 1\nmap_Kd %s\n", material, texture)
}

// WritePNG 写入 2x2 的 PNG 图片
func WritePNG(t testing.TB, path string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{G: 255, A: 255})
	img.Set(0, 1, color.RGBA{B: 255, A: 255})
	img.Set(1, 1, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func writeFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
