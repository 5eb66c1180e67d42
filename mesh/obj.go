package mesh

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// =============================================================================
// 📄 Wavefront OBJ / MTL 解析
// =============================================================================

// objRef 面顶点引用，均为 0 基索引，-1 表示缺失
type objRef struct {
	v, vt, vn int
}

// objGroup 按 (对象/组, 材质) 切分的子几何体
type objGroup struct {
	name     string
	material string
	faces    [][3]objRef
}

// objModel 解析后的 OBJ 场景
type objModel struct {
	positions [][3]float32
	texcoords [][2]float32
	normals   [][3]float32
	groups    []*objGroup
	mtllibs   []string
}

// faceCount 返回三角化后的面数
func (m *objModel) faceCount() int {
	n := 0
	for _, g := range m.groups {
		n += len(g.faces)
	}
	return n
}

// objMaterial MTL 中的一个材质定义
type objMaterial struct {
	name       string
	diffuse    [3]float64
	hasDiffuse bool
	opacity    float64
	diffuseMap string
}

// parseOBJFile 打开并解析 OBJ 文件
func parseOBJFile(path string) (*objModel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseOBJ(f)
}

// parseOBJ 解析 OBJ 文本。多边形按扇形三角化，负索引按相对位置解析。
func parseOBJ(r io.Reader) (*objModel, error) {
	m := &objModel{}
	var (
		objectName string
		material   string
		current    *objGroup
	)

	// 名称或材质变化后，下一个面进入新的子几何体
	groupFor := func() *objGroup {
		if current != nil && current.name == objectName && current.material == material {
			return current
		}
		current = &objGroup{name: objectName, material: material}
		m.groups = append(m.groups, current)
		return current
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			p, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: vertex: %w", lineNo, err)
			}
			m.positions = append(m.positions, [3]float32{float32(p[0]), float32(p[1]), float32(p[2])})
		case "vt":
			uv, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: texcoord: %w", lineNo, err)
			}
			// OBJ 的 V 轴与 glTF 相反
			m.texcoords = append(m.texcoords, [2]float32{float32(uv[0]), float32(1 - uv[1])})
		case "vn":
			n, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: normal: %w", lineNo, err)
			}
			m.normals = append(m.normals, [3]float32{float32(n[0]), float32(n[1]), float32(n[2])})
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 vertices", lineNo)
			}
			refs := make([]objRef, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				ref, err := m.parseRef(tok)
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				refs = append(refs, ref)
			}
			g := groupFor()
			for i := 1; i+1 < len(refs); i++ {
				g.faces = append(g.faces, [3]objRef{refs[0], refs[i], refs[i+1]})
			}
		case "o", "g":
			objectName = strings.Join(fields[1:], " ")
		case "usemtl":
			material = strings.Join(fields[1:], " ")
		case "mtllib":
			m.mtllibs = append(m.mtllibs, fields[1:]...)
		default:
			// s, l, p, cstype 等与三角网格无关
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read obj: %w", err)
	}

	// 丢弃没有面的空组
	groups := m.groups[:0]
	for _, g := range m.groups {
		if len(g.faces) > 0 {
			groups = append(groups, g)
		}
	}
	m.groups = groups

	if len(m.groups) == 0 {
		return nil, fmt.Errorf("obj contains no faces")
	}
	return m, nil
}

// parseRef 解析 v、v/vt、v//vn、v/vt/vn
func (m *objModel) parseRef(tok string) (objRef, error) {
	parts := strings.Split(tok, "/")
	if len(parts) > 3 {
		return objRef{}, fmt.Errorf("bad face vertex %q", tok)
	}

	ref := objRef{v: -1, vt: -1, vn: -1}
	var err error
	if ref.v, err = resolveIndex(parts[0], len(m.positions)); err != nil {
		return objRef{}, fmt.Errorf("face vertex %q: %w", tok, err)
	}
	if ref.v < 0 {
		return objRef{}, fmt.Errorf("face vertex %q: missing position index", tok)
	}
	if len(parts) > 1 {
		if ref.vt, err = resolveIndex(parts[1], len(m.texcoords)); err != nil {
			return objRef{}, fmt.Errorf("face texcoord %q: %w", tok, err)
		}
	}
	if len(parts) > 2 {
		if ref.vn, err = resolveIndex(parts[2], len(m.normals)); err != nil {
			return objRef{}, fmt.Errorf("face normal %q: %w", tok, err)
		}
	}
	return ref, nil
}

// resolveIndex 把 1 基或负数索引转换为 0 基索引，空串返回 -1
func resolveIndex(s string, count int) (int, error) {
	if s == "" {
		return -1, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	switch {
	case i > 0 && i <= count:
		return i - 1, nil
	case i < 0 && -i <= count:
		return count + i, nil
	default:
		return 0, fmt.Errorf("index %d out of range (have %d)", i, count)
	}
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		f, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// parseMTLFile 打开并解析 MTL 文件
func parseMTLFile(path string) (map[string]*objMaterial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMTL(f)
}

// parseMTL 只读取转换需要的字段：Kd、d、map_Kd
func parseMTL(r io.Reader) (map[string]*objMaterial, error) {
	out := make(map[string]*objMaterial)
	var cur *objMaterial

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "newmtl":
			cur = &objMaterial{name: strings.Join(fields[1:], " "), opacity: 1}
			out[cur.name] = cur
		case "Kd":
			if cur == nil {
				continue
			}
			if kd, err := parseFloats(fields[1:], 3); err == nil {
				cur.diffuse = [3]float64{kd[0], kd[1], kd[2]}
				cur.hasDiffuse = true
			}
		case "d":
			if cur == nil || len(fields) < 2 {
				continue
			}
			if d, err := strconv.ParseFloat(fields[1], 64); err == nil {
				cur.opacity = d
			}
		case "map_Kd":
			// 选项（-s、-o 等）在前，文件名总是最后一个字段
			if cur != nil && len(fields) > 1 {
				cur.diffuseMap = fields[len(fields)-1]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read mtl: %w", err)
	}
	return out, nil
}

// textureRefs 返回 MTL 中全部 map_Kd 引用，按材质名排序
func textureRefs(mtlPath string) ([]string, error) {
	mats, err := parseMTLFile(mtlPath)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var refs []string
	for _, name := range slices.Sorted(maps.Keys(mats)) {
		ref := mats[name].diffuseMap
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs, nil
}

// siblingMTL 返回与 OBJ 同名的 MTL 路径
func siblingMTL(objPath string) string {
	return strings.TrimSuffix(objPath, filepath.Ext(objPath)) + ".mtl"
}
