package mesh

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// =============================================================================
// 📐 合并网格的拓扑与度量
// =============================================================================

// weldedMesh 按位置焊接后的三角网格
type weldedMesh struct {
	vertices [][3]float64
	faces    [][3]int
	// 原始面数（含焊接后退化的面）
	rawFaces int
}

// welder 跨 primitive 按精确位置焊接顶点
type welder struct {
	mesh  weldedMesh
	index map[[3]float32]int
}

func newWelder() *welder {
	return &welder{index: make(map[[3]float32]int)}
}

func (w *welder) vertex(p [3]float32) int {
	if i, ok := w.index[p]; ok {
		return i
	}
	i := len(w.mesh.vertices)
	w.index[p] = i
	w.mesh.vertices = append(w.mesh.vertices, [3]float64{float64(p[0]), float64(p[1]), float64(p[2])})
	return i
}

// addTriangles 追加一个 primitive 的三角形
func (w *welder) addTriangles(positions [][3]float32, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := indices[i], indices[i+1], indices[i+2]
		if int(a) >= len(positions) || int(b) >= len(positions) || int(c) >= len(positions) {
			continue
		}
		w.mesh.rawFaces++
		ia, ib, ic := w.vertex(positions[a]), w.vertex(positions[b]), w.vertex(positions[c])
		if ia == ib || ib == ic || ia == ic {
			continue
		}
		w.mesh.faces = append(w.mesh.faces, [3]int{ia, ib, ic})
	}
}

// edge 无向边，a < b
type edge struct{ a, b int }

func newEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// unionFind 带路径压缩的并查集
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// topology 网格拓扑统计结果
type topology struct {
	vertices      int
	edges         int
	faces         int
	components    int
	boundaryLoops int
	watertight    bool
	avgEdgeLength float64
	surfaceArea   float64
}

// eulerCharacteristic V - E + F
func (t topology) eulerCharacteristic() int {
	return t.vertices - t.edges + t.faces
}

// genus 由 χ = 2C - 2g - B 反推，非流形输入时截断为 0
func (t topology) genus() int {
	g := (2*t.components - t.eulerCharacteristic() - t.boundaryLoops) / 2
	if g < 0 {
		return 0
	}
	return g
}

// analyzeTopology 统计边、连通分量、边界环和表面积
func analyzeTopology(m *weldedMesh) topology {
	var t topology
	t.faces = len(m.faces)
	if t.faces == 0 {
		return t
	}

	edgeFaces := make(map[edge]int, t.faces*3/2)
	// 首次出现顺序，浮点累加必须与 map 遍历顺序无关
	order := make([]edge, 0, t.faces*3/2)
	used := make([]bool, len(m.vertices))
	uf := newUnionFind(len(m.vertices))

	for _, f := range m.faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			e := newEdge(a, b)
			if edgeFaces[e] == 0 {
				order = append(order, e)
			}
			edgeFaces[e]++
			uf.union(a, b)
			used[a] = true
		}
		t.surfaceArea += triangleArea(m.vertices[f[0]], m.vertices[f[1]], m.vertices[f[2]])
	}

	roots := make(map[int]struct{})
	for v, ok := range used {
		if ok {
			t.vertices++
			roots[uf.find(v)] = struct{}{}
		}
	}
	t.components = len(roots)
	t.edges = len(edgeFaces)

	// 边界边：只属于一个面
	t.watertight = true
	boundary := newUnionFind(len(m.vertices))
	onBoundary := make(map[int]struct{})
	var total float64
	for _, e := range order {
		n := edgeFaces[e]
		total += distance(m.vertices[e.a], m.vertices[e.b])
		if n != 2 {
			t.watertight = false
		}
		if n == 1 {
			boundary.union(e.a, e.b)
			onBoundary[e.a] = struct{}{}
			onBoundary[e.b] = struct{}{}
		}
	}
	t.avgEdgeLength = total / float64(t.edges)

	loops := make(map[int]struct{})
	for v := range onBoundary {
		loops[boundary.find(v)] = struct{}{}
	}
	t.boundaryLoops = len(loops)
	return t
}

// =============================================================================
// 📦 包围盒
// =============================================================================

// axisAlignedVolume 轴对齐包围盒体积
func axisAlignedVolume(vs [][3]float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		for k := 0; k < 3; k++ {
			lo[k] = math.Min(lo[k], v[k])
			hi[k] = math.Max(hi[k], v[k])
		}
	}
	return (hi[0] - lo[0]) * (hi[1] - lo[1]) * (hi[2] - lo[2])
}

// orientedVolume 以顶点协方差主轴为坐标系的包围盒体积，不超过轴对齐包围盒
func orientedVolume(vs [][3]float64) float64 {
	aabb := axisAlignedVolume(vs)
	if len(vs) < 4 {
		return aabb
	}

	var mean [3]float64
	for _, v := range vs {
		for k := 0; k < 3; k++ {
			mean[k] += v[k]
		}
	}
	n := float64(len(vs))
	for k := range mean {
		mean[k] /= n
	}

	cov := mat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			var s float64
			for _, v := range vs {
				s += (v[i] - mean[i]) * (v[j] - mean[j])
			}
			cov.SetSym(i, j, s/n)
		}
	}

	var es mat.EigenSym
	if !es.Factorize(cov, true) {
		return aabb
	}
	var axes mat.Dense
	es.VectorsTo(&axes)

	volume := 1.0
	for j := 0; j < 3; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range vs {
			d := v[0]*axes.At(0, j) + v[1]*axes.At(1, j) + v[2]*axes.At(2, j)
			lo = math.Min(lo, d)
			hi = math.Max(hi, d)
		}
		volume *= hi - lo
	}
	if math.IsNaN(volume) || volume > aabb {
		return aabb
	}
	return volume
}

// =============================================================================
// 🔧 向量运算
// =============================================================================

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func norm(a [3]float64) float64 {
	return math.Sqrt(a[0]*a[0] + a[1]*a[1] + a[2]*a[2])
}

func distance(a, b [3]float64) float64 {
	return norm(sub(a, b))
}

func triangleArea(a, b, c [3]float64) float64 {
	return norm(cross(sub(b, a), sub(c, a))) / 2
}
