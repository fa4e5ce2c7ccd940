package decode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"rocktree.lol/octree"
	"rocktree.lol/wire"
)

func randomStrip(n int) (strip []uint16, vertices int) {
	strip = make([]uint16, n)
	for i := range strip {
		if vertices == 0 || frand.Intn(3) == 0 {
			strip[i] = uint16(vertices)
			vertices++
			continue
		}
		strip[i] = uint16(frand.Intn(vertices))
	}
	return
}

func TestVertices_RoundTrip(t *testing.T) {
	for range 200 {
		packed := frand.Bytes(3 * frand.Intn(500))
		vs, err := UnpackVertices(packed)
		if err != nil {
			t.Fatal(err)
		}
		if got := EncodeVertices(vs); string(got) != string(packed) {
			t.Fatalf("re-encoded %d vertices differ", len(vs))
		}
	}
}

func TestVertices_RunningSums(t *testing.T) {
	vs, err := UnpackVertices([]byte{10, 5, 251, 20, 0, 5, 30, 0, 0})
	require.NoError(t, err)
	require.Equal(t, []Vertex{
		{X: 10, Y: 20, Z: 30, W: OctantUnmasked},
		{X: 15, Y: 20, Z: 30, W: OctantUnmasked},
		{X: 10, Y: 25, Z: 30, W: OctantUnmasked},
	}, vs)
}

func TestIndices_RoundTrip(t *testing.T) {
	for range 200 {
		strip, count := randomStrip(1 + frand.Intn(1000))
		packed, err := EncodeIndices(strip)
		require.NoError(t, err)
		got, err := UnpackIndices(packed)
		require.NoError(t, err)
		require.Equal(t, strip, got)
		require.NoError(t, CheckIndices(got, count))
		require.Error(t, CheckIndices(got, count-1))
	}
}

func TestStripToTriangles(t *testing.T) {
	require.Equal(t, []uint16{0, 1, 2, 1, 3, 2}, StripToTriangles([]uint16{0, 1, 2, 3}))
	// degenerate windows stay in place
	require.Equal(t, []uint16{0, 1, 1, 1, 2, 1, 1, 2, 2},
		StripToTriangles([]uint16{0, 1, 1, 2, 2}))
	require.Nil(t, StripToTriangles([]uint16{0, 1}))
	strip, _ := randomStrip(100)
	require.Len(t, StripToTriangles(strip), 3*98)
}

func TestTexCoords(t *testing.T) {
	vs := make([]Vertex, 2)
	packed := []byte{255, 0, 255, 0, 10, 20, 1, 2, 0, 0, 0, 1}
	uv, err := UnpackTexCoords(packed, vs)
	require.NoError(t, err)
	require.Equal(t, uint16(10), vs[0].U)
	require.Equal(t, uint16(30), vs[1].U)
	require.Equal(t, uint16(1), vs[0].V)
	require.Equal(t, uint16(3), vs[1].V)
	require.Equal(t, [2]float32{0.5, 0.5}, uv.Offset)
	require.Equal(t, [2]float32{1.0 / 256, 1.0 / 256}, uv.Scale)

	flipped := MeshUVTransform(uv, nil)
	require.Equal(t, float32(0.5-256), flipped.Offset[1])
	require.Equal(t, float32(-1.0/256), flipped.Scale[1])
	require.Equal(t, uv.Scale[0], flipped.Scale[0])

	over := MeshUVTransform(uv, []float32{1, 2, 3, 4})
	require.Equal(t, UVTransform{Offset: [2]float32{1, 2}, Scale: [2]float32{3, 4}}, over)

	_, err = UnpackTexCoords(packed[:11], vs)
	requireKind(t, err, "malformed")
	_, err = UnpackTexCoords(packed[:3], vs)
	requireKind(t, err, "truncated")
}

func TestOBB(t *testing.T) {
	o, err := UnpackOBB(PackOBB([3]int16{1, -2, 3}, [3]uint8{4, 5, 6}, [3]uint16{}),
		[3]float64{10, 20, 30}, 2)
	require.NoError(t, err)
	require.Equal(t, [3]float64{12, 16, 36}, o.Center)
	require.Equal(t, [3]float64{8, 10, 12}, o.Extents)
	require.Equal(t, [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}, o.Orientation)

	_, err = UnpackOBB(make([]byte, 14), [3]float64{}, 1)
	requireKind(t, err, "malformed")
}

func TestOBB_QuantizationExact(t *testing.T) {
	for range 1000 {
		var c [3]int16
		var e [3]uint8
		var a [3]uint16
		for i := range c {
			c[i] = int16(frand.Uint64n(1 << 16))
			e[i] = uint8(frand.Uint64n(1 << 8))
			a[i] = uint16(frand.Uint64n(1 << 16))
		}
		head := [3]float64{frand.Float64() * 1e6, frand.Float64() * 1e6, frand.Float64() * 1e6}
		mpt := float32(0.25 + frand.Float64()*8)
		o, err := UnpackOBB(PackOBB(c, e, a), head, mpt)
		require.NoError(t, err)
		for i := range 3 {
			require.Equal(t, c[i], int16(math.Round((o.Center[i]-head[i])/float64(mpt))))
			require.Equal(t, e[i], uint8(math.Round(o.Extents[i]/float64(mpt))))
		}
		for i := range 3 {
			ai := o.Axis(i)
			for j := range 3 {
				aj := o.Axis(j)
				dot := ai[0]*aj[0] + ai[1]*aj[1] + ai[2]*aj[2]
				want := 0.0
				if i == j {
					want = 1
				}
				require.InDelta(t, want, dot, 1e-9)
			}
		}
	}
}

func TestPathAndFlags_RoundTrip(t *testing.T) {
	for range 1000 {
		p := make([]byte, 1+frand.Intn(4))
		for i := range p {
			p[i] = byte('0' + frand.Intn(8))
		}
		flags := octree.Flags(frand.Intn(32))
		v, err := PackPathAndFlags(octree.Path(p), flags)
		require.NoError(t, err)
		pf := UnpackPathAndFlags(v)
		require.Equal(t, octree.Path(p), pf.Path)
		require.Equal(t, len(p), pf.Level)
		require.Equal(t, flags, pf.Flags)
	}
	_, err := PackPathAndFlags("01234", 0)
	require.Error(t, err)
}

func TestNormals(t *testing.T) {
	// scale 8 expands each byte to 0 or 255, (255, 0) decodes to -X
	table, err := UnpackForNormals([]byte{2, 0, 8, 1, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	require.Equal(t, [3]uint8{0, 127, 127}, table.At(0))

	ns, err := UnpackNormals(table, []byte{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, [][4]uint8{{table.At(1)[0], table.At(1)[1], table.At(1)[2], 0},
		{0, 127, 127, 0}}, ns)

	ns, err = UnpackNormals(table, nil, 2)
	require.NoError(t, err)
	require.Nil(t, ns)

	_, err = UnpackNormals(table, []byte{2, 0, 0, 0}, 2)
	requireKind(t, err, "out of range")
	_, err = UnpackNormals(table, []byte{0, 0}, 2)
	requireKind(t, err, "malformed")
	_, err = UnpackNormals(nil, []byte{0, 0}, 1)
	requireKind(t, err, "malformed")
	_, err = UnpackForNormals([]byte{2, 0, 8, 1})
	requireKind(t, err, "malformed")
	_, err = UnpackForNormals([]byte{2, 0})
	requireKind(t, err, "truncated")
}

func TestNormals_UnitLength(t *testing.T) {
	for s := 0; s <= 8; s++ {
		count := 256
		packed := append([]byte{byte(count), byte(count >> 8), byte(s)}, frand.Bytes(2*count)...)
		table, err := UnpackForNormals(packed)
		require.NoError(t, err)
		for i := range table.Len() {
			n := table.At(i)
			var l float64
			for _, c := range n {
				f := (float64(c) - 127) / 127
				l += f * f
			}
			require.InDelta(t, 1, math.Sqrt(l), 0.03, "scale %d entry %d: %v", s, i, n)
		}
	}
}

func TestOctantMask(t *testing.T) {
	vs := make([]Vertex, 3)
	bounds, err := UnpackOctantMaskAndLayerBounds([]byte{1, 3}, []uint16{0, 1, 2}, vs)
	require.NoError(t, err)
	for _, v := range vs {
		require.Equal(t, uint8(0), v.W)
	}
	require.Equal(t, [LayerCount]int{0, 3, 3, 3, 3, 3, 3, 3, 3, 3}, bounds)

	vs = make([]Vertex, 9)
	strip := []uint16{0, 1, 2, 3, 4, 5, 6, 7, 8}
	bounds, err = UnpackOctantMaskAndLayerBounds([]byte{9, 1, 1, 1, 1, 1, 1, 1, 1, 1}, strip, vs)
	require.NoError(t, err)
	for i, v := range vs {
		require.Equal(t, uint8(i&7), v.W)
	}
	require.Equal(t, [LayerCount]int{0, 8, 9, 9, 9, 9, 9, 9, 9, 9}, bounds)

	_, err = UnpackOctantMaskAndLayerBounds([]byte{1, 5}, []uint16{0, 1, 2}, make([]Vertex, 3))
	requireKind(t, err, "out of range")
	_, err = UnpackOctantMaskAndLayerBounds([]byte{1, 1}, []uint16{3}, make([]Vertex, 3))
	requireKind(t, err, "out of range")
	_, err = UnpackOctantMaskAndLayerBounds([]byte{2, 1}, []uint16{0, 1}, make([]Vertex, 3))
	requireKind(t, err, "truncated")
}

func testMesh(t *testing.T) *wire.Mesh {
	strip, count := randomStrip(300)
	indices, err := EncodeIndices(strip)
	require.NoError(t, err)
	vs := make([]Vertex, count)
	for i := range vs {
		vs[i] = Vertex{X: uint8(frand.Intn(256)), Y: uint8(frand.Intn(256)), Z: uint8(frand.Intn(256))}
	}
	// 16 runs of octant counts covering the whole strip
	counts := []byte{16}
	left := len(strip)
	for i := 0; i < 16; i++ {
		n := left / (16 - i)
		counts = append(counts, byte(n))
		left -= n
	}
	return &wire.Mesh{
		Vertices:             EncodeVertices(vs),
		Indices:              indices,
		TextureCoordinates:   append([]byte{255, 0, 255, 0}, frand.Bytes(4*count)...),
		LayerAndOctantCounts: counts,
	}
}

func TestDecodeMesh(t *testing.T) {
	wm := testMesh(t)
	m, err := DecodeMesh(wm, nil)
	require.NoError(t, err)
	require.True(t, m.HasOctants)
	require.Nil(t, m.Normals)
	require.NoError(t, CheckIndices(m.Strip, len(m.Vertices)))
	for _, v := range m.Vertices {
		require.NotEqual(t, uint8(OctantUnmasked), v.W)
	}
	require.Equal(t, m.LayerBounds[DefaultLayer], len(m.VisibleStrip(DefaultLayer)))
	require.Equal(t, m.Strip, m.VisibleStrip(LayerCount))
	require.Less(t, len(m.VisibleStrip(1)), len(m.Strip))
	require.Len(t, m.Triangles(LayerCount), 3*(len(m.Strip)-2))
	require.Equal(t, float32(-1.0/256), m.UV.Scale[1])

	wm.LayerAndOctantCounts = nil
	m, err = DecodeMesh(wm, nil)
	require.NoError(t, err)
	require.False(t, m.HasOctants)
	require.Equal(t, m.Strip, m.VisibleStrip(DefaultLayer))
}

func TestDecodeMesh_IndexPastVertices(t *testing.T) {
	indices, err := EncodeIndices([]uint16{0, 1, 2})
	require.NoError(t, err)
	_, err = DecodeMesh(&wire.Mesh{Vertices: make([]byte, 6), Indices: indices}, nil)
	requireKind(t, err, "out of range")
}

func TestDecodeNode_Deterministic(t *testing.T) {
	nd := &wire.NodeData{
		MatrixGlobeFromMesh: Identity[:],
		Meshes:              []*wire.Mesh{testMesh(t), testMesh(t), testMesh(t)},
	}
	key := octree.NodeKey{Path: "0123", Epoch: 5}
	a, err := DecodeNode(key, nd)
	require.NoError(t, err)
	b, err := DecodeNode(key, nd)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a.Meshes, 3)
	require.Positive(t, a.Size())

	nd.Meshes = append(nd.Meshes, &wire.Mesh{Vertices: []byte{1}})
	_, err = DecodeNode(key, nd)
	requireKind(t, err, "malformed")

	_, err = DecodeNode(key, &wire.NodeData{MatrixGlobeFromMesh: []float64{1}})
	requireKind(t, err, "malformed")
}

func TestDecodeBulk_SingleLeaf(t *testing.T) {
	pf, err := PackPathAndFlags("0", octree.Leaf)
	require.NoError(t, err)
	b, err := DecodeBulk(octree.NodeKey{Epoch: 3}, &wire.BulkMetadata{
		HeadNodeCenter: []float64{0, 0, 0},
		MetersPerTexel: []float32{1.0},
		NodeMetadata:   []*wire.NodeMetadata{{PathAndFlags: wire.U32(pf)}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, b.NodeCount())
	require.Equal(t, []octree.Path{"0"}, b.NodePaths())
	n, ok := b.Node("0")
	require.True(t, ok)
	require.True(t, n.IsLeaf())
	require.True(t, n.HasData())
	require.Equal(t, 1, n.Level())
	require.Equal(t, uint32(3), n.Epoch)
	require.Equal(t, float32(1), n.MetersPerTexel)
	require.Nil(t, n.OBB)
	require.Equal(t, octree.ChildMask(0), b.ChildMask("0"))
	require.Equal(t, octree.ChildMask(1), b.ChildMask(""))
	require.Empty(t, b.ChildBulks())
}

func TestDecodeBulk_ChildBulks(t *testing.T) {
	var nms []*wire.NodeMetadata
	for _, rel := range []octree.Path{"2", "21", "216", "2160", "2161"} {
		flags := octree.Flags(0)
		if rel == "2161" {
			flags = octree.Leaf | octree.NoData
		}
		pf, err := PackPathAndFlags(rel, flags)
		require.NoError(t, err)
		nm := &wire.NodeMetadata{PathAndFlags: wire.U32(pf),
			OrientedBoundingBox: PackOBB([3]int16{1, 1, 1}, [3]uint8{1, 1, 1}, [3]uint16{})}
		if rel == "2160" {
			nm.BulkMetadataEpoch = wire.U32(77)
			nm.Epoch = wire.U32(70)
		}
		nms = append(nms, nm)
	}
	b, err := DecodeBulk(octree.NodeKey{Path: "3012", Epoch: 9}, &wire.BulkMetadata{
		HeadNodeKey:    &wire.NodeKey{Path: "3012", Epoch: wire.U32(10)},
		HeadNodeCenter: []float64{100, 200, 300},
		MetersPerTexel: []float32{8, 4, 2, 1},
		NodeMetadata:   nms,
	})
	require.NoError(t, err)
	require.Equal(t, uint32(10), b.Head.Epoch)
	require.Equal(t, map[octree.Path]uint32{"30122160": 77}, b.ChildBulks())
	n, _ := b.Node("30122160")
	require.Equal(t, uint32(70), n.Epoch)
	require.Equal(t, [3]float64{101, 201, 301}, n.OBB.Center)
	n, _ = b.Node("301221")
	require.Equal(t, uint32(10), n.Epoch)
	require.Equal(t, [3]float64{104, 204, 304}, n.OBB.Center)
	require.True(t, b.ChildMask("3012").Has(2))
	require.Equal(t, []octree.Path{"3012216"}, b.ChildMask("301221").Children("301221"))
	require.Equal(t, octree.ChildMask(0).Set(0).Set(1), b.ChildMask("3012216"))
	n, _ = b.Node("30122161")
	require.False(t, n.HasData())
	require.False(t, n.ChildBulk)
}

func TestDecodeBulk_Errors(t *testing.T) {
	pf, _ := PackPathAndFlags("0", 0)
	_, err := DecodeBulk(octree.NodeKey{}, &wire.BulkMetadata{
		NodeMetadata: []*wire.NodeMetadata{{PathAndFlags: wire.U32(pf)}, {PathAndFlags: wire.U32(pf)}},
	})
	requireKind(t, err, "malformed")
	_, err = DecodeBulk(octree.NodeKey{}, &wire.BulkMetadata{
		NodeMetadata: []*wire.NodeMetadata{{PathAndFlags: wire.U32(pf), OrientedBoundingBox: []byte{1}}},
	})
	requireKind(t, err, "malformed")
	_, err = DecodeBulk(octree.NodeKey{}, &wire.BulkMetadata{HeadNodeCenter: []float64{1}})
	requireKind(t, err, "malformed")
}

func TestDecodePlanetoid(t *testing.T) {
	p, err := DecodePlanetoid(&wire.PlanetoidMetadata{
		RootNodeMetadata: &wire.NodeMetadata{Epoch: wire.U32(1001)},
		Radius:           wire.F32(6371010),
	})
	require.NoError(t, err)
	require.Equal(t, octree.NodeKey{Epoch: 1001}, p.RootBulk())
	require.Equal(t, float32(6371010), p.Radius)
	_, err = DecodePlanetoid(&wire.PlanetoidMetadata{})
	requireKind(t, err, "malformed")
}
