package decode

import (
	"rocktree.lol/texture"
	"rocktree.lol/wire"
)

// DefaultLayer is the detail layer drawn when a node is rendered on its own.
const DefaultLayer = 3

// Mesh is one decoded mesh of a node. Strip is the full generalized triangle
// strip; LayerBounds lets callers cut it to a detail layer without decoding
// again.
type Mesh struct {
	ID          uint32
	Vertices    []Vertex
	Strip       []uint16
	LayerBounds [LayerCount]int
	UV          UVTransform
	// HasOctants is set when the W of every vertex was assigned from an
	// octant run, otherwise W is OctantUnmasked.
	HasOctants bool
	// Normals holds one entry per vertex, nil when the mesh has none.
	Normals  [][4]uint8
	Textures []*texture.Texture
}

// VisibleStrip returns the strip prefix that draws layers up to layer.
func (m *Mesh) VisibleStrip(layer int) []uint16 {
	if layer < 0 {
		layer = 0
	}
	if layer >= LayerCount {
		return m.Strip
	}
	return m.Strip[:min(m.LayerBounds[layer], len(m.Strip))]
}

// Triangles expands the visible strip of layer into a triangle list.
func (m *Mesh) Triangles(layer int) []uint16 { return StripToTriangles(m.VisibleStrip(layer)) }

// Size approximates the memory held by m in bytes.
func (m *Mesh) Size() (n int) {
	n = 8*len(m.Vertices) + 2*len(m.Strip) + 4*len(m.Normals)
	for _, t := range m.Textures {
		n += t.Size()
	}
	return
}

// DecodeMesh decodes every stream of a wire mesh. normals is the node table,
// nil when the node has none.
func DecodeMesh(wm *wire.Mesh, normals *NormalTable) (m *Mesh, err error) {
	m = &Mesh{}
	if wm.MeshID != nil {
		m.ID = *wm.MeshID
	}
	if m.Vertices, err = UnpackVertices(wm.Vertices); err != nil {
		return nil, err
	}
	if m.Strip, err = UnpackIndices(wm.Indices); err != nil {
		return nil, err
	}
	if err = CheckIndices(m.Strip, len(m.Vertices)); err != nil {
		return nil, err
	}
	uv := IdentityUV
	if len(wm.TextureCoordinates) > 0 && len(m.Vertices) > 0 {
		if uv, err = UnpackTexCoords(wm.TextureCoordinates, m.Vertices); err != nil {
			return nil, err
		}
	}
	m.UV = MeshUVTransform(uv, wm.UVOffsetAndScale)
	if len(wm.LayerAndOctantCounts) > 0 && len(m.Strip) > 0 {
		if m.LayerBounds, err = UnpackOctantMaskAndLayerBounds(wm.LayerAndOctantCounts,
			m.Strip, m.Vertices); err != nil {
			return nil, err
		}
		m.HasOctants = true
	} else {
		for i := range m.LayerBounds {
			m.LayerBounds[i] = len(m.Strip)
		}
	}
	if m.Normals, err = UnpackNormals(normals, wm.Normals, len(m.Vertices)); err != nil {
		return nil, err
	}
	for i, wt := range wm.Texture {
		if len(wt.Data) == 0 {
			continue
		}
		var t *texture.Texture
		if t, err = texture.Decode(texture.Format(wt.GetFormat()), wt.Data[0],
			int(wt.GetWidth()), int(wt.GetHeight())); err != nil {
			return nil, fail(Malformed, "texture", i, "%s", err)
		}
		m.Textures = append(m.Textures, t)
	}
	return
}
