package wire

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// Texture formats as carried in Texture.format and the availability bitmasks.
const (
	FormatJPG     = 1
	FormatDXT1    = 2
	FormatETC1    = 3
	FormatPVRTC2  = 4
	FormatPVRTC4  = 5
	FormatCRNDXT1 = 6
)

// NodeKey names a node version.
type NodeKey struct {
	Path  st
	Epoch *uint32
}

func (k *NodeKey) GetPath() st {
	if k == nil {
		return ""
	}
	return k.Path
}

func (k *NodeKey) GetEpoch() uint32 {
	if k == nil || k.Epoch == nil {
		return 0
	}
	return *k.Epoch
}

func (k *NodeKey) unmarshal(b by, base no) (err er) {
	return fields("NodeKey", b, base, func(f *field) (err er) {
		switch f.num {
		case 1:
			if err = f.want("NodeKey.path", protowire.BytesType); err == nil {
				k.Path = st(f.b)
			}
		case 2:
			k.Epoch, err = f.uint32("NodeKey.epoch")
		}
		return
	})
}

// Marshal encodes k.
func (k *NodeKey) Marshal() (b by) {
	if k.Path != "" {
		b = appendString(b, 1, k.Path)
	}
	return appendUint32(b, 2, k.Epoch)
}

// NodeMetadata is the per-node entry of a bulk.
type NodeMetadata struct {
	PathAndFlags            *uint32
	Epoch                   *uint32
	BulkMetadataEpoch       *uint32
	OrientedBoundingBox     by
	MetersPerTexel          *float32
	ImageryEpoch            *uint32
	AvailableTextureFormats *uint32
}

func (m *NodeMetadata) unmarshal(b by, base no) (err er) {
	return fields("NodeMetadata", b, base, func(f *field) (err er) {
		switch f.num {
		case 1:
			m.PathAndFlags, err = f.uint32("NodeMetadata.path_and_flags")
		case 2:
			m.Epoch, err = f.uint32("NodeMetadata.epoch")
		case 3:
			m.OrientedBoundingBox, err = f.bytes("NodeMetadata.oriented_bounding_box")
		case 4:
			m.MetersPerTexel, err = f.float32("NodeMetadata.meters_per_texel")
		case 5:
			m.BulkMetadataEpoch, err = f.uint32("NodeMetadata.bulk_metadata_epoch")
		case 7:
			m.ImageryEpoch, err = f.uint32("NodeMetadata.imagery_epoch")
		case 8:
			m.AvailableTextureFormats, err = f.uint32("NodeMetadata.available_texture_formats")
		}
		return
	})
}

// Marshal encodes m.
func (m *NodeMetadata) Marshal() (b by) {
	b = appendUint32(b, 1, m.PathAndFlags)
	b = appendUint32(b, 2, m.Epoch)
	b = appendBytes(b, 3, m.OrientedBoundingBox)
	b = appendFloat32(b, 4, m.MetersPerTexel)
	b = appendUint32(b, 5, m.BulkMetadataEpoch)
	b = appendUint32(b, 7, m.ImageryEpoch)
	return appendUint32(b, 8, m.AvailableTextureFormats)
}

// BulkMetadata groups the metadata of up to four levels below a head node.
type BulkMetadata struct {
	NodeMetadata                   []*NodeMetadata
	HeadNodeKey                    *NodeKey
	HeadNodeCenter                 []float64
	MetersPerTexel                 []float32
	DefaultImageryEpoch            *uint32
	DefaultAvailableTextureFormats *uint32
}

// ParseBulkMetadata parses a BulkMetadata response body.
func ParseBulkMetadata(b by) (m *BulkMetadata, err er) {
	m = &BulkMetadata{}
	if err = fields("BulkMetadata", b, 0, func(f *field) (err er) {
		switch f.num {
		case 1:
			if err = f.want("BulkMetadata.node_metadata", protowire.BytesType); err != nil {
				return
			}
			nm := &NodeMetadata{}
			if err = nm.unmarshal(f.b, f.off); err != nil {
				return
			}
			m.NodeMetadata = append(m.NodeMetadata, nm)
		case 2:
			if err = f.want("BulkMetadata.head_node_key", protowire.BytesType); err != nil {
				return
			}
			m.HeadNodeKey = &NodeKey{}
			err = m.HeadNodeKey.unmarshal(f.b, f.off)
		case 3:
			m.HeadNodeCenter, err = f.float64s("BulkMetadata.head_node_center", m.HeadNodeCenter)
		case 4:
			m.MetersPerTexel, err = f.float32s("BulkMetadata.meters_per_texel", m.MetersPerTexel)
		case 5:
			m.DefaultImageryEpoch, err = f.uint32("BulkMetadata.default_imagery_epoch")
		case 6:
			m.DefaultAvailableTextureFormats, err = f.uint32(
				"BulkMetadata.default_available_texture_formats")
		}
		return
	}); err != nil {
		return nil, wrap(err, "BulkMetadata")
	}
	return
}

// Marshal encodes m.
func (m *BulkMetadata) Marshal() (b by) {
	for _, nm := range m.NodeMetadata {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, nm.Marshal())
	}
	if m.HeadNodeKey != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.HeadNodeKey.Marshal())
	}
	b = appendPackedFloat64(b, 3, m.HeadNodeCenter)
	b = appendPackedFloat32(b, 4, m.MetersPerTexel)
	b = appendUint32(b, 5, m.DefaultImageryEpoch)
	return appendUint32(b, 6, m.DefaultAvailableTextureFormats)
}

// Texture is one encoded texture image of a mesh.
type Texture struct {
	Data   []by
	Format *uint32
	Width  *uint32
	Height *uint32
}

func (t *Texture) GetFormat() uint32 {
	if t.Format == nil {
		return FormatJPG
	}
	return *t.Format
}

func (t *Texture) GetWidth() uint32 {
	if t.Width == nil {
		return 256
	}
	return *t.Width
}

func (t *Texture) GetHeight() uint32 {
	if t.Height == nil {
		return 256
	}
	return *t.Height
}

func (t *Texture) unmarshal(b by, base no) (err er) {
	return fields("Texture", b, base, func(f *field) (err er) {
		switch f.num {
		case 1:
			var d by
			if d, err = f.bytes("Texture.data"); err == nil {
				t.Data = append(t.Data, d)
			}
		case 2:
			t.Format, err = f.uint32("Texture.format")
		case 3:
			t.Width, err = f.uint32("Texture.width")
		case 4:
			t.Height, err = f.uint32("Texture.height")
		}
		return
	})
}

// Marshal encodes t.
func (t *Texture) Marshal() (b by) {
	for _, d := range t.Data {
		b = appendBytes(b, 1, d)
	}
	b = appendUint32(b, 2, t.Format)
	b = appendUint32(b, 3, t.Width)
	return appendUint32(b, 4, t.Height)
}

// Mesh carries the packed geometry streams of one mesh of a node.
type Mesh struct {
	Vertices             by
	TextureCoordinates   by
	Indices              by
	LayerAndOctantCounts by
	Normals              by
	Texture              []*Texture
	UVOffsetAndScale     []float32
	MeshID               *uint32
}

func (m *Mesh) unmarshal(b by, base no) (err er) {
	return fields("Mesh", b, base, func(f *field) (err er) {
		switch f.num {
		case 1:
			m.Vertices, err = f.bytes("Mesh.vertices")
		case 3:
			m.Indices, err = f.bytes("Mesh.indices")
		case 6:
			if err = f.want("Mesh.texture", protowire.BytesType); err != nil {
				return
			}
			t := &Texture{}
			if err = t.unmarshal(f.b, f.off); err == nil {
				m.Texture = append(m.Texture, t)
			}
		case 7:
			m.TextureCoordinates, err = f.bytes("Mesh.texture_coordinates")
		case 8:
			m.LayerAndOctantCounts, err = f.bytes("Mesh.layer_and_octant_counts")
		case 10:
			m.UVOffsetAndScale, err = f.float32s("Mesh.uv_offset_and_scale", m.UVOffsetAndScale)
		case 11:
			m.Normals, err = f.bytes("Mesh.normals")
		case 12:
			m.MeshID, err = f.uint32("Mesh.mesh_id")
		}
		return
	})
}

// Marshal encodes m.
func (m *Mesh) Marshal() (b by) {
	b = appendBytes(b, 1, m.Vertices)
	b = appendBytes(b, 3, m.Indices)
	for _, t := range m.Texture {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, t.Marshal())
	}
	b = appendBytes(b, 7, m.TextureCoordinates)
	b = appendBytes(b, 8, m.LayerAndOctantCounts)
	b = appendPackedFloat32(b, 10, m.UVOffsetAndScale)
	b = appendBytes(b, 11, m.Normals)
	return appendUint32(b, 12, m.MeshID)
}

// NodeData is the geometry payload of one node.
type NodeData struct {
	MatrixGlobeFromMesh []float64
	Meshes              []*Mesh
	CopyrightIDs        []uint32
	NodeKey             *NodeKey
	ForNormals          by
}

// ParseNodeData parses a NodeData response body.
func ParseNodeData(b by) (n *NodeData, err er) {
	n = &NodeData{}
	if err = fields("NodeData", b, 0, func(f *field) (err er) {
		switch f.num {
		case 1:
			n.MatrixGlobeFromMesh, err = f.float64s("NodeData.matrix_globe_from_mesh",
				n.MatrixGlobeFromMesh)
		case 2:
			if err = f.want("NodeData.meshes", protowire.BytesType); err != nil {
				return
			}
			m := &Mesh{}
			if err = m.unmarshal(f.b, f.off); err == nil {
				n.Meshes = append(n.Meshes, m)
			}
		case 3:
			n.CopyrightIDs, err = f.uint32s("NodeData.copyright_ids", n.CopyrightIDs)
		case 4:
			if err = f.want("NodeData.node_key", protowire.BytesType); err != nil {
				return
			}
			n.NodeKey = &NodeKey{}
			err = n.NodeKey.unmarshal(f.b, f.off)
		case 8:
			n.ForNormals, err = f.bytes("NodeData.for_normals")
		}
		return
	}); err != nil {
		return nil, wrap(err, "NodeData")
	}
	return
}

// Marshal encodes n.
func (n *NodeData) Marshal() (b by) {
	b = appendPackedFloat64(b, 1, n.MatrixGlobeFromMesh)
	for _, m := range n.Meshes {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Marshal())
	}
	b = appendPackedUint32(b, 3, n.CopyrightIDs)
	if n.NodeKey != nil {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, n.NodeKey.Marshal())
	}
	return appendBytes(b, 8, n.ForNormals)
}

// PlanetoidMetadata describes the planet and the root bulk.
type PlanetoidMetadata struct {
	RootNodeMetadata   *NodeMetadata
	Radius             *float32
	MinTerrainAltitude *float32
	MaxTerrainAltitude *float32
}

// ParsePlanetoidMetadata parses a PlanetoidMetadata response body.
func ParsePlanetoidMetadata(b by) (p *PlanetoidMetadata, err er) {
	p = &PlanetoidMetadata{}
	if err = fields("PlanetoidMetadata", b, 0, func(f *field) (err er) {
		switch f.num {
		case 1:
			if err = f.want("PlanetoidMetadata.root_node_metadata", protowire.BytesType); err != nil {
				return
			}
			p.RootNodeMetadata = &NodeMetadata{}
			err = p.RootNodeMetadata.unmarshal(f.b, f.off)
		case 2:
			p.Radius, err = f.float32("PlanetoidMetadata.radius")
		case 3:
			p.MinTerrainAltitude, err = f.float32("PlanetoidMetadata.min_terrain_altitude")
		case 4:
			p.MaxTerrainAltitude, err = f.float32("PlanetoidMetadata.max_terrain_altitude")
		}
		return
	}); err != nil {
		return nil, wrap(err, "PlanetoidMetadata")
	}
	return
}

// Marshal encodes p.
func (p *PlanetoidMetadata) Marshal() (b by) {
	if p.RootNodeMetadata != nil {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, p.RootNodeMetadata.Marshal())
	}
	b = appendFloat32(b, 2, p.Radius)
	b = appendFloat32(b, 3, p.MinTerrainAltitude)
	return appendFloat32(b, 4, p.MaxTerrainAltitude)
}
