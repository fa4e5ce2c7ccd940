package decode

import (
	"rocktree.lol/octree"
	"rocktree.lol/wire"
)

// NodeMeta is the decoded metadata of one node carried by a bulk.
type NodeMeta struct {
	Path  octree.Path
	Flags octree.Flags
	// OBB is nil when the bulk sent no box for the node.
	OBB            *OBB
	MetersPerTexel float32
	Epoch          uint32
	// ChildBulk is set for nodes four levels below the head that head a bulk
	// of their own, BulkEpoch is the epoch to request it at.
	ChildBulk               bool
	BulkEpoch               uint32
	AvailableTextureFormats uint32
	ImageryEpoch            uint32
	HasImageryEpoch         bool
	// ChildMask records which child octants appear in the same bulk.
	ChildMask octree.ChildMask
}

// Level is the depth of the node.
func (n *NodeMeta) Level() int { return n.Path.Level() }

// HasData reports whether node data can be requested for the node.
func (n *NodeMeta) HasData() bool { return !n.Flags.Has(octree.NoData) }

// IsLeaf reports whether the node has no children anywhere.
func (n *NodeMeta) IsLeaf() bool { return n.Flags.Has(octree.Leaf) }

// Key is the node data version the bulk advertises.
func (n *NodeMeta) Key() octree.NodeKey { return octree.NodeKey{Path: n.Path, Epoch: n.Epoch} }

// Bulk is decoded bulk metadata.
type Bulk struct {
	Head                  octree.NodeKey
	HeadNodeCenter        [3]float64
	MetersPerTexel        []float32
	DefaultImageryEpoch   uint32
	DefaultTextureFormats uint32
	// HeadChildren records which children of the head node appear.
	HeadChildren octree.ChildMask
	Nodes        map[octree.Path]*NodeMeta
	paths        []octree.Path
}

// NodeCount is the number of node entries.
func (b *Bulk) NodeCount() int { return len(b.paths) }

// NodePaths lists the node paths in message order.
func (b *Bulk) NodePaths() []octree.Path { return b.paths }

// Node returns the metadata of p.
func (b *Bulk) Node(p octree.Path) (n *NodeMeta, ok bool) {
	n, ok = b.Nodes[p]
	return
}

// ChildMask returns the child octants of p known to this bulk.
func (b *Bulk) ChildMask(p octree.Path) octree.ChildMask {
	if p == b.Head.Path {
		return b.HeadChildren
	}
	if n, ok := b.Nodes[p]; ok {
		return n.ChildMask
	}
	return 0
}

// ChildBulks maps the head of every child bulk to the epoch it is requested
// at.
func (b *Bulk) ChildBulks() (cb map[octree.Path]uint32) {
	cb = make(map[octree.Path]uint32)
	for _, p := range b.paths {
		if n := b.Nodes[p]; n.ChildBulk {
			cb[p] = n.BulkEpoch
		}
	}
	return
}

// Size approximates the memory held by b in bytes.
func (b *Bulk) Size() int { return 128 + len(b.paths)*(160+len(b.Head.Path)+octree.BulkDepth) }

// DecodeBulk decodes the bulk fetched for head. Node paths in the message are
// relative to the head and are made absolute here. Node versions default to
// the head epoch.
func DecodeBulk(head octree.NodeKey, bm *wire.BulkMetadata) (b *Bulk, err error) {
	b = &Bulk{
		Head:           head,
		MetersPerTexel: bm.MetersPerTexel,
		Nodes:          make(map[octree.Path]*NodeMeta, len(bm.NodeMetadata)),
	}
	if bm.HeadNodeKey != nil && bm.HeadNodeKey.Epoch != nil {
		b.Head.Epoch = *bm.HeadNodeKey.Epoch
	}
	switch len(bm.HeadNodeCenter) {
	case 0:
	case 3:
		copy(b.HeadNodeCenter[:], bm.HeadNodeCenter)
	default:
		return nil, fail(Malformed, "head_node_center", 0, "%d elements", len(bm.HeadNodeCenter))
	}
	if bm.DefaultImageryEpoch != nil {
		b.DefaultImageryEpoch = *bm.DefaultImageryEpoch
	}
	if bm.DefaultAvailableTextureFormats != nil {
		b.DefaultTextureFormats = *bm.DefaultAvailableTextureFormats
	}
	for i, wn := range bm.NodeMetadata {
		var n *NodeMeta
		if n, err = b.decodeNode(i, wn); err != nil {
			return nil, err
		}
		if _, dup := b.Nodes[n.Path]; dup {
			return nil, fail(Malformed, "node_metadata", i, "duplicate path %s", n.Path)
		}
		b.Nodes[n.Path] = n
		b.paths = append(b.paths, n.Path)
	}
	for _, p := range b.paths {
		parent := p.Parent()
		if parent == b.Head.Path {
			b.HeadChildren = b.HeadChildren.Set(p.Octant())
		} else if pn, ok := b.Nodes[parent]; ok {
			pn.ChildMask = pn.ChildMask.Set(p.Octant())
		}
	}
	return
}

func (b *Bulk) decodeNode(i int, wn *wire.NodeMetadata) (n *NodeMeta, err error) {
	if wn.PathAndFlags == nil {
		return nil, fail(Malformed, "node_metadata", i, "no path_and_flags")
	}
	pf := UnpackPathAndFlags(*wn.PathAndFlags)
	n = &NodeMeta{
		Path:                    b.Head.Path + pf.Path,
		Flags:                   pf.Flags,
		Epoch:                   b.Head.Epoch,
		AvailableTextureFormats: b.DefaultTextureFormats,
	}
	switch {
	case wn.MetersPerTexel != nil:
		n.MetersPerTexel = *wn.MetersPerTexel
	case pf.Level <= len(b.MetersPerTexel):
		n.MetersPerTexel = b.MetersPerTexel[pf.Level-1]
	default:
		n.MetersPerTexel = 1
	}
	if wn.Epoch != nil {
		n.Epoch = *wn.Epoch
	}
	if wn.AvailableTextureFormats != nil {
		n.AvailableTextureFormats = *wn.AvailableTextureFormats
	}
	if pf.Level == octree.BulkDepth && !n.IsLeaf() {
		n.ChildBulk, n.BulkEpoch = true, b.Head.Epoch
		if wn.BulkMetadataEpoch != nil {
			n.BulkEpoch = *wn.BulkMetadataEpoch
		}
	}
	if n.Flags.Has(octree.UseImageryEpoch) {
		n.ImageryEpoch, n.HasImageryEpoch = b.DefaultImageryEpoch, true
		if wn.ImageryEpoch != nil {
			n.ImageryEpoch = *wn.ImageryEpoch
		}
	}
	if wn.OrientedBoundingBox != nil {
		if n.OBB, err = UnpackOBB(wn.OrientedBoundingBox, b.HeadNodeCenter,
			n.MetersPerTexel); err != nil {
			return nil, err
		}
	}
	return
}
