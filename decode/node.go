package decode

import (
	"golang.org/x/sync/errgroup"

	"rocktree.lol/octree"
	"rocktree.lol/wire"
)

// Identity is the 4x4 identity matrix in column major order.
var Identity = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// Node is the decoded geometry of one node version.
type Node struct {
	Key octree.NodeKey
	// MatrixGlobeFromMesh maps quantized mesh space to globe space, column
	// major.
	MatrixGlobeFromMesh [16]float64
	Meshes              []*Mesh
	CopyrightIDs        []uint32
	Normals             *NormalTable
}

// Size approximates the memory held by n in bytes.
func (n *Node) Size() (s int) {
	s = 128 + 3*n.Normals.Len()
	for _, m := range n.Meshes {
		s += m.Size()
	}
	return
}

// DecodeNode decodes a node data message fetched for key. The meshes share the
// node normal table and are decoded in parallel; the first failure is
// returned.
func DecodeNode(key octree.NodeKey, nd *wire.NodeData) (n *Node, err error) {
	n = &Node{Key: key, MatrixGlobeFromMesh: Identity, CopyrightIDs: nd.CopyrightIDs}
	switch len(nd.MatrixGlobeFromMesh) {
	case 0:
	case 16:
		copy(n.MatrixGlobeFromMesh[:], nd.MatrixGlobeFromMesh)
	default:
		return nil, fail(Malformed, "matrix_globe_from_mesh", 0,
			"%d elements", len(nd.MatrixGlobeFromMesh))
	}
	if len(nd.ForNormals) > 0 {
		if n.Normals, err = UnpackForNormals(nd.ForNormals); err != nil {
			return nil, err
		}
	}
	n.Meshes = make([]*Mesh, len(nd.Meshes))
	var g errgroup.Group
	for i, wm := range nd.Meshes {
		g.Go(func() (err error) {
			n.Meshes[i], err = DecodeMesh(wm, n.Normals)
			return
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}
	return
}
