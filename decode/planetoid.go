package decode

import (
	"rocktree.lol/octree"
	"rocktree.lol/wire"
)

// Planetoid is the decoded planetoid metadata.
type Planetoid struct {
	Radius             float32
	MinTerrainAltitude float32
	MaxTerrainAltitude float32
	// RootEpoch is the epoch the root bulk is requested at.
	RootEpoch uint32
}

// RootBulk is the key of the root bulk.
func (p *Planetoid) RootBulk() octree.NodeKey {
	return octree.NodeKey{Path: octree.Root, Epoch: p.RootEpoch}
}

// DecodePlanetoid decodes planetoid metadata. A message without root node
// metadata gives no way to reach the tree and is rejected.
func DecodePlanetoid(pm *wire.PlanetoidMetadata) (p *Planetoid, err error) {
	if pm.RootNodeMetadata == nil {
		return nil, fail(Malformed, "planetoid", 0, "no root_node_metadata")
	}
	p = &Planetoid{}
	if pm.RootNodeMetadata.Epoch != nil {
		p.RootEpoch = *pm.RootNodeMetadata.Epoch
	}
	if pm.Radius != nil {
		p.Radius = *pm.Radius
	}
	if pm.MinTerrainAltitude != nil {
		p.MinTerrainAltitude = *pm.MinTerrainAltitude
	}
	if pm.MaxTerrainAltitude != nil {
		p.MaxTerrainAltitude = *pm.MaxTerrainAltitude
	}
	return
}

// Size approximates the memory held by p in bytes.
func (p *Planetoid) Size() int { return 16 }
