package cache

import (
	"fmt"

	"rocktree.lol/octree"
)

// Kind is the type of artifact a key names.
type Kind uint8

const (
	Planetoid Kind = iota + 1
	Bulk
	Node
)

func (k Kind) String() string {
	switch k {
	case Planetoid:
		return "planetoid"
	case Bulk:
		return "bulk"
	case Node:
		return "node"
	}
	return "unknown"
}

// Key names one version of one artifact.
type Key struct {
	Kind  Kind
	Path  octree.Path
	Epoch uint32
}

// BulkKey is the key of a bulk.
func BulkKey(k octree.NodeKey) Key { return Key{Kind: Bulk, Path: k.Path, Epoch: k.Epoch} }

// NodeKey is the key of node data.
func NodeKey(k octree.NodeKey) Key { return Key{Kind: Node, Path: k.Path, Epoch: k.Epoch} }

// PlanetoidKey is the key of the planetoid metadata.
var PlanetoidKey = Key{Kind: Planetoid}

// NodeKey returns the octree address of k.
func (k Key) NodeKey() octree.NodeKey { return octree.NodeKey{Path: k.Path, Epoch: k.Epoch} }

func (k Key) String() string { return fmt.Sprintf("%s:%s@%d", k.Kind, k.Path, k.Epoch) }

// State is the fetch state of a key.
type State uint8

const (
	NotRequested State = iota
	Pending
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case NotRequested:
		return "not requested"
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}
