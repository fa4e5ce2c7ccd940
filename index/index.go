// Package index records the decoded bulks of a planetoid by head path and
// answers addressing questions against them: which bulk covers a path, which
// children a node has and which node version is current.
package index

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"rocktree.lol/decode"
	"rocktree.lol/octree"
)

var (
	// ErrBulkMissing is matched by *BulkMissing.
	ErrBulkMissing = errors.New("bulk not loaded")
	// ErrNoSuchNode is returned when a loaded bulk proves a path does not
	// exist.
	ErrNoSuchNode = errors.New("no such node")
	// ErrNoData is returned for nodes that exist but carry no geometry.
	ErrNoData = errors.New("node has no data")
)

// BulkMissing names the first bulk on the way to a path that is not loaded.
// EpochKnown is false only for the root bulk before the planetoid is known.
type BulkMissing struct {
	Key        octree.NodeKey
	EpochKnown bool
}

func (e *BulkMissing) Error() string {
	if !e.EpochKnown {
		return fmt.Sprintf("bulk %s not loaded, epoch unknown", e.Key.Path)
	}
	return fmt.Sprintf("bulk %s not loaded", e.Key)
}

func (e *BulkMissing) Is(target error) bool { return target == ErrBulkMissing }

// EpochMismatch is a node version that is not the one its bulk advertises.
type EpochMismatch struct {
	Requested  octree.NodeKey
	Advertised octree.NodeKey
}

func (e *EpochMismatch) Error() string {
	return fmt.Sprintf("epoch mismatch: requested %s, bulk advertises %s", e.Requested, e.Advertised)
}

// T is the bulk index. It is safe for concurrent use.
type T struct {
	bulks *xsync.MapOf[octree.Path, *decode.Bulk]
	// root is the root bulk epoch plus one, zero while unknown.
	root atomic.Uint64
}

// New creates an empty index.
func New() *T { return &T{bulks: xsync.NewMapOf[octree.Path, *decode.Bulk]()} }

// SetRoot records the root bulk epoch from the planetoid metadata.
func (t *T) SetRoot(epoch uint32) { t.root.Store(uint64(epoch) + 1) }

// Root returns the root bulk key, ok is false before SetRoot.
func (t *T) Root() (k octree.NodeKey, ok bool) {
	r := t.root.Load()
	if r == 0 {
		return
	}
	return octree.NodeKey{Path: octree.Root, Epoch: uint32(r - 1)}, true
}

// Put records b under its head path and reports whether it replaced a bulk
// of a different epoch.
func (t *T) Put(b *decode.Bulk) (superseded bool) {
	prev, loaded := t.bulks.LoadAndStore(b.Head.Path, b)
	return loaded && prev.Head.Epoch != b.Head.Epoch
}

// Remove drops the bulk headed at head.
func (t *T) Remove(head octree.Path) { t.bulks.Delete(head) }

// Bulk returns the bulk headed at head.
func (t *T) Bulk(head octree.Path) (b *decode.Bulk, ok bool) { return t.bulks.Load(head) }

// Len is the number of bulks held.
func (t *T) Len() int { return t.bulks.Size() }

// ResolveBulkFor walks the bulk chain of p from the root and returns the key
// of the bulk carrying the metadata of p, every bulk above it being loaded at
// the epoch its parent advertises. Otherwise the error is a *BulkMissing for
// the first bulk to fetch, or ErrNoSuchNode when a loaded bulk shows the
// subtree does not exist.
func (t *T) ResolveBulkFor(p octree.Path) (k octree.NodeKey, err error) {
	k, _, err = t.resolve(p)
	return
}

// resolve is ResolveBulkFor also returning the bulk it validated, so that
// callers never load it again while another goroutine removes it.
func (t *T) resolve(p octree.Path) (k octree.NodeKey, b *decode.Bulk, err error) {
	var ok bool
	if k, ok = t.Root(); !ok {
		return k, nil, &BulkMissing{Key: k}
	}
	var parent *decode.Bulk
	for _, head := range octree.BulkChain(p) {
		if parent != nil {
			n, found := parent.Node(head)
			if !found || !n.ChildBulk {
				return k, nil, fmt.Errorf("%w: %s has no bulk below %s", ErrNoSuchNode, p, parent.Head.Path)
			}
			k = octree.NodeKey{Path: head, Epoch: n.BulkEpoch}
		}
		var loaded bool
		if b, loaded = t.bulks.Load(head); !loaded || b.Head.Epoch != k.Epoch {
			return k, nil, &BulkMissing{Key: k, EpochKnown: true}
		}
		parent = b
	}
	return
}

// Meta returns the metadata of p from the bulk that carries it.
func (t *T) Meta(p octree.Path) (n *decode.NodeMeta, err error) {
	if p.IsRoot() {
		return nil, fmt.Errorf("%w: root has no metadata", ErrNoSuchNode)
	}
	var head octree.NodeKey
	var b *decode.Bulk
	if head, b, err = t.resolve(p); err != nil {
		return
	}
	var ok bool
	if n, ok = b.Node(p); !ok {
		err = fmt.Errorf("%w: %s not in bulk %s", ErrNoSuchNode, p, head)
	}
	return
}

// NodeKeyFor returns the node data version of p advertised by its bulk.
func (t *T) NodeKeyFor(p octree.Path) (k octree.NodeKey, n *decode.NodeMeta, err error) {
	if p.IsRoot() {
		err = fmt.Errorf("%w: root", ErrNoData)
		return
	}
	if n, err = t.Meta(p); err != nil {
		return
	}
	if !n.HasData() {
		err = fmt.Errorf("%w: %s", ErrNoData, p)
		return
	}
	return n.Key(), n, nil
}

// ChildrenOf expands a child existence mask of p.
func ChildrenOf(p octree.Path, mask octree.ChildMask) []octree.Path { return mask.Children(p) }

// Children returns the children of p. Children of a node at a bulk boundary
// live in the next bulk down, which must be loaded.
func (t *T) Children(p octree.Path) (c []octree.Path, err error) {
	var b *decode.Bulk
	if _, b, err = t.resolve(p.Child(0)); err != nil {
		return
	}
	return ChildrenOf(p, b.ChildMask(p)), nil
}

// CheckEpoch verifies k is the version of its node the index advertises.
func (t *T) CheckEpoch(k octree.NodeKey) (err error) {
	var adv octree.NodeKey
	if adv, _, err = t.NodeKeyFor(k.Path); err != nil {
		return
	}
	if adv.Epoch != k.Epoch {
		return &EpochMismatch{Requested: k, Advertised: adv}
	}
	return
}
