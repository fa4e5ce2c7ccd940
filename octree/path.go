// Package octree addresses planet octree nodes by value. A node is its Path,
// the string of octant digits leading to it from the root, and every relation
// between nodes (parent, child, ancestor, covering bulk) is derived from the
// digits rather than from links.
package octree

import (
	"errors"
	"fmt"
)

// BulkDepth is the number of levels covered by one bulk metadata message.
const BulkDepth = 4

// ErrInvalidPath is returned for strings containing anything but '0'..'7'.
var ErrInvalidPath = errors.New("octree: invalid path")

// Path is a sequence of octant digits '0'..'7'. The root is the empty path.
type Path string

// Root is the path of the planetoid root node.
const Root Path = ""

// ParsePath validates s as a Path.
func ParsePath(s string) (p Path, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '7' {
			err = fmt.Errorf("%w %q: byte %d is %q", ErrInvalidPath, s, i, s[i])
			return
		}
	}
	return Path(s), nil
}

// MustPath is ParsePath that panics, for constants and tests.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Valid reports whether every digit is an octant.
func (p Path) Valid() bool {
	_, err := ParsePath(string(p))
	return err == nil
}

// Level is the depth of the node, the root is level 0.
func (p Path) Level() int { return len(p) }

// IsRoot reports whether p is the root.
func (p Path) IsRoot() bool { return len(p) == 0 }

// Parent returns the path one level up. The parent of the root is the root.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Octant is the last digit of the path, -1 for the root.
func (p Path) Octant() int {
	if len(p) == 0 {
		return -1
	}
	return int(p[len(p)-1] - '0')
}

// Child returns the path of octant o below p.
func (p Path) Child(o int) Path {
	if o < 0 || o > 7 {
		panic(fmt.Sprintf("octree: octant %d out of range", o))
	}
	return p + Path(rune('0'+o))
}

// Prefix returns the ancestor of p at the given level.
func (p Path) Prefix(level int) Path {
	if level >= len(p) {
		return p
	}
	if level < 0 {
		level = 0
	}
	return p[:level]
}

// Ancestors returns every proper ancestor of p, root first.
func (p Path) Ancestors() (a []Path) {
	a = make([]Path, 0, len(p))
	for l := 0; l < len(p); l++ {
		a = append(a, p[:l])
	}
	return
}

// IsAncestorOf reports whether p is a proper ancestor of q.
func (p Path) IsAncestorOf(q Path) bool {
	return len(p) < len(q) && q[:len(p)] == p
}

// Contains reports whether q is p or below it.
func (p Path) Contains(q Path) bool {
	return len(p) <= len(q) && q[:len(p)] == p
}

// Rel returns q relative to p, which must contain it.
func (p Path) Rel(q Path) Path { return q[len(p):] }

func (p Path) String() string {
	if len(p) == 0 {
		return "<root>"
	}
	return string(p)
}

// BulkHeadFor returns the head path of the bulk that carries the metadata of
// p. Bulks cover four levels below their head, so the nodes at levels 1..4
// live in the root bulk, 5..8 in the bulk headed at the level 4 ancestor, and
// so on. The root node itself has no metadata and maps to the root bulk.
func BulkHeadFor(p Path) Path {
	if len(p) == 0 {
		return Root
	}
	return p[:BulkDepth*((len(p)-1)/BulkDepth)]
}

// IsBulkHead reports whether p is at a bulk boundary.
func IsBulkHead(p Path) bool { return len(p)%BulkDepth == 0 }

// BulkChain returns the heads of every bulk that must be known to reach the
// metadata of p, root first.
func BulkChain(p Path) (chain []Path) {
	head := BulkHeadFor(p)
	for l := 0; l <= len(head); l += BulkDepth {
		chain = append(chain, head[:l])
	}
	return
}

// Covers reports whether the bulk headed at head carries the metadata of p.
func Covers(head, p Path) bool {
	if !head.IsAncestorOf(p) {
		return false
	}
	return len(p)-len(head) <= BulkDepth
}

// NodeKey identifies one version of a node.
type NodeKey struct {
	Path  Path
	Epoch uint32
}

func (k NodeKey) String() string { return fmt.Sprintf("%s@%d", k.Path, k.Epoch) }
