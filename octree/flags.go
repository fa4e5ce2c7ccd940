package octree

import (
	"strings"
)

// Flags are the per-node bits packed above the path digits.
type Flags uint32

const (
	Rich3DLeaf      Flags = 1
	Rich3DNoData    Flags = 2
	Leaf            Flags = 4
	NoData          Flags = 8
	UseImageryEpoch Flags = 16
)

// Has reports whether every bit of f2 is set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

func (f Flags) String() string {
	var s []string
	for _, n := range []struct {
		f Flags
		s string
	}{
		{Rich3DLeaf, "rich3d_leaf"},
		{Rich3DNoData, "rich3d_nodata"},
		{Leaf, "leaf"},
		{NoData, "nodata"},
		{UseImageryEpoch, "use_imagery_epoch"},
	} {
		if f.Has(n.f) {
			s = append(s, n.s)
		}
	}
	if len(s) == 0 {
		return "none"
	}
	return strings.Join(s, "|")
}

// ChildMask has bit o set when child octant o exists.
type ChildMask uint8

// Set returns m with octant o marked present.
func (m ChildMask) Set(o int) ChildMask { return m | 1<<uint(o) }

// Has reports whether octant o is present.
func (m ChildMask) Has(o int) bool { return m&(1<<uint(o)) != 0 }

// Children expands m into child paths of p in octant order.
func (m ChildMask) Children(p Path) (c []Path) {
	for o := 0; o < 8; o++ {
		if m.Has(o) {
			c = append(c, p.Child(o))
		}
	}
	return
}
