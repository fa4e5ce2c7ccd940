package index

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"rocktree.lol/decode"
	"rocktree.lol/octree"
	"rocktree.lol/wire"
)

// fullBulk builds a bulk headed at head holding every node of the four levels
// below it, with the bottom level heading child bulks at childEpoch.
func fullBulk(t *testing.T, head octree.NodeKey, childEpoch uint32) *decode.Bulk {
	var nms []*wire.NodeMetadata
	var walk func(rel octree.Path)
	walk = func(rel octree.Path) {
		if rel.Level() > octree.BulkDepth {
			return
		}
		if rel.Level() > 0 {
			pf, err := decode.PackPathAndFlags(rel, 0)
			require.NoError(t, err)
			nm := &wire.NodeMetadata{PathAndFlags: wire.U32(pf)}
			if rel.Level() == octree.BulkDepth {
				nm.BulkMetadataEpoch = wire.U32(childEpoch)
			}
			nms = append(nms, nm)
		}
		// a sparse tree keeps the test fast
		for _, o := range []int{0, 5} {
			walk(rel.Child(o))
		}
	}
	walk(octree.Root)
	b, err := decode.DecodeBulk(head, &wire.BulkMetadata{NodeMetadata: nms})
	require.NoError(t, err)
	return b
}

func TestResolveBulkFor(t *testing.T) {
	x := New()
	_, err := x.ResolveBulkFor("0")
	var bm *BulkMissing
	require.True(t, errors.As(err, &bm))
	require.False(t, bm.EpochKnown)

	x.SetRoot(7)
	_, err = x.ResolveBulkFor("05050")
	require.True(t, errors.As(err, &bm))
	require.Equal(t, octree.NodeKey{Path: "", Epoch: 7}, bm.Key)

	x.Put(fullBulk(t, octree.NodeKey{Epoch: 7}, 8))
	k, err := x.ResolveBulkFor("0505")
	require.NoError(t, err)
	require.Equal(t, octree.NodeKey{Epoch: 7}, k)

	_, err = x.ResolveBulkFor("05050")
	require.True(t, errors.Is(err, ErrBulkMissing))
	require.True(t, errors.As(err, &bm))
	require.Equal(t, octree.NodeKey{Path: "0505", Epoch: 8}, bm.Key)

	// octant 3 is absent from the sparse tree
	_, err = x.ResolveBulkFor("03000")
	require.True(t, errors.Is(err, ErrNoSuchNode))

	x.Put(fullBulk(t, octree.NodeKey{Path: "0505", Epoch: 8}, 9))
	k, err = x.ResolveBulkFor("05050000")
	require.NoError(t, err)
	require.Equal(t, octree.NodeKey{Path: "0505", Epoch: 8}, k)
}

func TestResolveBulkFor_CoversAncestors(t *testing.T) {
	x := New()
	x.SetRoot(1)
	x.Put(fullBulk(t, octree.NodeKey{Epoch: 1}, 2))
	for _, h := range []octree.Path{"0000", "0005", "0500", "5555"} {
		x.Put(fullBulk(t, octree.NodeKey{Path: h, Epoch: 2}, 3))
	}
	for range 500 {
		p := make([]byte, 1+frand.Intn(8))
		for i := range p {
			p[i] = "05"[frand.Intn(2)]
		}
		path := octree.Path(p)
		k, err := x.ResolveBulkFor(path)
		if err != nil {
			require.True(t, errors.Is(err, ErrBulkMissing), "%s: %v", path, err)
			continue
		}
		require.True(t, octree.Covers(k.Path, path))
		// every ancestor prefix resolves to a loaded bulk on the same chain
		for _, a := range path.Ancestors() {
			if a.IsRoot() {
				continue
			}
			ak, err := x.ResolveBulkFor(a)
			require.NoError(t, err)
			require.True(t, octree.Covers(ak.Path, a))
			require.True(t, ak.Path.Contains(k.Path))
		}
	}
}

func TestNodeKeyFor_CheckEpoch(t *testing.T) {
	x := New()
	x.SetRoot(4)
	x.Put(fullBulk(t, octree.NodeKey{Epoch: 4}, 5))
	k, n, err := x.NodeKeyFor("05")
	require.NoError(t, err)
	require.Equal(t, octree.NodeKey{Path: "05", Epoch: 4}, k)
	require.Equal(t, octree.Path("05"), n.Path)

	require.NoError(t, x.CheckEpoch(k))
	err = x.CheckEpoch(octree.NodeKey{Path: "05", Epoch: 3})
	var em *EpochMismatch
	require.True(t, errors.As(err, &em))
	require.Equal(t, k, em.Advertised)

	_, _, err = x.NodeKeyFor("")
	require.True(t, errors.Is(err, ErrNoData))
	_, _, err = x.NodeKeyFor("01")
	require.True(t, errors.Is(err, ErrNoSuchNode))
}

func TestChildren(t *testing.T) {
	x := New()
	x.SetRoot(1)
	x.Put(fullBulk(t, octree.NodeKey{Epoch: 1}, 2))
	c, err := x.Children("05")
	require.NoError(t, err)
	require.Equal(t, []octree.Path{"050", "055"}, c)
	c, err = x.Children("")
	require.NoError(t, err)
	require.Equal(t, []octree.Path{"0", "5"}, c)
	_, err = x.Children("0505")
	require.True(t, errors.Is(err, ErrBulkMissing))
	require.Equal(t, []octree.Path{"71", "77"}, ChildrenOf("7", octree.ChildMask(0).Set(1).Set(7)))
}

func TestPut_Supersede(t *testing.T) {
	x := New()
	x.SetRoot(1)
	require.False(t, x.Put(fullBulk(t, octree.NodeKey{Epoch: 1}, 2)))
	require.False(t, x.Put(fullBulk(t, octree.NodeKey{Epoch: 1}, 2)))
	x.Put(fullBulk(t, octree.NodeKey{Path: "0000", Epoch: 2}, 3))
	_, err := x.ResolveBulkFor("00000")
	require.NoError(t, err)

	// a new root advertising a newer child epoch makes the loaded child stale
	x.SetRoot(10)
	require.True(t, x.Put(fullBulk(t, octree.NodeKey{Epoch: 10}, 11)))
	_, err = x.ResolveBulkFor("00000")
	var bm *BulkMissing
	require.True(t, errors.As(err, &bm))
	require.Equal(t, octree.NodeKey{Path: "0000", Epoch: 11}, bm.Key)
	require.Equal(t, 2, x.Len())
	x.Remove("0000")
	require.Equal(t, 1, x.Len())
}

func TestMeta_ConcurrentRemove(t *testing.T) {
	x := New()
	x.SetRoot(1)
	b := fullBulk(t, octree.NodeKey{Epoch: 1}, 2)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			x.Put(b)
			x.Remove(octree.Root)
		}
	}()
	for range 20000 {
		if n, err := x.Meta("05"); err == nil {
			require.Equal(t, octree.Path("05"), n.Path)
		} else {
			require.True(t, errors.Is(err, ErrBulkMissing), "%v", err)
		}
		if _, err := x.Children("05"); err != nil {
			require.True(t, errors.Is(err, ErrBulkMissing), "%v", err)
		}
	}
	close(stop)
	wg.Wait()
}
