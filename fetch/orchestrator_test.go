package fetch

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rocktree.lol/cache"
	"rocktree.lol/context"
	"rocktree.lol/decode"
	"rocktree.lol/index"
	"rocktree.lol/octree"
	"rocktree.lol/transport"
	"rocktree.lol/wire"
)

// fake serves decoded artifacts and counts calls per key.
type fake struct {
	planetoid *decode.Planetoid
	bulks     map[octree.NodeKey]*decode.Bulk
	node      func(c context.T, r transport.NodeRequest) (*decode.Node, error)

	mx     sync.Mutex
	calls  map[string]int
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fake) enter(k string) func() {
	f.mx.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[k]++
	f.mx.Unlock()
	a := f.active.Add(1)
	for {
		p := f.peak.Load()
		if a <= p || f.peak.CompareAndSwap(p, a) {
			break
		}
	}
	return func() { f.active.Add(-1) }
}

func (f *fake) count(k string) int {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.calls[k]
}

func (f *fake) FetchPlanetoid(c context.T) (*decode.Planetoid, error) {
	defer f.enter("planetoid")()
	return f.planetoid, nil
}

func (f *fake) FetchBulk(c context.T, k octree.NodeKey) (*decode.Bulk, error) {
	defer f.enter("bulk " + k.String())()
	if b, ok := f.bulks[k]; ok {
		return b, nil
	}
	return nil, transport.StatusError(k.String(), 404)
}

func (f *fake) FetchNode(c context.T, r transport.NodeRequest) (*decode.Node, error) {
	defer f.enter("node " + r.Key.String())()
	if f.node != nil {
		return f.node(c, r)
	}
	return &decode.Node{Key: r.Key, MatrixGlobeFromMesh: decode.Identity}, nil
}

// bulk decodes a bulk at head holding the given relative paths.
func bulk(t *testing.T, head octree.NodeKey, rels ...octree.Path) *decode.Bulk {
	var nms []*wire.NodeMetadata
	for _, r := range rels {
		pf, err := decode.PackPathAndFlags(r, 0)
		require.NoError(t, err)
		nms = append(nms, &wire.NodeMetadata{PathAndFlags: wire.U32(pf)})
	}
	b, err := decode.DecodeBulk(head, &wire.BulkMetadata{NodeMetadata: nms})
	require.NoError(t, err)
	return b
}

func newFake(t *testing.T) *fake {
	root := octree.NodeKey{Epoch: 5}
	return &fake{
		planetoid: &decode.Planetoid{Radius: 6371010, RootEpoch: 5},
		bulks: map[octree.NodeKey]*decode.Bulk{
			root: bulk(t, root, "0", "1", "2", "3", "01", "012", "0123"),
			{Path: "0123", Epoch: 5}: bulk(t, octree.NodeKey{Path: "0123", Epoch: 5}, "4", "45"),
		},
	}
}

func start(t *testing.T, cl Client, p Params) (*Orchestrator, context.T) {
	o := New(cl, p)
	c, cancel := context.Cancel(context.Bg())
	done := make(chan struct{})
	go func() {
		o.Run(c)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return o, c
}

// awaitAll reads events until every key in ks has reached a settled state.
func awaitAll(t *testing.T, o *Orchestrator, ks ...cache.Key) map[cache.Key]Event {
	got := make(map[cache.Key]Event)
	want := make(map[cache.Key]bool)
	for _, k := range ks {
		want[k] = true
	}
	timeout := time.After(5 * time.Second)
	for len(got) < len(want) {
		select {
		case e := <-o.Events():
			if want[e.Key] && e.State != cache.Pending {
				got[e.Key] = e
			}
		case <-timeout:
			t.Fatalf("settled %d of %d keys", len(got), len(want))
		}
	}
	return got
}

func await(t *testing.T, o *Orchestrator, k cache.Key) Event { return awaitAll(t, o, k)[k] }

func TestOrchestrator_LoadsThroughBulkChain(t *testing.T) {
	f := newFake(t)
	o, c := start(t, f, Params{})
	demand := []octree.Path{"0", "01", "012", "0123", "01234", "012345"}
	require.NoError(t, o.Tick(c, demand))
	require.Equal(t, cache.Ready, await(t, o, cache.PlanetoidKey).State)
	p, ok := o.Planetoid()
	require.True(t, ok)
	require.Equal(t, uint32(5), p.RootEpoch)

	require.Eventually(t, func() bool {
		for _, d := range demand {
			if n, _ := o.Node(d); n == nil {
				return false
			}
		}
		return o.Idle()
	}, 5*time.Second, time.Millisecond)
	n, e := o.Node("012345")
	require.Equal(t, octree.NodeKey{Path: "012345", Epoch: 5}, n.Key)
	require.Equal(t, cache.Ready, e.State)
	require.Equal(t, cache.BulkKey(octree.NodeKey{Path: "0123", Epoch: 5}), *e.Parent)
	_, ok = o.Bulk("0123")
	require.True(t, ok)

	// demand already satisfied fetches nothing more
	require.NoError(t, o.Tick(c, demand))
	require.True(t, o.Idle())
	require.Equal(t, 1, f.count("planetoid"))
	require.Equal(t, 1, f.count("bulk "+octree.NodeKey{Epoch: 5}.String()))
	require.Equal(t, 1, f.count("bulk 0123@5"))

	s := o.Stats()
	require.Equal(t, 2, s.Bulks)
	require.Equal(t, 9, s.Cache.Ready)
}

func TestOrchestrator_OneFetchPerKey(t *testing.T) {
	f := newFake(t)
	gate := make(chan struct{})
	f.node = func(c context.T, r transport.NodeRequest) (*decode.Node, error) {
		<-gate
		return &decode.Node{Key: r.Key}, nil
	}
	o, c := start(t, f, Params{MaxConcurrent: 2})
	demand := []octree.Path{"0", "1", "2", "3"}
	require.NoError(t, o.Tick(c, demand))
	require.Eventually(t, func() bool { _, ok := o.Bulk(octree.Root); return ok },
		5*time.Second, time.Millisecond)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, o.Tick(c, demand))
		}()
	}
	wg.Wait()
	close(gate)
	require.Eventually(t, func() bool {
		for _, d := range demand {
			if n, _ := o.Node(d); n == nil {
				return false
			}
		}
		return true
	}, 5*time.Second, time.Millisecond)
	for _, d := range demand {
		require.Equal(t, 1, f.count("node "+octree.NodeKey{Path: d, Epoch: 5}.String()), d)
	}
	require.LessOrEqual(t, f.peak.Load(), int32(2))
}

func TestOrchestrator_TimeoutRetriedThenFailed(t *testing.T) {
	f := newFake(t)
	f.node = func(c context.T, r transport.NodeRequest) (*decode.Node, error) {
		<-c.Done()
		return nil, c.Err()
	}
	o, c := start(t, f, Params{
		MaxAttempts:    3,
		RequestTimeout: 10 * time.Millisecond,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		RetryCooldown:  time.Hour,
	})
	require.NoError(t, o.Tick(c, []octree.Path{"2"}))
	k := cache.NodeKey(octree.NodeKey{Path: "2", Epoch: 5})
	e := await(t, o, k)
	require.Equal(t, cache.Failed, e.State)
	require.Equal(t, Transport, e.Kind)
	require.Equal(t, 3, e.Attempts)
	require.Equal(t, 3, f.count("node 2@5"))
	_, en := o.Node("2")
	require.Equal(t, cache.Failed, en.State)
	require.True(t, en.Retryable)

	// within the cooldown the failure stands
	require.NoError(t, o.Tick(c, []octree.Path{"2"}))
	require.Equal(t, 3, f.count("node 2@5"))
}

func TestOrchestrator_TerminalFailures(t *testing.T) {
	f := newFake(t)
	f.node = func(c context.T, r transport.NodeRequest) (*decode.Node, error) {
		return nil, &decode.Error{Kind: decode.Malformed, Context: "vertices"}
	}
	// the server answers with a different version of the child bulk
	f.bulks[octree.NodeKey{Path: "0123", Epoch: 5}] = bulk(t, octree.NodeKey{Path: "0123", Epoch: 6}, "4")
	o, c := start(t, f, Params{MaxAttempts: 5})
	require.NoError(t, o.Tick(c, []octree.Path{"3", "01234"}))
	nk := cache.NodeKey(octree.NodeKey{Path: "3", Epoch: 5})
	bk := cache.BulkKey(octree.NodeKey{Path: "0123", Epoch: 5})
	evs := awaitAll(t, o, nk, bk)
	e := evs[nk]
	require.Equal(t, Decode, e.Kind)
	require.Equal(t, 1, e.Attempts)
	e = evs[bk]
	require.Equal(t, cache.Failed, e.State)
	require.Equal(t, EpochMismatch, e.Kind)
	require.Eventually(t, o.Idle, 5*time.Second, time.Millisecond)
	require.Equal(t, 1, f.count("bulk 0123@5"))
}

func TestOrchestrator_EpochMismatchRefetchesAdvertiser(t *testing.T) {
	t.Run("child bulk", func(t *testing.T) {
		f := newFake(t)
		bk := cache.BulkKey(octree.NodeKey{Path: "0123", Epoch: 5})
		f.bulks[bk.NodeKey()] = bulk(t, octree.NodeKey{Path: "0123", Epoch: 6}, "4")
		o, c := start(t, f, Params{})
		require.NoError(t, o.Tick(c, []octree.Path{"01234"}))
		require.Equal(t, EpochMismatch, await(t, o, bk).Kind)
		// the root bulk that advertised 0123@5 is fetched again
		root := "bulk " + octree.NodeKey{Epoch: 5}.String()
		require.Eventually(t, func() bool {
			_, ok := o.Bulk(octree.Root)
			return ok && f.count(root) == 2
		}, 5*time.Second, time.Millisecond)
		_, e := o.Node("01234")
		require.Equal(t, bk, e.Key)
		require.Equal(t, cache.Failed, e.State)
		var em *index.EpochMismatch
		require.True(t, errors.As(e.Err, &em))
		require.Equal(t, uint32(6), em.Advertised.Epoch)
		require.Eventually(t, o.Idle, 5*time.Second, time.Millisecond)
		require.Equal(t, 1, f.count("bulk 0123@5"))
		require.Equal(t, 1, f.count("planetoid"))
	})
	t.Run("root bulk", func(t *testing.T) {
		f := newFake(t)
		root := octree.NodeKey{Epoch: 5}
		f.bulks[root] = bulk(t, octree.NodeKey{Epoch: 6}, "0")
		o, c := start(t, f, Params{})
		require.NoError(t, o.Tick(c, []octree.Path{"0"}))
		require.Equal(t, EpochMismatch, await(t, o, cache.BulkKey(root)).Kind)
		require.Eventually(t, func() bool {
			_, ok := o.Planetoid()
			return ok && f.count("planetoid") == 2
		}, 5*time.Second, time.Millisecond)
		_, e := o.Node("0")
		require.Equal(t, cache.BulkKey(root), e.Key)
		require.Equal(t, cache.Failed, e.State)
		require.Eventually(t, o.Idle, 5*time.Second, time.Millisecond)
		require.Equal(t, 1, f.count("bulk "+root.String()))
	})
}

func TestOrchestrator_DemandChangeKeepsFetchesInFlight(t *testing.T) {
	for _, budget := range []int64{0, 1} {
		f := newFake(t)
		gate := make(chan struct{})
		f.node = func(c context.T, r transport.NodeRequest) (*decode.Node, error) {
			select {
			case <-gate:
				return &decode.Node{Key: r.Key, MatrixGlobeFromMesh: decode.Identity}, nil
			case <-c.Done():
				return nil, c.Err()
			}
		}
		o, c := start(t, f, Params{MaxConcurrent: 1, CacheBudget: budget})
		require.NoError(t, o.Tick(c, []octree.Path{"0", "1", "2"}))
		require.Eventually(t, func() bool { return f.count("node 0@5") == 1 },
			5*time.Second, time.Millisecond)
		// 0 is in flight, 1 and 2 only queued when the demand moves on
		require.NoError(t, o.Tick(c, []octree.Path{"3"}))
		close(gate)
		a := cache.NodeKey(octree.NodeKey{Path: "0", Epoch: 5})
		d := cache.NodeKey(octree.NodeKey{Path: "3", Epoch: 5})
		evs := awaitAll(t, o, a, d)
		require.Equal(t, cache.Ready, evs[a].State)
		require.Equal(t, cache.Ready, evs[d].State)
		require.Equal(t, 0, f.count("node 1@5"))
		require.Equal(t, 0, f.count("node 2@5"))
		if budget == 0 {
			// out of demand but within budget, the result stays
			e, ok := o.Cache.Get(a)
			require.True(t, ok)
			require.Equal(t, cache.Ready, e.State)
			continue
		}
		require.Eventually(t, func() bool { _, ok := o.Cache.Get(a); return !ok },
			5*time.Second, time.Millisecond)
		e, ok := o.Cache.Get(d)
		require.True(t, ok)
		require.Equal(t, cache.Ready, e.State)
	}
}

func TestOrchestrator_StopsWithFetchesInFlight(t *testing.T) {
	f := newFake(t)
	f.node = func(c context.T, r transport.NodeRequest) (*decode.Node, error) {
		<-c.Done()
		return nil, c.Err()
	}
	o := New(f, Params{RequestTimeout: time.Hour})
	c, cancel := context.Cancel(context.Bg())
	done := make(chan struct{})
	go func() {
		o.Run(c)
		close(done)
	}()
	require.NoError(t, o.Tick(c, []octree.Path{"1"}))
	k := cache.NodeKey(octree.NodeKey{Path: "1", Epoch: 5})
	require.Eventually(t, func() bool { return f.count("node 1@5") == 1 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done
	// an abandoned fetch leaves no pending entry behind
	_, ok := o.Cache.Get(k)
	require.False(t, ok)
	require.True(t, errors.Is(o.Tick(c, nil), context.Canceled))
}

func TestClassify(t *testing.T) {
	require.Equal(t, None, Classify(nil))
	require.Equal(t, Transport, Classify(transport.StatusError("u", 503)))
	require.Equal(t, Protocol, Classify(transport.StatusError("u", 404)))
	require.Equal(t, Transport, Classify(context.DeadlineExceeded))
	require.Equal(t, Canceled, Classify(context.Canceled))
	require.Equal(t, Decode, Classify(&decode.Error{Kind: decode.Truncated}))
	require.Equal(t, Protocol, Classify(&wire.Error{Message: "x"}))
	require.Equal(t, EpochMismatch, Classify(&index.EpochMismatch{}))
	require.Equal(t, Protocol, Classify(errors.New("other")))
}

func TestQueue(t *testing.T) {
	q := newQueue()
	k := func(p octree.Path) cache.Key { return cache.NodeKey(octree.NodeKey{Path: p}) }
	q.push(&job{key: k("a"), prio: 5})
	q.push(&job{key: k("b"), prio: 1})
	q.push(&job{key: k("c"), prio: 5})
	q.push(&job{key: k("c"), prio: 0})
	q.push(&job{key: k("b"), prio: 9})
	require.Equal(t, 3, q.len())
	var got []octree.Path
	for j := q.pop(); j != nil; j = q.pop() {
		got = append(got, j.key.Path)
	}
	require.Equal(t, []octree.Path{"c", "b", "a"}, got)
}
