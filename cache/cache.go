// Package cache holds decoded artifacts by versioned key together with their
// fetch state. The move of a key into Pending is atomic, so at most one
// caller ever fetches a key at a time, and Ready entries are read without
// locking.
package cache

import (
	"math"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"rocktree.lol/octree"
)

// Artifact is a decoded value held by the cache.
type Artifact interface {
	// Size approximates the memory held in bytes.
	Size() int
}

// Entry is a snapshot of the state of one key.
type Entry struct {
	Key      Key
	State    State
	Artifact Artifact
	// Parent is the key this one was resolved under, nil for roots.
	Parent *Key
	// Err is the reason of the last failure.
	Err       error
	Retryable bool
	FailedAt  time.Time
	Attempts  int
}

type entry struct {
	Entry
	size int64
}

func (e *entry) clone() *entry { c := *e; return &c }

type pathKey struct {
	kind Kind
	path octree.Path
}

// Params configures a cache.
type Params struct {
	// Budget is the byte size above which Evict removes entries, zero is
	// unbounded.
	Budget int64
	// RetryCooldown is how long a retryable failure waits before Begin lets
	// it be fetched again.
	RetryCooldown time.Duration
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// T is the cache.
type T struct {
	Params
	entries *xsync.MapOf[Key, *entry]
	latest  *xsync.MapOf[pathKey, uint32]
	// recent orders keys by last use, oldest first.
	recent *lru.Cache[Key, struct{}]
	// superseded holds keys dropped because a newer epoch replaced them or
	// the key they were resolved under, until they are begun again.
	superseded *xsync.MapOf[Key, struct{}]
	demand     atomic.Pointer[map[Key]struct{}]
	used       atomic.Int64
}

// New creates a cache.
func New(p Params) (c *T) {
	if p.Now == nil {
		p.Now = time.Now
	}
	// the recency index only orders keys, Budget is the bound
	recent, err := lru.New[Key, struct{}](math.MaxInt32)
	if err != nil {
		panic(err)
	}
	c = &T{
		Params:     p,
		entries:    xsync.NewMapOf[Key, *entry](),
		latest:     xsync.NewMapOf[pathKey, uint32](),
		recent:     recent,
		superseded: xsync.NewMapOf[Key, struct{}](),
	}
	c.demand.Store(&map[Key]struct{}{})
	return
}

func (c *T) touch(k Key) { c.recent.Add(k, struct{}{}) }

// Begin moves k into Pending and reports whether the caller won the right to
// fetch it. Only keys never requested, or whose retryable failure has cooled
// down, can be begun; a Pending, Ready or terminally Failed key is left
// alone.
func (c *T) Begin(k Key, parent *Key) (won bool) {
	now := c.Now()
	c.entries.Compute(k, func(old *entry, loaded bool) (e *entry, del bool) {
		switch {
		case !loaded:
			e = &entry{Entry: Entry{Key: k}}
		case old.State == Failed && old.Retryable && now.Sub(old.FailedAt) >= c.RetryCooldown:
			e = old.clone()
		default:
			return old, false
		}
		e.State, e.Err = Pending, nil
		if parent != nil {
			pk := *parent
			e.Parent = &pk
		}
		won = true
		return
	})
	if won {
		c.superseded.Delete(k)
		c.touch(k)
	}
	return
}

// Complete stores a fetched artifact as Ready. When k is a newer epoch of a
// path already held, the older Ready versions are dropped along with every
// entry resolved under them, and the dropped keys are returned. A result
// that is out of date on arrival, because a newer epoch of its own path or
// of its parent is already held, is dropped at once and returned too.
func (c *T) Complete(k Key, a Artifact) (invalidated []Key) {
	size := int64(a.Size())
	var parent *Key
	c.entries.Compute(k, func(old *entry, loaded bool) (e *entry, del bool) {
		if loaded {
			e = old.clone()
			c.used.Add(-old.size)
		} else {
			e = &entry{Entry: Entry{Key: k}}
		}
		e.State, e.Artifact, e.Err, e.Retryable, e.size = Ready, a, nil, false, size
		c.used.Add(size)
		parent = e.Parent
		return
	})
	c.touch(k)
	if c.outdated(k, parent) {
		return c.invalidate([]Key{k})
	}
	var prev uint32
	var had, newer bool
	c.latest.Compute(pathKey{k.Kind, k.Path}, func(old uint32, loaded bool) (v uint32, del bool) {
		prev, had = old, loaded
		if loaded && old > k.Epoch {
			return old, false
		}
		newer = true
		return k.Epoch, false
	})
	if !newer {
		// a newer epoch landed meanwhile
		return c.invalidate([]Key{k})
	}
	if !had || prev == k.Epoch {
		return
	}
	var stale []Key
	c.entries.Range(func(key Key, e *entry) bool {
		if key.Kind == k.Kind && key.Path == k.Path && key.Epoch < k.Epoch && e.State != Pending {
			stale = append(stale, key)
		}
		return true
	})
	return c.invalidate(stale)
}

// outdated reports whether k, or the key it was resolved under, has been
// replaced by a newer epoch.
func (c *T) outdated(k Key, parent *Key) bool {
	if v, ok := c.latest.Load(pathKey{k.Kind, k.Path}); ok && v > k.Epoch {
		return true
	}
	if parent == nil {
		return false
	}
	if _, ok := c.superseded.Load(*parent); ok {
		return true
	}
	v, ok := c.latest.Load(pathKey{parent.Kind, parent.Path})
	return ok && v > parent.Epoch
}

// invalidate drops the keys of stale and every entry resolved under them.
// Pending entries are left alone and checked when they complete.
func (c *T) invalidate(stale []Key) (invalidated []Key) {
	for len(stale) > 0 {
		s := stale[0]
		stale = stale[1:]
		c.superseded.Store(s, struct{}{})
		if !c.drop(s) {
			continue
		}
		invalidated = append(invalidated, s)
		c.entries.Range(func(key Key, e *entry) bool {
			if e.Parent != nil && *e.Parent == s && e.State != Pending {
				stale = append(stale, key)
			}
			return true
		})
	}
	return
}

// drop removes k unless it is Pending.
func (c *T) drop(k Key) (dropped bool) {
	c.entries.Compute(k, func(old *entry, loaded bool) (e *entry, del bool) {
		if !loaded {
			return nil, true
		}
		if old.State == Pending {
			return old, false
		}
		c.used.Add(-old.size)
		dropped = true
		return nil, true
	})
	if dropped {
		c.recent.Remove(k)
	}
	return
}

// Fail records a failed fetch of k. Retryable failures may be begun again
// after the cooldown.
func (c *T) Fail(k Key, err error, retryable bool) {
	now := c.Now()
	c.entries.Compute(k, func(old *entry, loaded bool) (e *entry, del bool) {
		if loaded {
			e = old.clone()
			c.used.Add(-old.size)
		} else {
			e = &entry{Entry: Entry{Key: k}}
		}
		e.State, e.Artifact, e.size = Failed, nil, 0
		e.Err, e.Retryable, e.FailedAt = err, retryable, now
		e.Attempts++
		return
	})
}

// Forget removes k whatever its state, so the next Begin starts afresh.
func (c *T) Forget(k Key) {
	c.entries.Compute(k, func(old *entry, loaded bool) (e *entry, del bool) {
		if loaded {
			c.used.Add(-old.size)
		}
		return nil, true
	})
	c.recent.Remove(k)
	c.superseded.Delete(k)
}

// Get returns a snapshot of k. An absent key is NotRequested.
func (c *T) Get(k Key) (en Entry, ok bool) {
	var e *entry
	if e, ok = c.entries.Load(k); !ok {
		en.Key = k
		return
	}
	c.touch(k)
	return e.Entry, true
}

// Ready returns the artifact of k if it is Ready.
func (c *T) Ready(k Key) (a Artifact, ok bool) {
	e, found := c.entries.Load(k)
	if !found || e.State != Ready {
		return
	}
	c.touch(k)
	return e.Artifact, true
}

// Latest returns the newest Ready version of a path.
func (c *T) Latest(kind Kind, p octree.Path) (en Entry, ok bool) {
	var epoch uint32
	if epoch, ok = c.latest.Load(pathKey{kind, p}); !ok {
		return
	}
	if en, ok = c.Get(Key{Kind: kind, Path: p, Epoch: epoch}); ok && en.State != Ready {
		ok = false
	}
	return
}

// SetDemand replaces the set of keys that must not be evicted.
func (c *T) SetDemand(keys []Key) {
	d := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		d[k] = struct{}{}
	}
	c.demand.Store(&d)
}

// InDemand reports whether k is in the current demand set.
func (c *T) InDemand(k Key) (ok bool) {
	_, ok = (*c.demand.Load())[k]
	return
}

// Evict removes least recently used Ready entries outside the demand set
// until the cache fits its budget. Pending and Failed entries are kept.
func (c *T) Evict() (evicted []Key) {
	if c.Budget <= 0 || c.used.Load() <= c.Budget {
		return
	}
	for _, k := range c.recent.Keys() {
		if c.used.Load() <= c.Budget {
			break
		}
		if c.InDemand(k) {
			continue
		}
		var dropped, gone bool
		c.entries.Compute(k, func(old *entry, loaded bool) (e *entry, del bool) {
			if !loaded {
				gone = true
				return nil, true
			}
			if old.State != Ready || c.InDemand(k) {
				return old, false
			}
			c.used.Add(-old.size)
			dropped = true
			return nil, true
		})
		if gone {
			c.recent.Remove(k)
		}
		if !dropped {
			continue
		}
		c.recent.Remove(k)
		evicted = append(evicted, k)
		c.latest.Compute(pathKey{k.Kind, k.Path}, func(v uint32, loaded bool) (uint32, bool) {
			return v, loaded && v == k.Epoch
		})
	}
	return
}

// Stats counts entries by state.
type Stats struct {
	Entries                int
	Pending, Ready, Failed int
	Bytes                  int64
}

// Stats returns the current counts.
func (c *T) Stats() (s Stats) {
	c.entries.Range(func(k Key, e *entry) bool {
		s.Entries++
		switch e.State {
		case Pending:
			s.Pending++
		case Ready:
			s.Ready++
		case Failed:
			s.Failed++
		}
		return true
	})
	s.Bytes = c.used.Load()
	return
}

// Used is the byte size of the Ready artifacts held.
func (c *T) Used() int64 { return c.used.Load() }
