// Package fetch drives the loading of a planetoid: it resolves demanded paths
// through the bulk chain, queues the bulks and node data they need, runs the
// fetches under a concurrency bound with retries, and records every outcome
// in the cache.
package fetch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"rocktree.lol/cache"
	"rocktree.lol/context"
	"rocktree.lol/decode"
	"rocktree.lol/index"
	"rocktree.lol/octree"
	"rocktree.lol/texture"
	"rocktree.lol/transport"
)

// Client fetches and decodes artifacts. *transport.Client is one.
type Client interface {
	FetchPlanetoid(c cx) (*decode.Planetoid, er)
	FetchBulk(c cx, k octree.NodeKey) (*decode.Bulk, er)
	FetchNode(c cx, r transport.NodeRequest) (*decode.Node, er)
}

// Params configures an Orchestrator. Zero fields take the defaults.
type Params struct {
	MaxConcurrent  no
	MaxAttempts    no
	RequestTimeout time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	RetryCooldown  time.Duration
	// CacheBudget bounds the bytes of decoded artifacts kept, zero is
	// unbounded.
	CacheBudget int64
	// Formats is the texture preference of node requests.
	Formats []texture.Format
	// EventBuffer is the capacity of the events channel.
	EventBuffer no
}

// Defaults fills the zero fields of p.
func (p Params) Defaults() Params {
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 8
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = 10 * time.Second
	}
	if p.BackoffInitial <= 0 {
		p.BackoffInitial = 250 * time.Millisecond
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 10 * time.Second
	}
	if p.RetryCooldown <= 0 {
		p.RetryCooldown = 30 * time.Second
	}
	if len(p.Formats) == 0 {
		p.Formats = texture.DefaultPreference
	}
	if p.EventBuffer <= 0 {
		p.EventBuffer = 1024
	}
	return p
}

// Event reports a state transition of a key.
type Event struct {
	Key   cache.Key
	State cache.State
	// Kind and Err describe a failure.
	Kind     Kind
	Err      er
	Attempts no
	// Invalidated lists the keys dropped because Key superseded them.
	Invalidated []cache.Key
}

func (e Event) String() string {
	switch e.State {
	case cache.Failed:
		return fmt.Sprintf("%s failed (%s) after %d attempts: %v", e.Key, e.Kind, e.Attempts, e.Err)
	case cache.NotRequested:
		return fmt.Sprintf("%s abandoned (%s)", e.Key, e.Kind)
	}
	return fmt.Sprintf("%s %s", e.Key, e.State)
}

// Stats is a snapshot of the orchestrator.
type Stats struct {
	Cache    cache.Stats
	Bulks    no
	Queued   no
	InFlight no
}

type tick struct {
	demand  []octree.Path
	planned chan struct{}
}

// Orchestrator owns the fetch queue. Run must be running for Tick to return.
type Orchestrator struct {
	Params
	Cache *cache.T
	Index *index.T

	client   Client
	sem      *semaphore.Weighted
	ticks    chan tick
	done     chan struct{}
	events   chan Event
	queued   atomic.Int32
	inflight atomic.Int32
	wg       sync.WaitGroup
	// demand is the last demand received, read only by the loop.
	demand []octree.Path
}

// New creates an orchestrator fetching through cl.
func New(cl Client, p Params) (o *Orchestrator) {
	p = p.Defaults()
	return &Orchestrator{
		Params: p,
		Cache:  cache.New(cache.Params{Budget: p.CacheBudget, RetryCooldown: p.RetryCooldown}),
		Index:  index.New(),
		client: cl,
		sem:    semaphore.NewWeighted(int64(p.MaxConcurrent)),
		ticks:  make(chan tick),
		done:   make(chan struct{}, p.MaxConcurrent),
		events: make(chan Event, p.EventBuffer),
	}
}

// Events delivers state transitions. Events are dropped when nobody reads
// them fast enough.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// Tick replaces the demand, most wanted first, and returns once the queue
// has been rebuilt from it.
func (o *Orchestrator) Tick(c cx, demand []octree.Path) (err er) {
	t := tick{demand: append([]octree.Path(nil), demand...), planned: make(chan struct{})}
	select {
	case o.ticks <- t:
	case <-c.Done():
		return c.Err()
	}
	select {
	case <-t.planned:
	case <-c.Done():
		return c.Err()
	}
	return
}

// Run is the event loop. It returns when c is canceled, after the fetches in
// flight have finished.
func (o *Orchestrator) Run(c cx) {
out:
	for {
		select {
		case <-c.Done():
			break out
		case t := <-o.ticks:
			o.demand = t.demand
			o.dispatch(c, o.plan())
			close(t.planned)
		case <-o.done:
			o.dispatch(c, o.plan())
		}
	}
	log.D.Ln("fetch loop stopping, waiting for fetches in flight")
	o.wg.Wait()
}

// Idle reports whether nothing is queued or in flight.
func (o *Orchestrator) Idle() bo { return o.queued.Load() == 0 && o.inflight.Load() == 0 }

// Stats returns a snapshot of the orchestrator.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Cache:    o.Cache.Stats(),
		Bulks:    o.Index.Len(),
		Queued:   no(o.queued.Load()),
		InFlight: no(o.inflight.Load()),
	}
}

// Planetoid returns the planetoid metadata once fetched.
func (o *Orchestrator) Planetoid() (p *decode.Planetoid, ok bo) {
	var a cache.Artifact
	if a, ok = o.Cache.Ready(cache.PlanetoidKey); ok {
		p = a.(*decode.Planetoid)
	}
	return
}

// Bulk returns the loaded bulk headed at head.
func (o *Orchestrator) Bulk(head octree.Path) (*decode.Bulk, bo) { return o.Index.Bulk(head) }

// Node returns the current version of the node data of p together with the
// state of its key. The node is nil unless the state is Ready. While the bulk
// chain to p is broken, the entry is that of the first bulk missing from it,
// or of the planetoid before the root is known, so that their failures show.
func (o *Orchestrator) Node(p octree.Path) (n *decode.Node, e cache.Entry) {
	k, _, err := o.Index.NodeKeyFor(p)
	if err != nil {
		var bm *index.BulkMissing
		switch {
		case errors.As(err, &bm) && bm.EpochKnown:
			e, _ = o.Cache.Get(cache.BulkKey(bm.Key))
		case errors.Is(err, index.ErrBulkMissing):
			e, _ = o.Cache.Get(cache.PlanetoidKey)
		}
		return
	}
	var ok bo
	if e, ok = o.Cache.Get(cache.NodeKey(k)); ok && e.State == cache.Ready {
		n = e.Artifact.(*decode.Node)
	}
	return
}

// eligible reports whether Begin could win k now, so that keys which cannot
// be fetched do not occupy the queue.
func (o *Orchestrator) eligible(k cache.Key) bo {
	e, ok := o.Cache.Get(k)
	if !ok {
		return true
	}
	return e.State == cache.Failed && e.Retryable && time.Since(e.FailedAt) >= o.RetryCooldown
}

// plan rebuilds the queue from the current demand and marks what it needs
// as in use so the cache keeps it.
func (o *Orchestrator) plan() (q *queue) {
	q = newQueue()
	keep := []cache.Key{cache.PlanetoidKey}
	add := func(j *job) {
		keep = append(keep, j.key)
		if o.eligible(j.key) {
			q.push(j)
		}
	}
	root, ok := o.Index.Root()
	// a forgotten planetoid is fetched again, the root it names may have moved
	if _, held := o.Cache.Get(cache.PlanetoidKey); !ok || !held {
		add(&job{key: cache.PlanetoidKey})
	}
	if !ok {
		o.settle(q, keep)
		return
	}
	if b, loaded := o.Index.Bulk(octree.Root); !loaded || b.Head.Epoch != root.Epoch {
		add(&job{key: cache.BulkKey(root)})
	}
	for i, p := range o.demand {
		for _, head := range octree.BulkChain(p) {
			if b, loaded := o.Index.Bulk(head); loaded {
				keep = append(keep, cache.BulkKey(b.Head))
			}
		}
		head, err := o.Index.ResolveBulkFor(p)
		if err != nil {
			var bm *index.BulkMissing
			if errors.As(err, &bm) && bm.EpochKnown {
				add(&job{key: cache.BulkKey(bm.Key), parent: o.parentOf(bm.Key.Path), prio: 3 * i})
			} else if !errors.Is(err, index.ErrBulkMissing) {
				log.T.F("dropping demand %s: %v", p, err)
			}
			continue
		}
		parent := cache.BulkKey(head)
		n, err := o.Index.Meta(p)
		if err != nil {
			log.T.F("dropping demand %s: %v", p, err)
			continue
		}
		if n.HasData() {
			add(&job{key: cache.NodeKey(n.Key()), parent: &parent,
				req: transport.RequestFor(n, o.Formats), prio: 3*i + 1})
		}
		if n.ChildBulk {
			ck := octree.NodeKey{Path: p, Epoch: n.BulkEpoch}
			if b, loaded := o.Index.Bulk(p); !loaded || b.Head.Epoch != ck.Epoch {
				add(&job{key: cache.BulkKey(ck), parent: &parent, prio: 3*i + 2})
			}
		}
	}
	o.settle(q, keep)
	return
}

// parentOf is the cache key of the loaded bulk above the bulk headed at head.
func (o *Orchestrator) parentOf(head octree.Path) *cache.Key {
	if head.IsRoot() {
		return nil
	}
	b, ok := o.Index.Bulk(octree.BulkHeadFor(head))
	if !ok {
		return nil
	}
	k := cache.BulkKey(b.Head)
	return &k
}

// settle publishes the demand set to the cache and evicts what falls
// outside of it.
func (o *Orchestrator) settle(q *queue, keep []cache.Key) {
	o.Cache.SetDemand(keep)
	for _, k := range o.Cache.Evict() {
		if k.Kind != cache.Bulk {
			continue
		}
		if b, ok := o.Index.Bulk(k.Path); ok && b.Head.Epoch == k.Epoch {
			o.Index.Remove(k.Path)
		}
	}
	o.queued.Store(int32(q.len()))
}

// dispatch starts queued jobs while the concurrency bound allows.
func (o *Orchestrator) dispatch(c cx, q *queue) {
	for q.len() > 0 {
		if !o.sem.TryAcquire(1) {
			break
		}
		j := q.pop()
		if !o.Cache.Begin(j.key, j.parent) {
			o.sem.Release(1)
			continue
		}
		o.inflight.Add(1)
		o.wg.Add(1)
		o.emit(Event{Key: j.key, State: cache.Pending})
		go o.work(c, j)
	}
	o.queued.Store(int32(q.len()))
}

func (o *Orchestrator) emit(e Event) {
	select {
	case o.events <- e:
	default:
		log.T.F("event dropped: %s", e)
	}
}

// work fetches one job, retrying transport failures, and records the result.
func (o *Orchestrator) work(c cx, j *job) {
	defer func() {
		o.inflight.Add(-1)
		o.sem.Release(1)
		o.wg.Done()
		select {
		case o.done <- struct{}{}:
		default:
		}
	}()
	var (
		a        cache.Artifact
		attempts no
	)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval, b.MaxInterval, b.MaxElapsedTime = o.BackoffInitial, o.BackoffMax, 0
	b.Reset()
	op := func() (err er) {
		attempts++
		rc, cancel := context.Timeout(c, o.RequestTimeout)
		defer cancel()
		if a, err = o.fetch(rc, j); err == nil {
			return
		}
		if c.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !transport.IsRetryable(err) {
			err = &transport.Error{URL: j.key.String(), Retryable: true, Err: err}
		}
		if Classify(err) != Transport {
			return backoff.Permanent(err)
		}
		log.D.F("%s attempt %d: %v", j.key, attempts, err)
		return
	}
	err := backoff.Retry(op,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.MaxAttempts-1)), c))
	o.finish(j, a, err, attempts)
}

// fetch performs one attempt at j.
func (o *Orchestrator) fetch(c cx, j *job) (a cache.Artifact, err er) {
	switch j.key.Kind {
	case cache.Planetoid:
		return o.client.FetchPlanetoid(c)
	case cache.Bulk:
		var b *decode.Bulk
		if b, err = o.client.FetchBulk(c, j.key.NodeKey()); err != nil {
			return
		}
		if b.Head.Epoch != j.key.Epoch {
			return nil, &index.EpochMismatch{Requested: j.key.NodeKey(), Advertised: b.Head}
		}
		return b, nil
	case cache.Node:
		if err = o.Index.CheckEpoch(j.key.NodeKey()); err != nil {
			var em *index.EpochMismatch
			if errors.As(err, &em) {
				return
			}
			// the bulk may have been evicted since, the request stands
			err = nil
		}
		return o.client.FetchNode(c, j.req)
	}
	return nil, fmt.Errorf("unknown kind %s", j.key.Kind)
}

// finish records the outcome of a job in the cache and the index.
func (o *Orchestrator) finish(j *job, a cache.Artifact, err er, attempts no) {
	if err != nil {
		kind := Classify(err)
		if kind == Canceled {
			o.Cache.Forget(j.key)
			o.emit(Event{Key: j.key, State: cache.NotRequested, Kind: kind, Err: err, Attempts: attempts})
			return
		}
		log.D.F("%s failed (%s) after %d attempts: %v", j.key, kind, attempts, err)
		o.Cache.Fail(j.key, err, kind == Transport)
		if kind == EpochMismatch && j.key.Kind == cache.Bulk {
			o.refresh(j)
		}
		o.emit(Event{Key: j.key, State: cache.Failed, Kind: kind, Err: err, Attempts: attempts})
		return
	}
	inv := o.Cache.Complete(j.key, a)
	switch v := a.(type) {
	case *decode.Planetoid:
		o.Index.SetRoot(v.RootEpoch)
		log.I.F("planetoid radius %.0f, root bulk epoch %d", v.Radius, v.RootEpoch)
	case *decode.Bulk:
		if cur, ok := o.Index.Bulk(v.Head.Path); !ok || cur.Head.Epoch <= v.Head.Epoch {
			o.Index.Put(v)
		}
	}
	for _, k := range inv {
		if k.Kind != cache.Bulk {
			continue
		}
		if b, ok := o.Index.Bulk(k.Path); ok && b.Head.Epoch == k.Epoch {
			o.Index.Remove(k.Path)
		}
	}
	o.emit(Event{Key: j.key, State: cache.Ready, Attempts: attempts, Invalidated: inv})
}

// refresh forgets what advertised the version of a bulk the server no longer
// serves: the parent bulk, or the planetoid for the root bulk. The next plan
// fetches it again and follows whatever version it advertises now.
func (o *Orchestrator) refresh(j *job) {
	if j.parent == nil {
		log.D.F("%s is not served, fetching the planetoid again", j.key)
		o.Cache.Forget(cache.PlanetoidKey)
		return
	}
	p := *j.parent
	log.D.F("%s is not served, fetching %s again", j.key, p)
	o.Cache.Forget(p)
	if b, ok := o.Index.Bulk(p.Path); ok && b.Head.Epoch == p.Epoch {
		o.Index.Remove(p.Path)
	}
}
