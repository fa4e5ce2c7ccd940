package fetch

import (
	"container/heap"

	"rocktree.lol/cache"
	"rocktree.lol/transport"
)

// job is one artifact to fetch. Lower prio goes first.
type job struct {
	key    cache.Key
	parent *cache.Key
	req    transport.NodeRequest
	prio   no
	seq    no
	index  no
}

// queue is a priority queue of jobs with at most one job per key.
type queue struct {
	jobs  jobHeap
	byKey map[cache.Key]*job
	seq   no
}

func newQueue() *queue { return &queue{byKey: make(map[cache.Key]*job)} }

// push adds j, or raises the priority of the job already queued for its key.
func (q *queue) push(j *job) {
	if old, ok := q.byKey[j.key]; ok {
		if j.prio < old.prio {
			old.prio = j.prio
			heap.Fix(&q.jobs, old.index)
		}
		return
	}
	q.seq++
	j.seq = q.seq
	q.byKey[j.key] = j
	heap.Push(&q.jobs, j)
}

func (q *queue) pop() (j *job) {
	if len(q.jobs) == 0 {
		return
	}
	j = heap.Pop(&q.jobs).(*job)
	delete(q.byKey, j.key)
	return
}

func (q *queue) len() no { return len(q.jobs) }

type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio < h[j].prio
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}
