package ratel

import (
	"errors"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"rocktree.lol/units"
)

// GarbageCollector starts up a ticker that compacts the value log and, when
// the payloads exceed SizeLimit, prunes the oldest back to the low water mark.
//
// This function should be invoked as a goroutine, and will terminate when the
// backend context is canceled.
func (r *T) GarbageCollector() {
	if r.WG != nil {
		defer r.WG.Done()
	}
	log.D.F("starting ratel back-end garbage collector, "+
		"max size %0.3fGb, low water %d%%, GC check frequency %v, %s",
		float32(r.SizeLimit)/float32(units.Gb), r.LowWater, r.GCFrequency, r.Path())
	var err error
	if err = r.GCRun(); chk.E(err) {
	}
	GCticker := time.NewTicker(r.GCFrequency)
	syncTicker := time.NewTicker(r.GCFrequency * 10)
out:
	for {
		select {
		case <-r.Ctx.Done():
			log.W.Ln("stopping payload GC ticker")
			GCticker.Stop()
			syncTicker.Stop()
			break out
		case <-GCticker.C:
			if err = r.GCRun(); chk.E(err) {
			}
		case <-syncTicker.C:
			chk.E(r.DB.Sync())
		}
	}
	log.I.Ln("closing badger payload store garbage collector")
}

// GCRun prunes the store if it is over its limit and then rewrites value log
// files until badger finds nothing more to reclaim.
func (r *T) GCRun() (err error) {
	log.T.Ln("running GC", r.Path())
	if _, err = r.Prune(); chk.E(err) {
		return
	}
	for {
		if err = r.DB.RunValueLogGC(0.5); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				err = nil
			}
			return
		}
	}
}

// Prune deletes the oldest payloads until the store holds no more than
// LowWater percent of SizeLimit. It does nothing while the store is within its
// limit and returns the number of payloads deleted.
func (r *T) Prune() (pruned no, err er) {
	if r.SizeLimit <= 0 {
		return
	}
	var recs []record
	var total int64
	if err = r.scan(func(rec record) bo {
		recs = append(recs, rec)
		total += rec.size
		return true
	}); chk.E(err) {
		return
	}
	if total <= r.SizeLimit {
		return
	}
	target := r.SizeLimit * int64(r.LowWater) / 100
	sort.Slice(recs, func(i, j int) bool { return recs[i].storedAt.Before(recs[j].storedAt) })
	batch := r.DB.NewWriteBatch()
	defer batch.Cancel()
	for _, rec := range recs {
		if total <= target {
			break
		}
		if err = batch.Delete(rec.key); chk.E(err) {
			return
		}
		total -= rec.size
		pruned++
	}
	if err = batch.Flush(); chk.E(err) {
		return
	}
	log.D.F("pruned %d payloads, %d bytes remain", pruned, total)
	return
}
