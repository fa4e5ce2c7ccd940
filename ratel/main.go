// Package ratel is a badger DB based store for fetched payloads, with a
// garbage collector that compacts the value log and prunes the oldest
// payloads when the store grows past its size limit.
package ratel

import (
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"rocktree.lol/context"
	"rocktree.lol/lol"
	"rocktree.lol/store"
)

// T is a badger payload store.
type T struct {
	Ctx            context.T
	WG             *sync.WaitGroup
	dataDir        st
	BlockCacheSize no
	InitLogLevel   no
	Logger         *logger
	// DB is the badger db
	*badger.DB
	// SizeLimit is the payload size in bytes above which the garbage collector
	// prunes the oldest payloads. Zero disables pruning.
	SizeLimit int64
	// LowWater is the percentage of SizeLimit pruning reduces the store to.
	LowWater no
	// GCFrequency is the interval of the garbage collector, which is not
	// started when zero.
	GCFrequency time.Duration
	// Flatten should be set to true to trigger a flatten at close.
	Flatten bo
	// Now stamps stored payloads, time.Now when nil.
	Now func() time.Time
}

var _ store.I = (*T)(nil)

// BackendParams is the configurations used in creating a new ratel.T.
type BackendParams struct {
	Ctx                      context.T
	WG                       *sync.WaitGroup
	BlockCacheSize, LogLevel no
	SizeLimit                int64
	GCFrequency              time.Duration
}

// DefaultLowWater is the share of the size limit, in percent, that pruning
// brings the store back down to.
const DefaultLowWater = 80

// New configures a new ratel.T payload store. Init must be called to open it.
func New(p BackendParams) *T {
	return &T{
		Ctx:            p.Ctx,
		WG:             p.WG,
		BlockCacheSize: p.BlockCacheSize,
		InitLogLevel:   p.LogLevel,
		SizeLimit:      p.SizeLimit,
		LowWater:       DefaultLowWater,
		GCFrequency:    p.GCFrequency,
	}
}

// Path returns the path where the database files are stored.
func (r *T) Path() st { return r.dataDir }

// SetLogLevel changes the level of the badger logger.
func (r *T) SetLogLevel(level st) {
	log.I.F("setting db log level %s", level)
	r.Logger.SetLogLevel(lol.GetLogLevel(level))
}

func (r *T) now() time.Time {
	if r.Now == nil {
		return time.Now()
	}
	return r.Now()
}
