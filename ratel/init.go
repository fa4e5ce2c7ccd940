package ratel

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"rocktree.lol/units"
)

// Init opens the database at path and starts the garbage collector when a
// frequency is set.
func (r *T) Init(path st) (err er) {
	r.dataDir = path
	log.I.Ln("opening ratel payload store at", r.Path())
	opts := badger.DefaultOptions(r.dataDir)
	opts.BlockCacheSize = int64(r.BlockCacheSize)
	opts.BlockSize = units.Mb
	opts.CompactL0OnClose = true
	opts.LmaxCompaction = true
	// payloads are mostly jpeg and crn data that do not compress further
	opts.Compression = options.None
	r.Logger = NewLogger(r.InitLogLevel, r.dataDir)
	opts.Logger = r.Logger
	if r.DB, err = badger.Open(opts); chk.E(err) {
		return err
	}
	log.T.Ln("running migrations", r.dataDir)
	if err = r.runMigrations(); chk.E(err) {
		return log.E.Err("error running migrations: %w; %s", err, r.dataDir)
	}
	if r.GCFrequency > 0 {
		if r.WG != nil {
			r.WG.Add(1)
		}
		go r.GarbageCollector()
	}
	return nil
}

const Version = 1

func (r *T) runMigrations() (err er) {
	return r.Update(func(txn *badger.Txn) (err er) {
		var version uint16
		var item *badger.Item
		item, err = txn.Get(by{Schema.B()})
		if errors.Is(err, badger.ErrKeyNotFound) {
			version = 0
		} else if chk.E(err) {
			return err
		} else {
			chk.E(item.Value(func(val by) (err er) {
				if len(val) != 2 {
					return fmt.Errorf("version record is %d bytes", len(val))
				}
				version = binary.BigEndian.Uint16(val)
				return
			}))
		}
		if version > Version {
			return fmt.Errorf("database is at version %d, this build reads up to %d",
				version, Version)
		}
		if version < Version {
			chk.E(r.bumpVersion(txn, Version))
		}
		return nil
	})
}

func (r *T) bumpVersion(txn *badger.Txn, version uint16) er {
	buf := make(by, 2)
	binary.BigEndian.PutUint16(buf, version)
	return txn.Set(by{Schema.B()}, buf)
}
