package ratel

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"rocktree.lol/store"
)

const stampLen = 8

func (r *T) Get(c cx, key st) (val by, err er) {
	err = r.View(func(txn *badger.Txn) (err er) {
		var item *badger.Item
		if item, err = txn.Get(Payload.Key(key)); err != nil {
			return
		}
		var v by
		if v, err = item.ValueCopy(nil); chk.E(err) {
			return
		}
		if len(v) < stampLen {
			return errorf.E("payload record %q is %d bytes", key, len(v))
		}
		val = v[stampLen:]
		return
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = store.ErrNotFound
	}
	return
}

func (r *T) Put(c cx, key st, val by) (err er) {
	v := make(by, stampLen, stampLen+len(val))
	binary.BigEndian.PutUint64(v, uint64(r.now().UnixNano()))
	v = append(v, val...)
	return r.Update(func(txn *badger.Txn) er {
		return txn.Set(Payload.Key(key), v)
	})
}

func (r *T) Delete(c cx, key st) (err er) {
	return r.Update(func(txn *badger.Txn) er {
		return txn.Delete(Payload.Key(key))
	})
}

// record is the key, age and size of a stored payload.
type record struct {
	key      by
	storedAt time.Time
	size     int64
}

// scan walks every payload record, reading only the stamp of each value.
func (r *T) scan(fn func(rec record) bo) (err er) {
	return r.View(func(txn *badger.Txn) (err er) {
		prefix := by{Payload.B()}
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rec := record{key: item.KeyCopy(nil), size: item.ValueSize() - stampLen}
			if err = item.Value(func(v by) er {
				if len(v) >= stampLen {
					rec.storedAt = time.Unix(0, int64(binary.BigEndian.Uint64(v)))
				}
				return nil
			}); chk.E(err) {
				return
			}
			if !fn(rec) {
				return
			}
		}
		return
	})
}

func (r *T) Count(c cx) (count no, size int64, err er) {
	err = r.scan(func(rec record) bo {
		count++
		size += rec.size
		return c.Err() == nil
	})
	if err == nil {
		err = c.Err()
	}
	return
}
