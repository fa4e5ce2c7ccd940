package store

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is a store held in a concurrent map, for tests and for running
// without a disk cache.
type Memory struct {
	m *xsync.MapOf[st, by]
}

var _ I = (*Memory)(nil)

// NewMemory creates an empty Memory store.
func NewMemory() *Memory { return &Memory{m: xsync.NewMapOf[st, by]()} }

func (m *Memory) Init(path st) (err er) { return }

func (m *Memory) Path() (s st) { return }

func (m *Memory) Close() (err er) { return }

func (m *Memory) Sync() (err er) { return }

func (m *Memory) Nuke() (err er) {
	log.W.Ln("nuking memory store")
	m.m.Clear()
	return
}

func (m *Memory) Get(c cx, key st) (val by, err er) {
	var ok bo
	if val, ok = m.m.Load(key); !ok {
		err = ErrNotFound
		return
	}
	return append(by(nil), val...), nil
}

func (m *Memory) Put(c cx, key st, val by) (err er) {
	m.m.Store(key, append(by(nil), val...))
	return
}

func (m *Memory) Delete(c cx, key st) (err er) {
	m.m.Delete(key)
	return
}

func (m *Memory) Count(c cx) (count no, size int64, err er) {
	m.m.Range(func(k st, v by) bo {
		count++
		size += int64(len(v))
		return true
	})
	return
}
