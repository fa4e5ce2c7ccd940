package ratel

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"lukechampine.com/frand"

	"rocktree.lol/context"
	"rocktree.lol/lol"
	"rocktree.lol/store"
)

func open(t *testing.T, dir string) *T {
	r := New(BackendParams{Ctx: context.Bg(), WG: &sync.WaitGroup{}, LogLevel: lol.Off})
	require.NoError(t, r.Init(dir))
	return r
}

func TestPayloads(t *testing.T) {
	c := context.Bg()
	dir := t.TempDir()
	r := open(t, dir)
	_, err := r.Get(c, "BulkMetadata/pb=!1m2!1s!2u1")
	require.True(t, errors.Is(err, store.ErrNotFound))

	want := map[string][]byte{}
	for i := range 10 {
		k := fmt.Sprintf("NodeData/pb=!1m2!1s0%d!2u1!2e1!4b0", i)
		want[k] = frand.Bytes(frand.Intn(4000) + 1)
		require.NoError(t, r.Put(c, k, want[k]))
	}
	n, size, err := r.Count(c)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	var total int64
	for _, v := range want {
		total += int64(len(v))
	}
	require.Equal(t, total, size)
	require.NoError(t, r.Close())

	r = open(t, dir)
	defer r.Close()
	for k, v := range want {
		got, err := r.Get(c, k)
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	for k := range want {
		require.NoError(t, r.Delete(c, k))
		break
	}
	n, _, err = r.Count(c)
	require.NoError(t, err)
	require.Equal(t, 9, n)
	require.NoError(t, r.Nuke())
	n, _, err = r.Count(c)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestPrune(t *testing.T) {
	c := context.Bg()
	r := open(t, t.TempDir())
	defer r.Close()
	now := time.Unix(1700000000, 0)
	r.Now = func() time.Time { return now }
	for i := range 10 {
		now = now.Add(time.Second)
		require.NoError(t, r.Put(c, fmt.Sprint(i), make([]byte, 100)))
	}
	pruned, err := r.Prune()
	require.NoError(t, err)
	require.Zero(t, pruned)

	r.SizeLimit, r.LowWater = 900, 50
	pruned, err = r.Prune()
	require.NoError(t, err)
	require.Equal(t, 6, pruned)
	// the oldest went first
	for i := range 10 {
		_, err = r.Get(c, fmt.Sprint(i))
		if i < 6 {
			require.True(t, errors.Is(err, store.ErrNotFound), "%d", i)
		} else {
			require.NoError(t, err)
		}
	}
	require.NoError(t, r.GCRun())
}
