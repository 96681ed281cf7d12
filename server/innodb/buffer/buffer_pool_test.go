package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gobustub/server/innodb/storage/disk"
	"gobustub/server/innodb/storage/page"
)

func newTestPool(t *testing.T, poolSize, k int) *Pool {
	t.Helper()
	dm, err := disk.NewFileManager(filepath.Join(t.TempDir(), "pool.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dm.Close() })
	return NewPool(poolSize, k, dm)
}

func TestPoolRoundTrip(t *testing.T) {
	pool := newTestPool(t, 4, 2)

	id, ok := pool.NewPage()
	require.True(t, ok)

	frame, ok := pool.FetchPage(id)
	require.True(t, ok)
	frame.Data[0] = 0x42
	require.True(t, pool.UnpinPage(id, true))
	require.True(t, pool.UnpinPage(id, true)) // release the NewPage pin too

	var created []int32
	for i := 0; i < 10; i++ {
		if pid, ok := pool.NewPage(); ok {
			created = append(created, pid)
		}
	}
	for _, pid := range created {
		pool.UnpinPage(pid, false)
	}

	frame, ok = pool.FetchPage(id)
	require.True(t, ok)
	require.Equal(t, byte(0x42), frame.Data[0])
	pool.UnpinPage(id, false)
}

func TestPoolExhaustionScenario(t *testing.T) {
	pool := newTestPool(t, 3, 2)

	ids := make([]int32, 3)
	for i := range ids {
		id, ok := pool.NewPage()
		require.True(t, ok)
		ids[i] = id
	}

	for _, id := range ids {
		require.True(t, pool.UnpinPage(id, true))
	}

	// all three frames unpinned and dirty: a fourth NewPage evicts one.
	_, ok := pool.NewPage()
	require.True(t, ok)

	// re-pin everything so nothing is evictable.
	for _, id := range ids {
		_, ok := pool.FetchPage(id)
		_ = ok
	}
	_, ok = pool.NewPage()
	require.False(t, ok)
}

func TestPoolUnpinNotResidentFails(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	require.False(t, pool.UnpinPage(999, false))
}

func TestPoolDeletePinnedFails(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	id, _ := pool.NewPage()
	require.False(t, pool.DeletePage(id))
	require.True(t, pool.UnpinPage(id, false))
	require.True(t, pool.DeletePage(id))
	_, ok := pool.pageTable.Find(id)
	require.False(t, ok)
}

func TestPoolFlushAllClearsDirty(t *testing.T) {
	pool := newTestPool(t, 2, 2)
	id, _ := pool.NewPage()
	frame, _ := pool.FetchPage(id)
	frame.Data[0] = 9
	pool.UnpinPage(id, true)
	pool.UnpinPage(id, false)

	pool.FlushAll()
	require.False(t, pool.frames[0].IsDirty || pool.frames[1].IsDirty)
	require.Equal(t, page.Size, len(frame.Data))
}
