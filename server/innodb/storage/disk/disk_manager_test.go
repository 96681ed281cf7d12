package disk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"gobustub/server/innodb/storage/page"
)

func TestFileManagerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFileManager(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer m.Close()

	var buf [page.Size]byte
	buf[0] = 0xAB
	buf[page.Size-1] = 0xCD
	require.NoError(t, m.WritePage(3, &buf))

	var got [page.Size]byte
	require.NoError(t, m.ReadPage(3, &got))
	require.Equal(t, buf, got)
}

func TestFileManagerUnwrittenPageReadsZero(t *testing.T) {
	dir := t.TempDir()
	m, err := NewFileManager(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	defer m.Close()

	var got [page.Size]byte
	got[0] = 0x01
	require.NoError(t, m.ReadPage(7, &got))
	for _, b := range got {
		require.Equal(t, byte(0), b)
	}
	_, statErr := os.Stat(filepath.Join(dir, "test.db"))
	require.NoError(t, statErr)
}
