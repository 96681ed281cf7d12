// Package disk implements the external disk manager collaborator the
// buffer pool is specified against: an opaque read_page/write_page
// interface over a fixed-size page device. Crash recovery, write-ahead
// logging and variable-size pages are out of scope.
package disk

import (
	"io"
	"os"
	"sync"

	"github.com/juju/errors"

	"gobustub/server/innodb/storage/page"
)

// Manager is the disk manager collaborator: page-addressed block I/O over
// a single backing file.
type Manager interface {
	ReadPage(pageID int32, dst *[page.Size]byte) error
	WritePage(pageID int32, src *[page.Size]byte) error
	Close() error
}

// FileManager is a Manager backed by a single file on the local
// filesystem, growing it on demand as pages beyond the current end are
// written.
type FileManager struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileManager opens (creating if necessary) path as the backing page
// file.
func NewFileManager(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Annotatef(err, "disk: open %s", path)
	}
	return &FileManager{file: f}, nil
}

func (m *FileManager) offset(pageID int32) int64 {
	return int64(pageID) * int64(page.Size)
}

// ReadPage fills dst with pageID's contents. A page that was never written
// reads back as zeroes, matching the buffer pool's zero-on-allocate
// contract.
func (m *FileManager) ReadPage(pageID int32, dst *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range dst {
		dst[i] = 0
	}
	_, err := m.file.ReadAt(dst[:], m.offset(pageID))
	if err != nil && errors.Cause(err) != io.EOF && errors.Cause(err) != io.ErrUnexpectedEOF {
		return errors.Annotatef(err, "disk: read page %d", pageID)
	}
	return nil
}

// WritePage persists src as pageID's contents.
func (m *FileManager) WritePage(pageID int32, src *[page.Size]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.file.WriteAt(src[:], m.offset(pageID)); err != nil {
		return errors.Annotatef(err, "disk: write page %d", pageID)
	}
	return nil
}

// Close flushes and releases the backing file.
func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.file.Close()
}

