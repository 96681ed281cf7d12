package buffer

import (
	"gobustub/logger"
	"gobustub/server/innodb/container/hash"
	"gobustub/server/innodb/latch"
	"gobustub/server/innodb/storage/disk"
	"gobustub/server/innodb/storage/page"
)

// pageTableBucketSize caps how many page ids the internal extendible hash
// directory packs per bucket before splitting; unrelated to pool capacity.
const pageTableBucketSize = 4

// Pool caches disk pages in a fixed set of frames. It coordinates pinning,
// tracks dirtiness and serializes replacement behind one pool-wide latch,
// per spec section 4.3.
type Pool struct {
	latch *latch.Latch

	disk      disk.Manager
	replacer  *LRUKReplacer
	pageTable *hash.ExtendibleHashTable[int32, FrameID]

	frames   []page.Page
	freeList []FrameID

	nextPageID int32
}

// NewPool builds a pool of poolSize frames backed by diskManager, using
// replacerK as the LRU-K replacer's k parameter.
func NewPool(poolSize int, replacerK int, diskManager disk.Manager) *Pool {
	freeList := make([]FrameID, poolSize)
	frames := make([]page.Page, poolSize)
	for i := 0; i < poolSize; i++ {
		freeList[i] = FrameID(i)
		frames[i].ID = page.InvalidPageID
	}
	return &Pool{
		latch:     latch.NewLatch(),
		disk:      diskManager,
		replacer:  NewLRUKReplacer(poolSize, replacerK),
		pageTable: hash.NewExtendibleHashTable[int32, FrameID](pageTableBucketSize, hash.Uint32Hash),
		frames:    frames,
		freeList:  freeList,
	}
}

// victimFrame obtains a frame to use for a new resident page: the free
// list first, then the replacer. If the chosen frame holds a dirty page it
// is flushed to disk before reuse. Returns false if neither source has a
// frame available.
func (p *Pool) victimFrame() (FrameID, bool) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, true
	}

	fid, ok := p.replacer.Evict()
	if !ok {
		return 0, false
	}
	frame := &p.frames[fid]
	if frame.ID != page.InvalidPageID {
		if frame.IsDirty {
			if err := p.disk.WritePage(frame.ID, &frame.Data); err != nil {
				logger.Errorf("buffer: flush of victim frame %d failed: %v", frame.ID, err)
			}
		}
		p.pageTable.Remove(frame.ID)
	}
	return fid, true
}

// NewPage allocates a fresh page id and pins it in a frame, zeroing the
// frame's content. Returns (InvalidPageID, false) if no frame is free or
// evictable.
func (p *Pool) NewPage() (int32, bool) {
	p.latch.Lock()
	defer p.latch.Unlock()

	fid, ok := p.victimFrame()
	if !ok {
		return page.InvalidPageID, false
	}

	pageID := p.nextPageID
	p.nextPageID++

	frame := &p.frames[fid]
	frame.Reset()
	frame.ID = pageID
	frame.PinCount = 1

	p.pageTable.Insert(pageID, fid)
	p.replacer.RecordAccess(fid)
	p.replacer.SetEvictable(fid, false)

	return pageID, true
}

// FetchPage pins pageID, loading it from disk if not already resident.
func (p *Pool) FetchPage(pageID int32) (*page.Page, bool) {
	p.latch.Lock()
	defer p.latch.Unlock()

	if fid, ok := p.pageTable.Find(pageID); ok {
		frame := &p.frames[fid]
		frame.PinCount++
		p.replacer.RecordAccess(fid)
		p.replacer.SetEvictable(fid, false)
		return frame, true
	}

	fid, ok := p.victimFrame()
	if !ok {
		return nil, false
	}

	frame := &p.frames[fid]
	frame.Reset()
	frame.ID = pageID
	if err := p.disk.ReadPage(pageID, &frame.Data); err != nil {
		logger.Errorf("buffer: fetch of page %d failed: %v", pageID, err)
		p.freeList = append(p.freeList, fid)
		return nil, false
	}
	frame.PinCount = 1
	// Open question (dirty-on-fetch): the source this module is ported
	// from unconditionally marks a freshly fetched page dirty. Preserved
	// here for behavioral compatibility with existing callers; see
	// DESIGN.md.
	frame.IsDirty = true

	p.pageTable.Insert(pageID, fid)
	p.replacer.RecordAccess(fid)
	p.replacer.SetEvictable(fid, false)

	return frame, true
}

// UnpinPage decrements pageID's pin count, ORing in isDirty. It fails if
// the page is not resident or already unpinned.
func (p *Pool) UnpinPage(pageID int32, isDirty bool) bool {
	p.latch.Lock()
	defer p.latch.Unlock()

	fid, ok := p.pageTable.Find(pageID)
	if !ok {
		return false
	}
	frame := &p.frames[fid]
	if frame.PinCount <= 0 {
		return false
	}
	frame.PinCount--
	if isDirty {
		frame.IsDirty = true
	}
	if frame.PinCount == 0 {
		p.replacer.SetEvictable(fid, true)
	}
	return true
}

// FlushPage writes pageID to disk if resident, clearing its dirty flag.
func (p *Pool) FlushPage(pageID int32) bool {
	p.latch.Lock()
	defer p.latch.Unlock()
	return p.flushLocked(pageID)
}

func (p *Pool) flushLocked(pageID int32) bool {
	fid, ok := p.pageTable.Find(pageID)
	if !ok {
		return false
	}
	frame := &p.frames[fid]
	if err := p.disk.WritePage(pageID, &frame.Data); err != nil {
		logger.Errorf("buffer: flush of page %d failed: %v", pageID, err)
		return false
	}
	frame.IsDirty = false
	return true
}

// FlushAll flushes every resident page. Per DESIGN.md, this walks the
// frame array directly rather than an integer range up to nextPageID.
func (p *Pool) FlushAll() {
	p.latch.Lock()
	defer p.latch.Unlock()
	for i := range p.frames {
		frame := &p.frames[i]
		if frame.ID != page.InvalidPageID {
			p.flushLocked(frame.ID)
		}
	}
}

// DeletePage removes pageID from the pool, refusing if it is pinned.
func (p *Pool) DeletePage(pageID int32) bool {
	p.latch.Lock()
	defer p.latch.Unlock()

	fid, ok := p.pageTable.Find(pageID)
	if !ok {
		return true
	}
	frame := &p.frames[fid]
	if frame.PinCount > 0 {
		return false
	}
	if frame.IsDirty {
		p.flushLocked(pageID)
	}
	p.pageTable.Remove(pageID)
	p.replacer.Remove(fid)
	frame.Reset()
	p.freeList = append(p.freeList, fid)
	return true
}

// FrameCount exposes the pool's fixed frame array size.
func (p *Pool) FrameCount() int {
	return len(p.frames)
}

