package buffer

import (
	"container/list"

	"gobustub/server/innodb/latch"
)

// FrameID identifies a frame slot inside the buffer pool's frame array.
type FrameID int32

// LRUKReplacer implements the LRU-K replacement policy: it evicts the
// evictable frame whose backward k-distance (time since its k-th most
// recent access) is largest, falling back to classical LRU (earliest first
// access) for frames with fewer than k recorded accesses.
type LRUKReplacer struct {
	latch *latch.Latch

	k           int
	currentTime int64
	size        int

	entries map[FrameID]*lruKEntry
}

type lruKEntry struct {
	history    *list.List // back is most recent, front is oldest, capped at k
	firstSeen  int64
	evictable  bool
}

// NewLRUKReplacer builds a replacer sized for numFrames frames, tracking
// the k most recent accesses per frame.
func NewLRUKReplacer(numFrames int, k int) *LRUKReplacer {
	return &LRUKReplacer{
		latch:   latch.NewLatch(),
		k:       k,
		entries: make(map[FrameID]*lruKEntry, numFrames),
	}
}

// RecordAccess appends the current logical timestamp to frameID's history.
// It never changes the frame's evictable flag or the evictable count.
func (r *LRUKReplacer) RecordAccess(frameID FrameID) {
	r.latch.Lock()
	defer r.latch.Unlock()

	r.currentTime++
	e, ok := r.entries[frameID]
	if !ok {
		e = &lruKEntry{history: list.New()}
		r.entries[frameID] = e
	}
	if e.history.Len() == 0 {
		e.firstSeen = r.currentTime
	}
	e.history.PushBack(r.currentTime)
	if e.history.Len() > r.k {
		e.history.Remove(e.history.Front())
	}
}

// SetEvictable toggles whether frameID is a candidate for eviction,
// adjusting the replacer's size by +-1. It is a no-op for a frame that has
// never been accessed.
func (r *LRUKReplacer) SetEvictable(frameID FrameID, evictable bool) {
	r.latch.Lock()
	defer r.latch.Unlock()

	e, ok := r.entries[frameID]
	if !ok {
		return
	}
	if e.evictable == evictable {
		return
	}
	e.evictable = evictable
	if evictable {
		r.size++
	} else {
		r.size--
	}
}

// Evict removes and returns the evictable frame with the largest backward
// k-distance, preferring frames with fewer than k accesses (treated as
// +infinity) and breaking ties by earliest first access.
func (r *LRUKReplacer) Evict() (FrameID, bool) {
	r.latch.Lock()
	defer r.latch.Unlock()

	var (
		found        bool
		victim       FrameID
		victimEarly  bool // true once we have picked a <k candidate
		victimFirst  int64
		victimKDist  int64
	)

	for id, e := range r.entries {
		if !e.evictable || e.history.Len() == 0 {
			continue
		}
		lessThanK := e.history.Len() < r.k
		if lessThanK {
			if !found || !victimEarly || e.firstSeen < victimFirst {
				found = true
				victim = id
				victimEarly = true
				victimFirst = e.firstSeen
			}
			continue
		}
		if victimEarly {
			continue // some <k candidate already dominates any >=k candidate
		}
		kthMostRecent := e.history.Front().Value.(int64)
		kDist := r.currentTime - kthMostRecent
		if !found || kDist > victimKDist {
			found = true
			victim = id
			victimKDist = kDist
		}
	}

	if !found {
		return 0, false
	}

	e := r.entries[victim]
	e.history.Init()
	e.evictable = false
	r.size--
	return victim, true
}

// Remove drops frameID's access history and, if it was evictable,
// decrements the replacer's size. It aborts if the frame is non-evictable
// and still has recorded history; it is a no-op for a never-accessed frame.
func (r *LRUKReplacer) Remove(frameID FrameID) {
	r.latch.Lock()
	defer r.latch.Unlock()

	e, ok := r.entries[frameID]
	if !ok {
		return
	}
	if !e.evictable && e.history.Len() > 0 {
		panic("buffer: Remove called on a non-evictable frame with recorded history")
	}
	if e.evictable {
		r.size--
	}
	delete(r.entries, frameID)
}

// Size returns the number of frames currently marked evictable.
func (r *LRUKReplacer) Size() int {
	r.latch.RLock()
	defer r.latch.RUnlock()
	return r.size
}
