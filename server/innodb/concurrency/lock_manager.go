package concurrency

import (
	"sort"
	"sync"
	"time"

	"gobustub/logger"
)

const noUpgrade int64 = -1

type lockRequest struct {
	txnID   int64
	mode    LockMode
	granted bool
}

// LockRequestQueue is the per-resource FIFO wait queue spec section 3
// describes: an ordered list of requests, a coordination latch doubling
// as the condition variable's locker, and the single in-progress upgrade
// (if any).
type LockRequestQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	requests  []*lockRequest
	upgrading int64
}

func newLockRequestQueue() *LockRequestQueue {
	q := &LockRequestQueue{upgrading: noUpgrade}
	q.cond = sync.NewCond(&q.mu)
	return q
}

type rowKey struct {
	table TableID
	row   RowID
}

// LockManager grants and releases table/row locks under the multi-
// granularity compatibility matrix of spec section 4.5, and runs a
// background worker that breaks deadlocks in the implied wait-for graph.
type LockManager struct {
	mapLatch sync.Mutex
	tables   map[TableID]*LockRequestQueue
	rows     map[rowKey]*LockRequestQueue

	txnManager *TransactionManager

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLockManager builds a lock manager resolving victims against txnManager
// and sweeping for deadlocks every interval.
func NewLockManager(txnManager *TransactionManager, interval time.Duration) *LockManager {
	lm := &LockManager{
		tables:     make(map[TableID]*LockRequestQueue),
		rows:       make(map[rowKey]*LockRequestQueue),
		txnManager: txnManager,
		interval:   interval,
		stopCh:     make(chan struct{}),
	}
	go lm.runCycleDetection()
	return lm
}

// Close stops the background deadlock detector.
func (lm *LockManager) Close() {
	lm.stopOnce.Do(func() { close(lm.stopCh) })
}

func (lm *LockManager) getOrCreateTableQueue(tableID TableID) *LockRequestQueue {
	lm.mapLatch.Lock()
	defer lm.mapLatch.Unlock()
	q, ok := lm.tables[tableID]
	if !ok {
		q = newLockRequestQueue()
		lm.tables[tableID] = q
	}
	return q
}

func (lm *LockManager) getOrCreateRowQueue(tableID TableID, rowID RowID) *LockRequestQueue {
	lm.mapLatch.Lock()
	defer lm.mapLatch.Unlock()
	key := rowKey{table: tableID, row: rowID}
	q, ok := lm.rows[key]
	if !ok {
		q = newLockRequestQueue()
		lm.rows[key] = q
	}
	return q
}

// compatible reports whether a requester holding/wanting `want` may be
// granted alongside an already-granted `held`, per the matrix in spec
// section 4.5.
func compatible(held, want LockMode) bool {
	matrix := [5][5]bool{
		IS:  {true, true, true, true, false},
		IX:  {true, true, false, false, false},
		S:   {true, false, true, false, false},
		SIX: {true, false, false, false, false},
		X:   {false, false, false, false, false},
	}
	return matrix[held][want]
}

func allCompatible(held []LockMode, want LockMode) bool {
	for _, h := range held {
		if !compatible(h, want) {
			return false
		}
	}
	return true
}

// tryGrantLocked walks the queue in FIFO order, granting every ungranted
// request compatible with everything granted (or newly granted) ahead of
// it, and stops at the first request it cannot grant. Queue.mu must be
// held.
func tryGrantLocked(queue *LockRequestQueue) {
	var held []LockMode
	for _, r := range queue.requests {
		if r.granted {
			held = append(held, r.mode)
			continue
		}
		if allCompatible(held, r.mode) {
			r.granted = true
			held = append(held, r.mode)
		} else {
			break
		}
	}
}

func removeRequestLocked(queue *LockRequestQueue, target *lockRequest) {
	for i, r := range queue.requests {
		if r == target {
			queue.requests = append(queue.requests[:i], queue.requests[i+1:]...)
			return
		}
	}
}

func findGrantedRequestLocked(queue *LockRequestQueue, txnID int64) *lockRequest {
	for _, r := range queue.requests {
		if r.txnID == txnID && r.granted {
			return r
		}
	}
	return nil
}

// waitForGrant blocks until req is granted or txn is aborted out from
// under it (deadlock victimization). On abort it removes req from the
// queue itself and wakes other waiters before returning.
func (lm *LockManager) waitForGrant(queue *LockRequestQueue, txn *Transaction, req *lockRequest, isUpgrade bool) error {
	queue.mu.Lock()
	defer queue.mu.Unlock()

	for {
		if txn.State() == Aborted {
			removeRequestLocked(queue, req)
			if isUpgrade {
				queue.upgrading = noUpgrade
			}
			queue.cond.Broadcast()
			return newAbort(txn.ID(), Deadlock)
		}
		tryGrantLocked(queue)
		if req.granted {
			if isUpgrade {
				queue.upgrading = noUpgrade
			}
			return nil
		}
		queue.cond.Wait()
	}
}

// checkIsolation enforces spec section 4.5's isolation-level and
// shrinking-phase rules, which must be checked before any wait.
func (lm *LockManager) checkIsolation(txn *Transaction, mode LockMode, isRow bool) error {
	if isRow && (mode == IS || mode == IX || mode == SIX) {
		return newAbort(txn.ID(), AttemptedIntentionLockOnRow)
	}

	level := txn.IsolationLevel()
	if level == ReadUncommitted && (mode == S || mode == IS || mode == SIX) {
		return newAbort(txn.ID(), LockSharedOnReadUncommitted)
	}

	if txn.State() != Shrinking {
		return nil
	}

	switch level {
	case RepeatableRead:
		return newAbort(txn.ID(), LockOnShrinking)
	case ReadCommitted:
		if isRow {
			if mode != S {
				return newAbort(txn.ID(), LockOnShrinking)
			}
		} else if mode != S && mode != IS {
			return newAbort(txn.ID(), LockOnShrinking)
		}
	case ReadUncommitted:
		return newAbort(txn.ID(), LockOnShrinking)
	}
	return nil
}

func (lm *LockManager) checkRowPrerequisite(txn *Transaction, tableID TableID, mode LockMode) error {
	held, ok := txn.HasAnyTableLock(tableID)
	if mode == S {
		if !ok {
			return newAbort(txn.ID(), TableLockNotPresent)
		}
		return nil
	}
	if !ok || (held != IX && held != SIX && held != X) {
		return newAbort(txn.ID(), TableLockNotPresent)
	}
	return nil
}

func upgradeAllowed(held, want LockMode) bool {
	switch held {
	case IS:
		return want == S || want == X || want == IX || want == SIX
	case S:
		return want == X || want == SIX
	case IX:
		return want == X || want == SIX
	case SIX:
		return want == X
	}
	return false
}

// beginUpgrade validates and installs the upgraded request in queue,
// positioned immediately after the currently granted requests (ahead of
// any unrelated waiter), per spec section 4.5's upgrade priority rule.
func (lm *LockManager) beginUpgrade(txn *Transaction, queue *LockRequestQueue, held, want LockMode) (*lockRequest, error) {
	if !upgradeAllowed(held, want) {
		txn.SetState(Aborted)
		return nil, newAbort(txn.ID(), IncompatibleUpgrade)
	}

	queue.mu.Lock()
	defer queue.mu.Unlock()

	if queue.upgrading != noUpgrade && queue.upgrading != txn.ID() {
		txn.SetState(Aborted)
		return nil, newAbort(txn.ID(), UpgradeConflict)
	}

	if old := findGrantedRequestLocked(queue, txn.ID()); old != nil {
		removeRequestLocked(queue, old)
	}
	queue.upgrading = txn.ID()

	req := &lockRequest{txnID: txn.ID(), mode: want}
	insertAt := 0
	for _, r := range queue.requests {
		if !r.granted {
			break
		}
		insertAt++
	}
	queue.requests = append(queue.requests, nil)
	copy(queue.requests[insertAt+1:], queue.requests[insertAt:])
	queue.requests[insertAt] = req

	return req, nil
}

// LockTable acquires mode on tableID for txn, blocking if necessary.
func (lm *LockManager) LockTable(txn *Transaction, mode LockMode, tableID TableID) error {
	if txn.State() == Aborted {
		return newAbort(txn.ID(), Deadlock)
	}
	if err := lm.checkIsolation(txn, mode, false); err != nil {
		txn.SetState(Aborted)
		return err
	}

	queue := lm.getOrCreateTableQueue(tableID)

	if held, ok := txn.HasAnyTableLock(tableID); ok {
		if held == mode {
			return nil
		}
		req, err := lm.beginUpgrade(txn, queue, held, mode)
		if err != nil {
			return err
		}
		if err := lm.waitForGrant(queue, txn, req, true); err != nil {
			return err
		}
		txn.removeTableLock(tableID, held)
		txn.addTableLock(tableID, mode)
		return nil
	}

	req := &lockRequest{txnID: txn.ID(), mode: mode}
	queue.mu.Lock()
	queue.requests = append(queue.requests, req)
	queue.mu.Unlock()

	if err := lm.waitForGrant(queue, txn, req, false); err != nil {
		return err
	}
	txn.addTableLock(tableID, mode)
	return nil
}

// UnlockTable releases txn's lock on tableID.
func (lm *LockManager) UnlockTable(txn *Transaction, tableID TableID) error {
	mode, ok := txn.HasAnyTableLock(tableID)
	if !ok {
		txn.SetState(Aborted)
		return newAbort(txn.ID(), AttemptedUnlockButNoLockHeld)
	}
	if txn.HasRowLocks(tableID) {
		txn.SetState(Aborted)
		return newAbort(txn.ID(), TableUnlockedBeforeUnlockingRows)
	}

	queue := lm.getOrCreateTableQueue(tableID)
	queue.mu.Lock()
	if req := findGrantedRequestLocked(queue, txn.ID()); req != nil {
		removeRequestLocked(queue, req)
	}
	queue.cond.Broadcast()
	queue.mu.Unlock()

	txn.removeTableLock(tableID, mode)
	lm.transitionOnUnlock(txn, mode)
	return nil
}

// LockRow acquires mode (S or X) on (tableID, rowID) for txn.
func (lm *LockManager) LockRow(txn *Transaction, mode LockMode, tableID TableID, rowID RowID) error {
	if txn.State() == Aborted {
		return newAbort(txn.ID(), Deadlock)
	}
	if err := lm.checkIsolation(txn, mode, true); err != nil {
		txn.SetState(Aborted)
		return err
	}
	if err := lm.checkRowPrerequisite(txn, tableID, mode); err != nil {
		txn.SetState(Aborted)
		return err
	}

	queue := lm.getOrCreateRowQueue(tableID, rowID)

	if held, ok := txn.HasAnyRowLock(tableID, rowID); ok {
		if held == mode {
			return nil
		}
		req, err := lm.beginUpgrade(txn, queue, held, mode)
		if err != nil {
			return err
		}
		if err := lm.waitForGrant(queue, txn, req, true); err != nil {
			return err
		}
		txn.removeRowLock(tableID, rowID, held)
		txn.addRowLock(tableID, rowID, mode)
		return nil
	}

	req := &lockRequest{txnID: txn.ID(), mode: mode}
	queue.mu.Lock()
	queue.requests = append(queue.requests, req)
	queue.mu.Unlock()

	if err := lm.waitForGrant(queue, txn, req, false); err != nil {
		return err
	}
	txn.addRowLock(tableID, rowID, mode)
	return nil
}

// UnlockRow releases txn's lock on (tableID, rowID).
func (lm *LockManager) UnlockRow(txn *Transaction, tableID TableID, rowID RowID) error {
	mode, ok := txn.HasAnyRowLock(tableID, rowID)
	if !ok {
		txn.SetState(Aborted)
		return newAbort(txn.ID(), AttemptedUnlockButNoLockHeld)
	}

	queue := lm.getOrCreateRowQueue(tableID, rowID)
	queue.mu.Lock()
	if req := findGrantedRequestLocked(queue, txn.ID()); req != nil {
		removeRequestLocked(queue, req)
	}
	queue.cond.Broadcast()
	queue.mu.Unlock()

	txn.removeRowLock(tableID, rowID, mode)
	lm.transitionOnUnlock(txn, mode)
	return nil
}

// transitionOnUnlock applies spec section 4.5's state-transition-on-unlock
// rule. Only releasing an S or X lock can move a transaction from
// GROWING to SHRINKING.
func (lm *LockManager) transitionOnUnlock(txn *Transaction, mode LockMode) {
	if mode != S && mode != X {
		return
	}
	switch txn.IsolationLevel() {
	case RepeatableRead:
		txn.SetState(Shrinking)
	case ReadCommitted:
		if mode == X {
			txn.SetState(Shrinking)
		}
	case ReadUncommitted:
		if mode == X {
			txn.SetState(Shrinking)
		}
	}
}

// runCycleDetection is the background worker of spec section 4.5: it
// sleeps interval, rebuilds the wait-for graph from scratch, and breaks
// every cycle it finds before going back to sleep.
func (lm *LockManager) runCycleDetection() {
	ticker := time.NewTicker(lm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lm.breakAllCycles()
		case <-lm.stopCh:
			return
		}
	}
}

func (lm *LockManager) allQueues() []*LockRequestQueue {
	lm.mapLatch.Lock()
	defer lm.mapLatch.Unlock()
	queues := make([]*LockRequestQueue, 0, len(lm.tables)+len(lm.rows))
	for _, q := range lm.tables {
		queues = append(queues, q)
	}
	for _, q := range lm.rows {
		queues = append(queues, q)
	}
	return queues
}

// buildWaitForGraph snapshots every queue and adds an edge waiter->holder
// for each pair on the same resource where the waiter is ungranted and
// the holder is granted, per spec section 4.5.
func (lm *LockManager) buildWaitForGraph() map[int64][]int64 {
	graph := make(map[int64][]int64)
	for _, q := range lm.allQueues() {
		q.mu.Lock()
		var granted, waiting []int64
		for _, r := range q.requests {
			if r.granted {
				granted = append(granted, r.txnID)
			} else {
				waiting = append(waiting, r.txnID)
			}
		}
		q.mu.Unlock()

		for _, w := range waiting {
			for _, h := range granted {
				if w == h {
					continue
				}
				graph[w] = append(graph[w], h)
			}
		}
	}
	for id := range graph {
		sort.Slice(graph[id], func(i, j int) bool { return graph[id][i] < graph[id][j] })
	}
	return graph
}

// findCycle runs a deterministic DFS over the graph's txn_id-sorted
// adjacency map and returns the first cycle found.
func findCycle(graph map[int64][]int64) ([]int64, bool) {
	ids := make([]int64, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[int64]int, len(ids))
	var path []int64
	var cycle []int64

	var dfs func(n int64) bool
	dfs = func(n int64) bool {
		state[n] = inStack
		path = append(path, n)
		for _, m := range graph[n] {
			switch state[m] {
			case inStack:
				for i, id := range path {
					if id == m {
						cycle = append([]int64{}, path[i:]...)
						break
					}
				}
				return true
			case unvisited:
				if dfs(m) {
					return true
				}
			}
		}
		state[n] = done
		path = path[:len(path)-1]
		return false
	}

	for _, id := range ids {
		if state[id] == unvisited {
			if dfs(id) {
				return cycle, true
			}
		}
	}
	return nil, false
}

func maxTxnID(ids []int64) int64 {
	max := ids[0]
	for _, id := range ids[1:] {
		if id > max {
			max = id
		}
	}
	return max
}

func (lm *LockManager) breakAllCycles() {
	for {
		graph := lm.buildWaitForGraph()
		cycle, found := findCycle(graph)
		if !found {
			return
		}
		victim := maxTxnID(cycle)
		lm.abortVictim(victim)
	}
}

// abortVictim marks victim ABORTED, strips its requests from every queue
// it appears in, and wakes the remaining waiters on each affected queue.
func (lm *LockManager) abortVictim(victim int64) {
	if txn, ok := lm.txnManager.GetTransaction(victim); ok {
		age := txn.AgeMillis()
		lm.txnManager.Abort(txn)
		logger.Debugf("concurrency: deadlock detected, aborting txn %d (age %dms)", victim, age)
	}

	for _, q := range lm.allQueues() {
		q.mu.Lock()
		before := len(q.requests)
		kept := q.requests[:0:0]
		for _, r := range q.requests {
			if r.txnID != victim {
				kept = append(kept, r)
			}
		}
		q.requests = kept
		if q.upgrading == victim {
			q.upgrading = noUpgrade
		}
		if len(kept) != before {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}
