package concurrency

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockManager() (*LockManager, *TransactionManager) {
	tm := NewTransactionManager()
	lm := NewLockManager(tm, 20*time.Millisecond)
	return lm, tm
}

func abortReason(err error) AbortReason {
	var e *TransactionAbortException
	if errors.As(err, &e) {
		return e.Reason
	}
	return -1
}

func TestLockManagerBasicGrant(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	txn := tm.Begin(RepeatableRead)
	require.NoError(t, lm.LockTable(txn, IS, "t1"))
	require.True(t, txn.HasTableLock("t1", IS))
}

func TestLockManagerIncompatibleBlocksThenGrants(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockTable(t1, X, "t1"))

	done := make(chan error, 1)
	go func() { done <- lm.LockTable(t2, S, "t1") }()

	select {
	case <-done:
		t.Fatal("t2 should not have been granted while t1 holds X")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lm.UnlockTable(t1, "t1"))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("t2 never granted after t1 released")
	}
}

func TestLockManagerUpgrade(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockTable(t1, S, "t"))
	require.NoError(t, lm.LockTable(t2, S, "t"))

	done := make(chan error, 1)
	go func() { done <- lm.LockTable(t1, X, "t") }()

	select {
	case <-done:
		t.Fatal("upgrade should block while t2 still holds S")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, lm.UnlockTable(t2, "t"))
	select {
	case err := <-done:
		require.NoError(t, err)
		require.True(t, t1.HasTableLock("t", X))
		require.False(t, t1.HasTableLock("t", S))
	case <-time.After(time.Second):
		t.Fatal("upgrade never completed")
	}
}

func TestLockManagerReadUncommittedRejectsShared(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	txn := tm.Begin(ReadUncommitted)
	err := lm.LockTable(txn, S, "t")
	require.Error(t, err)
	assert.Equal(t, LockSharedOnReadUncommitted, abortReason(err))
	assert.Equal(t, Aborted, txn.State())
}

func TestLockManagerShrinkingRepeatableReadRejectsAnyLock(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	txn := tm.Begin(RepeatableRead)
	require.NoError(t, lm.LockTable(txn, S, "t"))
	require.NoError(t, lm.UnlockTable(txn, "t"))
	require.Equal(t, Shrinking, txn.State())

	err := lm.LockTable(txn, S, "t2")
	require.Error(t, err)
	assert.Equal(t, LockOnShrinking, abortReason(err))
}

func TestLockManagerRowRequiresTableLock(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	txn := tm.Begin(RepeatableRead)
	err := lm.LockRow(txn, S, "t", 1)
	require.Error(t, err)
	assert.Equal(t, TableLockNotPresent, abortReason(err))
}

func TestLockManagerIntentionLockOnRowRejected(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	txn := tm.Begin(RepeatableRead)
	require.NoError(t, lm.LockTable(txn, IX, "t"))
	err := lm.LockRow(txn, IX, "t", 1)
	require.Error(t, err)
	assert.Equal(t, AttemptedIntentionLockOnRow, abortReason(err))
}

func TestLockManagerUnlockTableBeforeRowsFails(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	txn := tm.Begin(RepeatableRead)
	require.NoError(t, lm.LockTable(txn, IX, "t"))
	require.NoError(t, lm.LockRow(txn, X, "t", 1))

	err := lm.UnlockTable(txn, "t")
	require.Error(t, err)
	assert.Equal(t, TableUnlockedBeforeUnlockingRows, abortReason(err))
}

func TestLockManagerDeadlockDetection(t *testing.T) {
	lm, tm := newTestLockManager()
	defer lm.Close()

	t1 := tm.Begin(RepeatableRead)
	t2 := tm.Begin(RepeatableRead)

	require.NoError(t, lm.LockTable(t1, IX, "t"))
	require.NoError(t, lm.LockTable(t2, IX, "t"))
	require.NoError(t, lm.LockRow(t1, X, "t", 1))
	require.NoError(t, lm.LockRow(t2, X, "t", 2))

	res1 := make(chan error, 1)
	res2 := make(chan error, 1)
	go func() { res1 <- lm.LockRow(t1, X, "t", 2) }()
	go func() { res2 <- lm.LockRow(t2, X, "t", 1) }()

	var outcomes []error
	for i := 0; i < 2; i++ {
		select {
		case e := <-res1:
			outcomes = append(outcomes, e)
		case e := <-res2:
			outcomes = append(outcomes, e)
		case <-time.After(3 * time.Second):
			t.Fatal("deadlock never resolved")
		}
	}

	var aborted, ok int
	for _, e := range outcomes {
		if e != nil {
			aborted++
			assert.Equal(t, Deadlock, abortReason(e))
		} else {
			ok++
		}
	}
	assert.Equal(t, 1, aborted)
	assert.Equal(t, 1, ok)

	// the younger transaction (t2, larger id) is the victim.
	assert.Equal(t, Aborted, t2.State())
}
