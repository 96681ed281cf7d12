package concurrency

import (
	"fmt"

	"github.com/pkg/errors"
)

// AbortReason is the typed taxonomy of rule violations the lock manager
// can raise against a transaction, per spec section 6.
type AbortReason int

const (
	LockOnShrinking AbortReason = iota
	LockSharedOnReadUncommitted
	UpgradeConflict
	IncompatibleUpgrade
	AttemptedUnlockButNoLockHeld
	AttemptedIntentionLockOnRow
	TableLockNotPresent
	TableUnlockedBeforeUnlockingRows
	Deadlock
)

func (r AbortReason) String() string {
	switch r {
	case LockOnShrinking:
		return "LOCK_ON_SHRINKING"
	case LockSharedOnReadUncommitted:
		return "LOCK_SHARED_ON_READ_UNCOMMITTED"
	case UpgradeConflict:
		return "UPGRADE_CONFLICT"
	case IncompatibleUpgrade:
		return "INCOMPATIBLE_UPGRADE"
	case AttemptedUnlockButNoLockHeld:
		return "ATTEMPTED_UNLOCK_BUT_NO_LOCK_HELD"
	case AttemptedIntentionLockOnRow:
		return "ATTEMPTED_INTENTION_LOCK_ON_ROW"
	case TableLockNotPresent:
		return "TABLE_LOCK_NOT_PRESENT"
	case TableUnlockedBeforeUnlockingRows:
		return "TABLE_UNLOCKED_BEFORE_UNLOCKING_ROWS"
	case Deadlock:
		return "DEADLOCK"
	default:
		return "UNKNOWN_ABORT_REASON"
	}
}

// TransactionAbortException is raised when a lock request violates a rule
// the lock manager enforces before (or, for deadlocks, during) a wait.
// The transaction has already been set ABORTED by the time this is
// returned to the caller.
type TransactionAbortException struct {
	TxnID  int64
	Reason AbortReason
	cause  error
}

func (e *TransactionAbortException) Error() string {
	return fmt.Sprintf("transaction %d aborted: %s", e.TxnID, e.Reason)
}

func newAbort(txnID int64, reason AbortReason) error {
	return errors.WithStack(&TransactionAbortException{TxnID: txnID, Reason: reason})
}
