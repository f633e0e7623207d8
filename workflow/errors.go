package workflow

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// Sequencing and contention errors surfaced by the orchestrators. Stock
// integrity errors (insufficient stock, line item mismatch) live in models
// next to the code that raises them; both families propagate unmodified
// through the fulfillment path.
var (
	// ErrApprovalNotEligible: fulfillment invoked before all required levels
	// approved (or out of lifecycle order). Rejected immediately, no side
	// effects.
	ErrApprovalNotEligible = errors.New("request is not eligible for fulfillment")

	// ErrApprovalAlreadyRecorded: a conflicting decision was submitted for an
	// already-decided level. Submitting the identical decision again is a
	// no-op, not this error.
	ErrApprovalAlreadyRecorded = errors.New("approval already recorded for this level")

	// ErrContention: a posting lock could not be acquired within the bounded
	// wait. Retryable.
	ErrContention = errors.New("inventory posting contention, retry later")

	// ErrRequestFrozen: the request failed a fatal integrity check earlier
	// and waits for manual review.
	ErrRequestFrozen = errors.New("request is frozen pending manual review")
)

// mapTxContention folds MySQL lock-wait timeouts (1205) and deadlocks (1213)
// into ErrContention: the transaction rolled back cleanly and a blind retry
// may succeed, exactly like losing the posting lock. Every workflow passes
// its transaction error through here before returning it.
func mapTxContention(err error) error {
	if err == nil {
		return nil
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) && (mysqlErr.Number == 1205 || mysqlErr.Number == 1213) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}
