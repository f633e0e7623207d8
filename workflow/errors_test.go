package workflow

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// Lock-wait timeouts and deadlocks roll the transaction back cleanly, so
// callers must see them as retryable contention, not as bad input.
func TestMapTxContention(t *testing.T) {
	for _, number := range []uint16{1205, 1213} {
		wrapped := fmt.Errorf("posting failed: %w", &mysqlDriver.MySQLError{Number: number, Message: "try restarting transaction"})
		mapped := mapTxContention(wrapped)
		if !errors.Is(mapped, ErrContention) {
			t.Errorf("mysql error %d: expected ErrContention, got %v", number, mapped)
		}
	}
}

func TestMapTxContentionPassesOtherErrorsThrough(t *testing.T) {
	if err := mapTxContention(nil); err != nil {
		t.Fatalf("nil must map to nil, got %v", err)
	}

	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "duplicate entry"}
	if mapped := mapTxContention(dup); !errors.Is(mapped, error(dup)) || errors.Is(mapped, ErrContention) {
		t.Fatalf("duplicate key must pass through unchanged, got %v", mapped)
	}

	plain := errors.New("request 9 is Pending, receipt applies to allocated requests")
	if mapped := mapTxContention(plain); mapped != plain {
		t.Fatalf("expected identity for non-mysql errors, got %v", mapped)
	}
}
