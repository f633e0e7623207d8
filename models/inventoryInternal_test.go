package models

import (
	"errors"
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

// Only a duplicate-key failure on the lazy insert means another transaction
// won the race to create the row; anything else is a real error.
func TestIsInventoryKeyCollision(t *testing.T) {
	dup := fmt.Errorf("insert failed: %w", &mysqlDriver.MySQLError{Number: 1062, Message: "duplicate entry"})
	if !isInventoryKeyCollision(dup) {
		t.Fatal("1062 should be treated as a create race")
	}
	if isInventoryKeyCollision(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatal("a deadlock is not a create race")
	}
	if isInventoryKeyCollision(errors.New("connection refused")) {
		t.Fatal("non-mysql errors are not create races")
	}
}
