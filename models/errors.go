package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinels for errors.Is checks; the typed errors below carry the detail the
// caller needs to decide whether to retry or partially fulfill.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLineItemMismatch  = errors.New("movement line items do not sum to header quantity")
)

type InsufficientStockError struct {
	SpareId      int
	LocationType LocationType
	LocationId   int
	Bucket       InventoryBucket
	Have         decimal.Decimal
	Want         decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: spare=%d location=%s/%d bucket=%s have=%s want=%s",
		e.SpareId, e.LocationType.Name(), e.LocationId, e.Bucket.Name(), e.Have.String(), e.Want.String())
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type LineItemMismatchError struct {
	Reference string
	HeaderQty decimal.Decimal
	LineTotal decimal.Decimal
}

func (e *LineItemMismatchError) Error() string {
	return fmt.Sprintf("line item mismatch on %s: header total=%s line total=%s",
		e.Reference, e.HeaderQty.String(), e.LineTotal.String())
}

func (e *LineItemMismatchError) Is(target error) bool {
	return target == ErrLineItemMismatch
}
