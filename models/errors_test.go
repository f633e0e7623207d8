package models_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/svcops/spareparts_backend/models"
)

func TestInsufficientStockErrorMatchesSentinel(t *testing.T) {
	var err error = &models.InsufficientStockError{
		SpareId:      7,
		LocationType: models.LocationTypePlant,
		LocationId:   1,
		Bucket:       models.BucketGood,
		Have:         decimal.NewFromInt(3),
		Want:         decimal.NewFromInt(5),
	}
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatal("InsufficientStockError must match ErrInsufficientStock")
	}
	// Wrapping must not break matching.
	wrapped := fmt.Errorf("fulfill request 12: %w", err)
	if !errors.Is(wrapped, models.ErrInsufficientStock) {
		t.Fatal("wrapped InsufficientStockError must still match")
	}

	var typed *models.InsufficientStockError
	if !errors.As(wrapped, &typed) {
		t.Fatal("errors.As must recover the typed error")
	}
	if typed.Have.Cmp(decimal.NewFromInt(3)) != 0 || typed.Want.Cmp(decimal.NewFromInt(5)) != 0 {
		t.Fatalf("unexpected have/want: %s/%s", typed.Have, typed.Want)
	}
}

func TestLineItemMismatchErrorMatchesSentinel(t *testing.T) {
	var err error = &models.LineItemMismatchError{
		Reference: "DN-000042",
		HeaderQty: decimal.NewFromInt(10),
		LineTotal: decimal.NewFromInt(9),
	}
	if !errors.Is(err, models.ErrLineItemMismatch) {
		t.Fatal("LineItemMismatchError must match ErrLineItemMismatch")
	}
	if errors.Is(err, models.ErrInsufficientStock) {
		t.Fatal("mismatch error must not match the stock sentinel")
	}
}
