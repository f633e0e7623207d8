package utils_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/svcops/spareparts_backend/utils"
)

func TestParseDecimal(t *testing.T) {
	qty, err := utils.ParseDecimal(" 12.5 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if !qty.Equal(decimal.NewFromFloat(12.5)) {
		t.Fatalf("expected 12.5, got %s", qty.String())
	}

	zero, err := utils.ParseDecimal("")
	if err != nil {
		t.Fatalf("blank input must read as zero: %v", err)
	}
	if !zero.IsZero() {
		t.Fatalf("expected zero, got %s", zero.String())
	}

	if _, err := utils.ParseDecimal("12,5"); err == nil {
		t.Fatal("expected error for malformed number")
	}
}
