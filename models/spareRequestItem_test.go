package models_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/svcops/spareparts_backend/models"
)

func dec(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func decPtr(n int64) *decimal.Decimal {
	d := decimal.NewFromInt(n)
	return &d
}

func TestCheckQtyChain(t *testing.T) {
	cases := []struct {
		name    string
		item    models.SpareRequestItem
		wantErr bool
	}{
		{
			name: "full chain in order",
			item: models.SpareRequestItem{
				RequestedQty: dec(10), ApprovedQty: decPtr(8),
				ReceivedQty: dec(7), VerifiedQty: dec(7),
				VerifiedGoodQty: dec(5), VerifiedDefectiveQty: dec(2),
			},
		},
		{
			name: "approved not yet decided",
			item: models.SpareRequestItem{RequestedQty: dec(10)},
		},
		{
			name: "partial verification leaves remainder",
			item: models.SpareRequestItem{
				RequestedQty: dec(10), ApprovedQty: decPtr(10),
				ReceivedQty: dec(10), VerifiedQty: dec(6),
				VerifiedGoodQty: dec(6),
			},
		},
		{
			name: "approved above requested",
			item: models.SpareRequestItem{
				RequestedQty: dec(5), ApprovedQty: decPtr(6),
			},
			wantErr: true,
		},
		{
			name: "received above approved",
			item: models.SpareRequestItem{
				RequestedQty: dec(10), ApprovedQty: decPtr(5),
				ReceivedQty: dec(6),
			},
			wantErr: true,
		},
		{
			name: "received capped by requested when no approval",
			item: models.SpareRequestItem{
				RequestedQty: dec(5), ReceivedQty: dec(6),
			},
			wantErr: true,
		},
		{
			name: "verified above received",
			item: models.SpareRequestItem{
				RequestedQty: dec(10), ApprovedQty: decPtr(10),
				ReceivedQty: dec(4), VerifiedQty: dec(5),
				VerifiedGoodQty: dec(5),
			},
			wantErr: true,
		},
		{
			name: "condition split does not sum",
			item: models.SpareRequestItem{
				RequestedQty: dec(10), ApprovedQty: decPtr(10),
				ReceivedQty: dec(10), VerifiedQty: dec(10),
				VerifiedGoodQty: dec(6), VerifiedDefectiveQty: dec(3),
			},
			wantErr: true,
		},
		{
			name: "negative received",
			item: models.SpareRequestItem{
				RequestedQty: dec(10), ApprovedQty: decPtr(10),
				ReceivedQty: dec(-1),
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.item.CheckQtyChain()
			if tc.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
