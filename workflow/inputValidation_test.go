package workflow_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/svcops/spareparts_backend/utils"
	"github.com/svcops/spareparts_backend/workflow"
)

// A payload repeating the same item id must be rejected up front: the
// per-item loops post one ledger entry per input line, so a duplicate would
// move stock twice while the item row keeps only the last line's quantities.
func TestRecordReceiptRejectsDuplicateItemIds(t *testing.T) {
	ctx := utils.SetUserIdInContext(context.Background(), 7)
	_, err := workflow.RecordReceipt(ctx, &workflow.RecordReceiptInput{
		RequestId: 1,
		Items: []workflow.ReceiptItemInput{
			{ItemId: 3, ReceivedQty: decimal.NewFromInt(5)},
			{ItemId: 4, ReceivedQty: decimal.NewFromInt(2)},
			{ItemId: 3, ReceivedQty: decimal.NewFromInt(1)},
		},
	})
	if err == nil {
		t.Fatal("expected duplicate item ids to be rejected")
	}
	if !strings.Contains(err.Error(), "item 3 appears more than once") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecordVerificationRejectsDuplicateItemIds(t *testing.T) {
	ctx := utils.SetUserIdInContext(context.Background(), 7)
	_, err := workflow.RecordVerification(ctx, &workflow.RecordVerificationInput{
		RequestId: 1,
		Items: []workflow.VerificationItemInput{
			{ItemId: 9, GoodQty: decimal.NewFromInt(3)},
			{ItemId: 9, GoodQty: decimal.NewFromInt(3)},
		},
	})
	if err == nil {
		t.Fatal("expected duplicate item ids to be rejected")
	}
	if !strings.Contains(err.Error(), "item 9 appears more than once") {
		t.Fatalf("unexpected error: %v", err)
	}
}
