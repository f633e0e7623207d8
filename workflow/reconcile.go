package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/utils"
)

type ReconcileInput struct {
	SpareId      int    `json:"spare_id" binding:"required"`
	LocationType string `json:"location_type" binding:"required"`
	LocationId   int    `json:"location_id" binding:"required"`

	CountedGood      decimal.Decimal `json:"counted_good"`
	CountedDefective decimal.Decimal `json:"counted_defective"`
	CountedInTransit decimal.Decimal `json:"counted_in_transit"`

	Remarks string `json:"remarks"`
	// Optional idempotency token. Re-running with the same key after a
	// successful reconciliation is a no-op.
	RequestKey string `json:"request_key"`
}

type ReconcileResult struct {
	SpareId     int                `json:"spare_id"`
	Location    models.LocationRef `json:"location"`
	Skipped     bool               `json:"skipped"`
	MovementIds []int              `json:"movement_ids"`
	Deltas      []InventoryDelta   `json:"deltas"`
}

const reconcileHandlerName = "inventory-reconcile"

// ReconcileInventory adjusts the ledger for one (spare, location) key to a
// physically counted snapshot. Every bucket difference is applied through
// the normal credit/debit primitives and documented by an adjustment
// movement under a freshly allocated ADJ reference, so a count correction
// is as auditable as any transfer.
//
// This is the only sanctioned way to change stock outside the request
// workflow; un-audited ledger writes do not exist.
func ReconcileInventory(ctx context.Context, input *ReconcileInput) (*ReconcileResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	locType, err := models.ParseLocationType(input.LocationType)
	if err != nil {
		return nil, err
	}
	loc := models.LocationRef{Type: locType, Id: input.LocationId}
	for _, counted := range []decimal.Decimal{input.CountedGood, input.CountedDefective, input.CountedInTransit} {
		if counted.IsNegative() {
			return nil, errors.New("counted quantities cannot be negative")
		}
	}

	result := ReconcileResult{SpareId: input.SpareId, Location: loc}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.RequestKey != "" {
			skip, err := BeginIdempotency(tx, reconcileHandlerName, input.RequestKey, 5*time.Minute)
			if err != nil {
				return err
			}
			if skip {
				result.Skipped = true
				return nil
			}
		}

		if err := AcquireLocationPostingLock(tx, loc); err != nil {
			return err
		}
		defer ReleaseLocationPostingLock(tx, loc)

		counted := map[models.InventoryBucket]decimal.Decimal{
			models.BucketGood:      input.CountedGood,
			models.BucketDefective: input.CountedDefective,
			models.BucketInTransit: input.CountedInTransit,
		}

		creditItems := make([]models.GoodsMovementItem, 0, 2)
		debitItems := make([]models.GoodsMovementItem, 0, 2)
		for _, bucket := range []models.InventoryBucket{models.BucketGood, models.BucketDefective, models.BucketInTransit} {
			current, err := currentBucketQtyLocked(tx, input.SpareId, loc, bucket)
			if err != nil {
				return err
			}
			diff := counted[bucket].Sub(current)
			if diff.IsZero() {
				continue
			}

			line := models.GoodsMovementItem{
				SpareId:   input.SpareId,
				Condition: conditionForBucket(bucket),
			}
			if diff.IsPositive() {
				if err := models.CreditInventory(tx, input.SpareId, loc, bucket, diff); err != nil {
					return err
				}
				line.Qty = diff
				creditItems = append(creditItems, line)
			} else {
				if err := models.DebitInventory(tx, input.SpareId, loc, bucket, diff.Neg()); err != nil {
					return err
				}
				line.Qty = diff.Neg()
				debitItems = append(debitItems, line)
			}
			result.Deltas = append(result.Deltas,
				InventoryDelta{SpareId: input.SpareId, Location: loc, Bucket: bucket, Change: diff})
		}
		if len(creditItems) == 0 && len(debitItems) == 0 {
			return nil
		}

		reason := "count reconciliation"
		if input.Remarks != "" {
			reason = reason + ": " + input.Remarks
		}
		for _, batch := range []struct {
			items []models.GoodsMovementItem
			from  models.LocationRef
			to    models.LocationRef
		}{
			{items: creditItems, from: models.LocationRef{Type: models.LocationTypeSupplier, Id: 0}, to: loc},
			{items: debitItems, from: loc, to: models.LocationRef{Type: models.LocationTypeSupplier, Id: 0}},
		} {
			if len(batch.items) == 0 {
				continue
			}
			referenceNumber, err := models.NextDocumentNumber(tx, models.DocumentModuleAdjustment)
			if err != nil {
				return err
			}
			total := decimal.Zero
			for _, line := range batch.items {
				total = total.Add(line.Qty)
			}
			movement := models.StockMovement{
				MovementType:            models.MovementTypeAdjustment,
				SourceLocationType:      batch.from.Type,
				SourceLocationId:        batch.from.Id,
				DestinationLocationType: batch.to.Type,
				DestinationLocationId:   batch.to.Id,
				TotalQty:                total,
				ReferenceNumber:         referenceNumber,
				Remarks:                 &reason,
				Items:                   batch.items,
				CreatedByUserId:         userId,
				CorrelationId:           correlationId,
			}
			movementId, err := models.RecordMovement(tx, &movement)
			if err != nil {
				return err
			}
			result.MovementIds = append(result.MovementIds, movementId)

			if err := models.WriteOutboxEvent(tx, models.OutboxReferenceTypeMovement, movementId,
				models.OutboxActionCreate, movement, correlationId); err != nil {
				return err
			}
		}

		if input.RequestKey != "" {
			return MarkIdempotencySucceeded(tx, reconcileHandlerName, input.RequestKey)
		}
		return nil
	})
	if err != nil {
		err = mapTxContention(err)
		config.LogError(logger, "reconcile.go", "ReconcileInventory", "Error reconciling inventory", input, err)
		return nil, err
	}
	return &result, nil
}

func currentBucketQtyLocked(tx *gorm.DB, spareId int, loc models.LocationRef, bucket models.InventoryBucket) (decimal.Decimal, error) {
	snapshot, err := models.GetInventorySnapshotForUpdate(tx, spareId, loc)
	if err != nil {
		return decimal.Zero, err
	}
	return snapshot.BucketQty(bucket), nil
}

func conditionForBucket(bucket models.InventoryBucket) models.ItemCondition {
	if bucket == models.BucketDefective {
		return models.ConditionDefective
	}
	return models.ConditionGood
}
