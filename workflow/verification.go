package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/utils"
)

type VerificationItemInput struct {
	ItemId       int             `json:"item_id" binding:"required"`
	GoodQty      decimal.Decimal `json:"good_qty"`
	DefectiveQty decimal.Decimal `json:"defective_qty"`
}

type RecordVerificationInput struct {
	RequestId int                     `json:"request_id"`
	Items     []VerificationItemInput `json:"items" binding:"required"`
	Remarks   string                  `json:"remarks"`
}

type VerificationResult struct {
	RequestId         int              `json:"request_id"`
	MovementId        int              `json:"movement_id"`
	VerifiedGoodQty   decimal.Decimal  `json:"verified_good_qty"`
	VerifiedDefective decimal.Decimal  `json:"verified_defective_qty"`
	UnverifiedQty     decimal.Decimal  `json:"unverified_qty"`
	Deltas            []InventoryDelta `json:"deltas"`
}

// RecordVerification is the single authoritative condition split: inspected
// quantities leave the destination's in-transit bucket for good or defective,
// and the request completes at Verified. No earlier step ever touches the
// good/defective buckets at the destination.
//
// Verifying fewer than were received leaves the difference in the in-transit
// bucket; a later reconciliation resolves it explicitly rather than this step
// guessing a condition for uninspected parts.
func RecordVerification(ctx context.Context, input *RecordVerificationInput) (*VerificationResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if id, dup := duplicateItemId(verificationItemIds(input.Items)); dup {
		return nil, fmt.Errorf("item %d appears more than once in verification input", id)
	}

	result := VerificationResult{
		RequestId:         input.RequestId,
		VerifiedGoodQty:   decimal.Zero,
		VerifiedDefective: decimal.Zero,
		UnverifiedQty:     decimal.Zero,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.SpareRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").First(&request, input.RequestId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}
		if request.IsFrozen {
			return ErrRequestFrozen
		}
		if request.CurrentStatus != models.RequestStatusReceived {
			return fmt.Errorf("request %d is %s, verification applies to received requests",
				request.ID, request.CurrentStatus)
		}
		destination := request.Destination()

		itemsById := make(map[int]*models.SpareRequestItem, len(request.Items))
		for i := range request.Items {
			itemsById[request.Items[i].ID] = &request.Items[i]
		}

		movementItems := make([]models.GoodsMovementItem, 0, 2*len(input.Items))
		total := decimal.Zero
		for _, split := range input.Items {
			item, ok := itemsById[split.ItemId]
			if !ok {
				return fmt.Errorf("item %d does not belong to request %d", split.ItemId, request.ID)
			}
			if split.GoodQty.IsNegative() || split.DefectiveQty.IsNegative() {
				return fmt.Errorf("item %d: condition quantities cannot be negative", item.ID)
			}
			verified := split.GoodQty.Add(split.DefectiveQty)
			if verified.GreaterThan(item.ReceivedQty) {
				return fmt.Errorf("item %d: verified qty %s exceeds received %s",
					item.ID, verified.String(), item.ReceivedQty.String())
			}

			item.VerifiedQty = verified
			item.VerifiedGoodQty = split.GoodQty
			item.VerifiedDefectiveQty = split.DefectiveQty
			if err := item.CheckQtyChain(); err != nil {
				return err
			}
			err := tx.Model(&models.SpareRequestItem{}).Where("id = ?", item.ID).
				Updates(map[string]interface{}{
					"verified_qty":           verified,
					"verified_good_qty":      split.GoodQty,
					"verified_defective_qty": split.DefectiveQty,
				}).Error
			if err != nil {
				return err
			}

			if split.GoodQty.IsPositive() {
				err := models.DebitInventory(tx, item.SpareId, destination, models.BucketInTransit, split.GoodQty)
				if err != nil {
					return err
				}
				if err := models.CreditInventory(tx, item.SpareId, destination, models.BucketGood, split.GoodQty); err != nil {
					return err
				}
				result.Deltas = append(result.Deltas,
					InventoryDelta{SpareId: item.SpareId, Location: destination, Bucket: models.BucketInTransit, Change: split.GoodQty.Neg()},
					InventoryDelta{SpareId: item.SpareId, Location: destination, Bucket: models.BucketGood, Change: split.GoodQty})
				movementItems = append(movementItems, models.GoodsMovementItem{
					SpareId:   item.SpareId,
					Qty:       split.GoodQty,
					Condition: models.ConditionGood,
				})
			}
			if split.DefectiveQty.IsPositive() {
				err := models.DebitInventory(tx, item.SpareId, destination, models.BucketInTransit, split.DefectiveQty)
				if err != nil {
					return err
				}
				if err := models.CreditInventory(tx, item.SpareId, destination, models.BucketDefective, split.DefectiveQty); err != nil {
					return err
				}
				result.Deltas = append(result.Deltas,
					InventoryDelta{SpareId: item.SpareId, Location: destination, Bucket: models.BucketInTransit, Change: split.DefectiveQty.Neg()},
					InventoryDelta{SpareId: item.SpareId, Location: destination, Bucket: models.BucketDefective, Change: split.DefectiveQty})
				movementItems = append(movementItems, models.GoodsMovementItem{
					SpareId:   item.SpareId,
					Qty:       split.DefectiveQty,
					Condition: models.ConditionDefective,
				})
			}

			result.VerifiedGoodQty = result.VerifiedGoodQty.Add(split.GoodQty)
			result.VerifiedDefective = result.VerifiedDefective.Add(split.DefectiveQty)
			result.UnverifiedQty = result.UnverifiedQty.Add(item.ReceivedQty.Sub(verified))
			total = total.Add(verified)
		}
		for i := range request.Items {
			item := &request.Items[i]
			if _, mentioned := findVerificationInput(input.Items, item.ID); !mentioned && item.ReceivedQty.IsPositive() {
				return fmt.Errorf("item %d received %s but has no verification split",
					item.ID, item.ReceivedQty.String())
			}
		}

		if len(movementItems) > 0 {
			allocation, err := allocationMovement(tx, request.ID)
			if err != nil {
				return err
			}
			movement := models.StockMovement{
				MovementType:            models.MovementTypeAdjustment,
				SourceLocationType:      destination.Type,
				SourceLocationId:        destination.Id,
				DestinationLocationType: destination.Type,
				DestinationLocationId:   destination.Id,
				TotalQty:                total,
				ReferenceNumber:         allocation.ReferenceNumber,
				RequestId:               &request.ID,
				Items:                   movementItems,
				CreatedByUserId:         userId,
				CorrelationId:           correlationId,
			}
			movementId, err := models.RecordMovement(tx, &movement)
			if err != nil {
				return err
			}
			result.MovementId = movementId

			if err := models.WriteOutboxEvent(tx, models.OutboxReferenceTypeMovement, movementId,
				models.OutboxActionCreate, movement, correlationId); err != nil {
				return err
			}
		}

		err = models.TransitionRequestStatus(tx, &request, models.RequestStatusVerified, userId, input.Remarks)
		if err != nil {
			return err
		}
		return models.WriteOutboxEvent(tx, models.OutboxReferenceTypeRequest, request.ID,
			models.OutboxActionUpdate, request, correlationId)
	})
	if err != nil {
		err = mapTxContention(err)
		config.LogError(logger, "verification.go", "RecordVerification", "Error recording verification", input, err)
		return nil, err
	}
	return &result, nil
}

func verificationItemIds(items []VerificationItemInput) []int {
	ids := make([]int, len(items))
	for i := range items {
		ids[i] = items[i].ItemId
	}
	return ids
}

func findVerificationInput(items []VerificationItemInput, itemId int) (*VerificationItemInput, bool) {
	for i := range items {
		if items[i].ItemId == itemId {
			return &items[i], true
		}
	}
	return nil, false
}
