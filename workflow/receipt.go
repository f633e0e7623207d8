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

type ReceiptItemInput struct {
	ItemId      int             `json:"item_id" binding:"required"`
	ReceivedQty decimal.Decimal `json:"received_qty"`
}

type RecordReceiptInput struct {
	RequestId int                `json:"request_id"`
	Items     []ReceiptItemInput `json:"items" binding:"required"`
	Remarks   string             `json:"remarks"`
}

type ReceiptResult struct {
	RequestId          int              `json:"request_id"`
	ShortfallQty       decimal.Decimal  `json:"shortfall_qty"`
	ReturnMovementId   *int             `json:"return_movement_id"`
	Deltas             []InventoryDelta `json:"deltas"`
}

// RecordReceipt confirms arrival of allocated stock at the destination and
// advances the request to Received. Quantities stay in the destination's
// in-transit bucket until verification splits them by condition.
//
// Receiving less than was allocated is a shortfall: the difference is posted
// back to the source's good bucket through a reversing movement against the
// original delivery note, so the system-wide total is conserved. Physically
// lost goods are handled later as an explicit audited adjustment, not by
// silently shrinking the ledger here.
func RecordReceipt(ctx context.Context, input *RecordReceiptInput) (*ReceiptResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	if id, dup := duplicateItemId(receiptItemIds(input.Items)); dup {
		return nil, fmt.Errorf("item %d appears more than once in receipt input", id)
	}

	result := ReceiptResult{RequestId: input.RequestId, ShortfallQty: decimal.Zero}
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
		if request.CurrentStatus != models.RequestStatusAllocated {
			return fmt.Errorf("request %d is %s, receipt applies to allocated requests",
				request.ID, request.CurrentStatus)
		}

		allocation, err := allocationMovement(tx, request.ID)
		if err != nil {
			return err
		}
		source := allocation.Source()
		destination := allocation.Destination()

		itemsById := make(map[int]*models.SpareRequestItem, len(request.Items))
		for i := range request.Items {
			itemsById[request.Items[i].ID] = &request.Items[i]
		}

		shortfallItems := make([]models.GoodsMovementItem, 0)
		for _, received := range input.Items {
			item, ok := itemsById[received.ItemId]
			if !ok {
				return fmt.Errorf("item %d does not belong to request %d", received.ItemId, request.ID)
			}
			if item.ApprovedQty == nil {
				return fmt.Errorf("item %d has no approved quantity", item.ID)
			}
			if received.ReceivedQty.IsNegative() || received.ReceivedQty.GreaterThan(*item.ApprovedQty) {
				return fmt.Errorf("item %d: received qty %s outside [0, %s]",
					item.ID, received.ReceivedQty.String(), item.ApprovedQty.String())
			}

			item.ReceivedQty = received.ReceivedQty
			if err := item.CheckQtyChain(); err != nil {
				return err
			}
			err := tx.Model(&models.SpareRequestItem{}).Where("id = ?", item.ID).
				Update("received_qty", received.ReceivedQty).Error
			if err != nil {
				return err
			}

			shortfall := item.ApprovedQty.Sub(received.ReceivedQty)
			if shortfall.IsPositive() {
				shortfallItems = append(shortfallItems, models.GoodsMovementItem{
					SpareId:   item.SpareId,
					Qty:       shortfall,
					Condition: models.ConditionGood,
				})
				result.ShortfallQty = result.ShortfallQty.Add(shortfall)
			}
		}
		// Items the caller did not mention are received in full.
		for i := range request.Items {
			item := &request.Items[i]
			if _, mentioned := findReceiptInput(input.Items, item.ID); mentioned {
				continue
			}
			if item.ApprovedQty == nil {
				return fmt.Errorf("item %d has no approved quantity", item.ID)
			}
			item.ReceivedQty = *item.ApprovedQty
			err := tx.Model(&models.SpareRequestItem{}).Where("id = ?", item.ID).
				Update("received_qty", item.ReceivedQty).Error
			if err != nil {
				return err
			}
		}

		if len(shortfallItems) > 0 {
			for _, line := range shortfallItems {
				err := models.MoveInventory(tx, line.SpareId,
					destination, models.BucketInTransit,
					source, models.BucketGood, line.Qty)
				if err != nil {
					return err
				}
				result.Deltas = append(result.Deltas,
					InventoryDelta{SpareId: line.SpareId, Location: destination, Bucket: models.BucketInTransit, Change: line.Qty.Neg()},
					InventoryDelta{SpareId: line.SpareId, Location: source, Bucket: models.BucketGood, Change: line.Qty})
			}

			reason := "receipt shortfall returned to source"
			if input.Remarks != "" {
				reason = reason + ": " + input.Remarks
			}
			returnMovement := models.StockMovement{
				MovementType:            models.MovementTypeReturn,
				SourceLocationType:      destination.Type,
				SourceLocationId:        destination.Id,
				DestinationLocationType: source.Type,
				DestinationLocationId:   source.Id,
				TotalQty:                result.ShortfallQty,
				ReferenceNumber:         allocation.ReferenceNumber,
				RequestId:               &request.ID,
				IsReversal:              true,
				ReversesMovementId:      &allocation.ID,
				ReversalReason:          &reason,
				Items:                   shortfallItems,
				CreatedByUserId:         userId,
				CorrelationId:           correlationId,
			}
			returnId, err := models.RecordMovement(tx, &returnMovement)
			if err != nil {
				return err
			}
			result.ReturnMovementId = &returnId

			if err := models.WriteOutboxEvent(tx, models.OutboxReferenceTypeMovement, returnId,
				models.OutboxActionCreate, returnMovement, correlationId); err != nil {
				return err
			}
		}

		err = models.TransitionRequestStatus(tx, &request, models.RequestStatusReceived, userId, input.Remarks)
		if err != nil {
			return err
		}
		return models.WriteOutboxEvent(tx, models.OutboxReferenceTypeRequest, request.ID,
			models.OutboxActionUpdate, request, correlationId)
	})
	if err != nil {
		err = mapTxContention(err)
		config.LogError(logger, "receipt.go", "RecordReceipt", "Error recording receipt", input, err)
		return nil, err
	}
	return &result, nil
}

func receiptItemIds(items []ReceiptItemInput) []int {
	ids := make([]int, len(items))
	for i := range items {
		ids[i] = items[i].ItemId
	}
	return ids
}

// duplicateItemId returns the first item id mentioned more than once. The
// per-item loops in receipt and verification post a ledger entry per input
// line, so a repeated id would double-post while the item row keeps only the
// last line's quantities.
func duplicateItemId(ids []int) (int, bool) {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return 0, false
}

func findReceiptInput(items []ReceiptItemInput, itemId int) (*ReceiptItemInput, bool) {
	for i := range items {
		if items[i].ItemId == itemId {
			return &items[i], true
		}
	}
	return nil, false
}

// allocationMovement returns the live (not reversed, not itself a reversal)
// issue movement that allocated stock for the request.
func allocationMovement(tx *gorm.DB, requestId int) (*models.StockMovement, error) {
	var movement models.StockMovement
	err := tx.Preload("Items").
		Where("request_id = ? AND movement_type = ? AND is_reversal = ? AND status = ?",
			requestId, models.MovementTypeIssue, false, models.MovementStatusPosted).
		Order("id DESC").
		First(&movement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no posted allocation movement for request %d", requestId)
		}
		return nil, err
	}
	return &movement, nil
}
