package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/utils"
)

type CancelResult struct {
	RequestId          int              `json:"request_id"`
	ReversalMovementId *int             `json:"reversal_movement_id"`
	Deltas             []InventoryDelta `json:"deltas"`
}

// CancelRequest aborts a request from any non-terminal status. Before
// allocation this is a pure status change. After allocation the stock the
// request still holds in the destination's in-transit bucket is returned to
// the source's good bucket through a compensating reversal movement, so
// cancellation never strands or destroys quantity.
func CancelRequest(ctx context.Context, requestId int, remarks string) (*CancelResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	result := CancelResult{RequestId: requestId}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.SpareRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").First(&request, requestId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}
		if request.IsFrozen {
			return ErrRequestFrozen
		}
		if request.CurrentStatus.IsTerminal() {
			return fmt.Errorf("request %d is already %s", request.ID, request.CurrentStatus)
		}

		if request.CurrentStatus == models.RequestStatusAllocated ||
			request.CurrentStatus == models.RequestStatusReceived {
			if err := compensateAllocation(tx, &request, userId, correlationId, remarks, &result); err != nil {
				return err
			}
		}

		err = models.TransitionRequestStatus(tx, &request, models.RequestStatusCancelled, userId, remarks)
		if err != nil {
			return err
		}
		return models.WriteOutboxEvent(tx, models.OutboxReferenceTypeRequest, request.ID,
			models.OutboxActionUpdate, request, correlationId)
	})
	if err != nil {
		err = mapTxContention(err)
		config.LogError(logger, "cancellation.go", "CancelRequest", "Error cancelling request", requestId, err)
		return nil, err
	}
	return &result, nil
}

// compensateAllocation moves whatever the request still holds in transit back
// to the source: the full approved quantity when cancelled at Allocated, the
// received quantity when cancelled at Received (a receipt shortfall was
// already returned by RecordReceipt).
func compensateAllocation(tx *gorm.DB, request *models.SpareRequest, userId int, correlationId, remarks string, result *CancelResult) error {
	allocation, err := allocationMovement(tx, request.ID)
	if err != nil {
		return err
	}
	source := allocation.Source()
	destination := allocation.Destination()

	total := decimal.Zero
	reversalItems := make([]models.GoodsMovementItem, 0, len(request.Items))
	for i := range request.Items {
		item := &request.Items[i]
		var qty decimal.Decimal
		switch request.CurrentStatus {
		case models.RequestStatusAllocated:
			if item.ApprovedQty == nil {
				continue
			}
			qty = *item.ApprovedQty
		case models.RequestStatusReceived:
			qty = item.ReceivedQty
		}
		if !qty.IsPositive() {
			continue
		}

		err := models.MoveInventory(tx, item.SpareId,
			destination, models.BucketInTransit,
			source, models.BucketGood, qty)
		if err != nil {
			return err
		}
		result.Deltas = append(result.Deltas,
			InventoryDelta{SpareId: item.SpareId, Location: destination, Bucket: models.BucketInTransit, Change: qty.Neg()},
			InventoryDelta{SpareId: item.SpareId, Location: source, Bucket: models.BucketGood, Change: qty})

		reversalItems = append(reversalItems, models.GoodsMovementItem{
			SpareId:   item.SpareId,
			Qty:       qty,
			Condition: models.ConditionGood,
		})
		total = total.Add(qty)
	}
	if len(reversalItems) == 0 {
		return nil
	}

	reason := "request cancelled"
	if remarks != "" {
		reason = reason + ": " + remarks
	}
	reversal := models.StockMovement{
		MovementType:            models.MovementTypeReturn,
		SourceLocationType:      destination.Type,
		SourceLocationId:        destination.Id,
		DestinationLocationType: source.Type,
		DestinationLocationId:   source.Id,
		TotalQty:                total,
		ReferenceNumber:         allocation.ReferenceNumber,
		RequestId:               &request.ID,
		IsReversal:              true,
		ReversesMovementId:      &allocation.ID,
		ReversalReason:          &reason,
		Items:                   reversalItems,
		CreatedByUserId:         userId,
		CorrelationId:           correlationId,
	}
	reversalId, err := models.RecordMovement(tx, &reversal)
	if err != nil {
		return err
	}
	result.ReversalMovementId = &reversalId

	// When the full allocation comes back, mark the original movement
	// reversed so the audit chain is closed. A partial return (cancel after
	// a shortfall receipt) leaves the original Posted with the reversal
	// linked through reverses_movement_id.
	if total.Equal(allocation.TotalQty) {
		now := time.Now().UTC()
		err := tx.Model(&models.StockMovement{}).Where("id = ?", allocation.ID).
			Updates(map[string]interface{}{
				"status":                  models.MovementStatusReversed,
				"reversed_by_movement_id": reversalId,
				"reversed_at":             now,
			}).Error
		if err != nil {
			return err
		}
	}

	return models.WriteOutboxEvent(tx, models.OutboxReferenceTypeMovement, reversalId,
		models.OutboxActionCreate, reversal, correlationId)
}
