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

// InventoryDelta is one bucket change applied by an orchestrator, reported
// back to the caller alongside the movement it belongs to.
type InventoryDelta struct {
	SpareId  int                    `json:"spare_id"`
	Location models.LocationRef     `json:"location"`
	Bucket   models.InventoryBucket `json:"bucket"`
	Change   decimal.Decimal        `json:"change"`
}

type FulfillmentResult struct {
	RequestId       int              `json:"request_id"`
	MovementId      int              `json:"movement_id"`
	ReferenceNumber string           `json:"reference_number"`
	Source          models.LocationRef `json:"source"`
	Deltas          []InventoryDelta `json:"deltas"`
}

// FulfillRequest atomically releases approved stock for one request:
// debit the source's good bucket, post the delivery-note movement, credit the
// destination's in-transit bucket, advance the request to Allocated and write
// the outbox events. Any failure rolls the whole posting back; the request
// stays Approved and can be retried once the cause is fixed.
//
// Serialization is layered: a distributed lock per source location keeps
// concurrent fulfillments from interleaving across instances, while the row
// locks taken by the ledger primitives are the actual correctness guarantee.
// The outer lock only cuts down on transactions that would block or roll
// back on the same rows; losing it (or finding redis uninitialized) fails
// the call before any posting starts.
func FulfillRequest(ctx context.Context, requestId int) (*FulfillmentResult, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)

	// Pre-resolve the source outside the transaction purely for the lock key;
	// the authoritative resolution happens again under the row lock below.
	probe, err := models.GetSpareRequest(ctx, requestId)
	if err != nil {
		return nil, err
	}
	lockSource, err := models.ResolveSourceLocation(db.WithContext(ctx), probe)
	if err != nil {
		config.LogError(logger, "fulfillment.go", "FulfillRequest", "Error resolving source location", requestId, err)
		return nil, err
	}

	release, err := utils.LocationLock(ctx, string(lockSource.Type), lockSource.Id, "fulfillment.go", "FulfillRequest")
	if err != nil {
		if errors.Is(err, utils.ErrLockNotObtained) {
			return nil, ErrContention
		}
		return nil, err
	}
	defer release()

	var result FulfillmentResult
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.SpareRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").First(&request, requestId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}
		if request.IsFrozen {
			return ErrRequestFrozen
		}

		eval, err := EvaluateApproval(tx, &request)
		if err != nil {
			return err
		}
		if !eval.Eligible {
			return fmt.Errorf("%w: request %d is %s with %d level(s) pending",
				ErrApprovalNotEligible, request.ID, request.CurrentStatus, len(eval.PendingLevels))
		}

		// Exempt kinds skip the approval chain entirely; their items carry no
		// approved quantity yet, so fix it at the requested amount and record
		// the implicit approval transition before posting.
		if request.CurrentStatus == models.RequestStatusPending {
			for i := range request.Items {
				item := &request.Items[i]
				approved := item.RequestedQty
				item.ApprovedQty = &approved
				err := tx.Model(&models.SpareRequestItem{}).Where("id = ?", item.ID).
					Update("approved_qty", approved).Error
				if err != nil {
					return err
				}
			}
			err := models.TransitionRequestStatus(tx, &request, models.RequestStatusApproved, userId,
				"no approval required for kind "+string(request.Kind))
			if err != nil {
				return err
			}
		}

		source, err := models.ResolveSourceLocation(tx, &request)
		if err != nil {
			return err
		}
		destination := request.Destination()
		result.Source = source

		referenceNumber, err := models.NextDocumentNumber(tx, models.DocumentModuleDeliveryNote)
		if err != nil {
			return err
		}

		total := decimal.Zero
		movementItems := make([]models.GoodsMovementItem, 0, len(request.Items))
		for i := range request.Items {
			item := &request.Items[i]
			if item.ApprovedQty == nil {
				return fmt.Errorf("item %d has no approved quantity", item.ID)
			}
			qty := *item.ApprovedQty
			if qty.IsZero() {
				continue
			}

			if err := models.DebitInventory(tx, item.SpareId, source, models.BucketGood, qty); err != nil {
				return err
			}
			if err := models.CreditInventory(tx, item.SpareId, destination, models.BucketInTransit, qty); err != nil {
				return err
			}
			result.Deltas = append(result.Deltas,
				InventoryDelta{SpareId: item.SpareId, Location: source, Bucket: models.BucketGood, Change: qty.Neg()},
				InventoryDelta{SpareId: item.SpareId, Location: destination, Bucket: models.BucketInTransit, Change: qty})

			movementItems = append(movementItems, models.GoodsMovementItem{
				SpareId:   item.SpareId,
				Qty:       qty,
				Condition: models.ConditionGood,
			})
			total = total.Add(qty)
		}
		if len(movementItems) == 0 {
			return fmt.Errorf("request %d has no approved quantity to fulfill", request.ID)
		}

		movement := models.StockMovement{
			MovementType:            models.MovementTypeIssue,
			SourceLocationType:      source.Type,
			SourceLocationId:        source.Id,
			DestinationLocationType: destination.Type,
			DestinationLocationId:   destination.Id,
			TotalQty:                total,
			ReferenceNumber:         referenceNumber,
			RequestId:               &request.ID,
			Items:                   movementItems,
			CreatedByUserId:         userId,
			CorrelationId:           correlationId,
		}
		movementId, err := models.RecordMovement(tx, &movement)
		if err != nil {
			return err
		}

		err = models.TransitionRequestStatus(tx, &request, models.RequestStatusAllocated, userId,
			"stock allocated under "+referenceNumber)
		if err != nil {
			return err
		}

		if err := models.WriteOutboxEvent(tx, models.OutboxReferenceTypeMovement, movementId,
			models.OutboxActionCreate, movement, correlationId); err != nil {
			return err
		}
		if err := models.WriteOutboxEvent(tx, models.OutboxReferenceTypeRequest, request.ID,
			models.OutboxActionUpdate, request, correlationId); err != nil {
			return err
		}

		result.RequestId = request.ID
		result.MovementId = movementId
		result.ReferenceNumber = referenceNumber
		return nil
	})
	if err != nil {
		err = mapTxContention(err)
		config.LogError(logger, "fulfillment.go", "FulfillRequest", "Error fulfilling request", requestId, err)
		// A header/line mismatch means the movement we just assembled is
		// internally inconsistent. That is not retryable; park the request
		// for manual review.
		if errors.Is(err, models.ErrLineItemMismatch) {
			if freezeErr := models.FreezeRequest(db.WithContext(ctx), requestId, err.Error()); freezeErr != nil {
				config.LogError(logger, "fulfillment.go", "FulfillRequest", "Error freezing request", requestId, freezeErr)
			}
		}
		return nil, err
	}
	return &result, nil
}
