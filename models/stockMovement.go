package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/utils"
	"gorm.io/gorm"
)

// StockMovement is the immutable header of one physical or logical transfer.
// Movements are never updated after creation; corrections append a reversing
// movement referencing the original (VoidMovement). This keeps the audit
// trail the ledger buckets are reconciled against.
type StockMovement struct {
	ID                      int             `gorm:"primary_key" json:"id"`
	MovementType            MovementType    `gorm:"type:enum('IS','RT','TR','AJ');not null" json:"movement_type"`
	SourceLocationType      LocationType    `gorm:"type:enum('PL','SC','TN','BR','WH','SP','CU');not null;index:idx_movement_source" json:"source_location_type"`
	SourceLocationId        int             `gorm:"not null;index:idx_movement_source" json:"source_location_id"`
	DestinationLocationType LocationType    `gorm:"type:enum('PL','SC','TN','BR','WH','SP','CU');not null;index:idx_movement_dest" json:"destination_location_type"`
	DestinationLocationId   int             `gorm:"not null;index:idx_movement_dest" json:"destination_location_id"`
	TotalQty                decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_qty"`
	ReferenceNumber         string          `gorm:"size:100;not null;index" json:"reference_number"`
	RequestId               *int            `gorm:"index" json:"request_id"`
	Remarks                 *string         `gorm:"type:text" json:"remarks"`
	Status                  MovementStatus  `gorm:"type:enum('Posted','Reversed');not null;default:'Posted'" json:"status"`
	// Append-only reversal chain (no row is ever edited except the
	// reversed-by pointer on the original).
	IsReversal           bool                 `gorm:"not null;default:false;index" json:"is_reversal"`
	ReversesMovementId   *int                 `gorm:"index" json:"reverses_movement_id"`
	ReversedByMovementId *int                 `gorm:"index" json:"reversed_by_movement_id"`
	ReversalReason       *string              `gorm:"type:text" json:"reversal_reason"`
	ReversedAt           *time.Time           `gorm:"index" json:"reversed_at"`
	Items                []GoodsMovementItem  `gorm:"foreignKey:MovementId" json:"items"`
	CreatedByUserId      int                  `gorm:"index" json:"created_by_user_id"`
	CorrelationId        string               `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt            time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

type GoodsMovementItem struct {
	ID         int             `gorm:"primary_key" json:"id"`
	MovementId int             `gorm:"index;not null" json:"movement_id"`
	SpareId    int             `gorm:"index;not null" json:"spare_id"`
	Qty        decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty"`
	Condition  ItemCondition   `gorm:"type:enum('G','D');not null;default:'G'" json:"condition"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m *StockMovement) Source() LocationRef {
	return LocationRef{Type: m.SourceLocationType, Id: m.SourceLocationId}
}

func (m *StockMovement) Destination() LocationRef {
	return LocationRef{Type: m.DestinationLocationType, Id: m.DestinationLocationId}
}

// RecordMovement validates and persists a movement header plus its line items
// in the caller's transaction. The line-item sum must equal the header total;
// a mismatch is a data-integrity error, never silently corrected.
func RecordMovement(tx *gorm.DB, movement *StockMovement) (int, error) {
	if movement == nil {
		return 0, errors.New("movement is required")
	}
	if len(movement.Items) == 0 {
		return 0, errors.New("movement requires at least one line item")
	}
	lineTotal := decimal.Zero
	for _, item := range movement.Items {
		if !item.Qty.IsPositive() {
			return 0, errors.New("movement line quantity must be positive")
		}
		lineTotal = lineTotal.Add(item.Qty)
	}
	if !lineTotal.Equal(movement.TotalQty) {
		return 0, &LineItemMismatchError{
			Reference: movement.ReferenceNumber,
			HeaderQty: movement.TotalQty,
			LineTotal: lineTotal,
		}
	}
	if movement.Status == "" {
		movement.Status = MovementStatusPosted
	}
	if err := tx.Create(movement).Error; err != nil {
		return 0, err
	}
	return movement.ID, nil
}

// VoidMovement appends a reversing movement (source/destination swapped,
// same lines) referencing the original, and marks the original reversed.
// The original row's quantities are never touched.
func VoidMovement(tx *gorm.DB, movementId int, reason string) (int, error) {
	var original StockMovement
	if err := tx.Preload("Items").First(&original, movementId).Error; err != nil {
		return 0, utils.ErrorRecordNotFound
	}
	if original.ReversedByMovementId != nil {
		return 0, errors.New("movement already reversed")
	}

	items := make([]GoodsMovementItem, 0, len(original.Items))
	for _, item := range original.Items {
		items = append(items, GoodsMovementItem{
			SpareId:   item.SpareId,
			Qty:       item.Qty,
			Condition: item.Condition,
		})
	}
	reversal := StockMovement{
		MovementType:            MovementTypeReturn,
		SourceLocationType:      original.DestinationLocationType,
		SourceLocationId:        original.DestinationLocationId,
		DestinationLocationType: original.SourceLocationType,
		DestinationLocationId:   original.SourceLocationId,
		TotalQty:                original.TotalQty,
		ReferenceNumber:         original.ReferenceNumber,
		RequestId:               original.RequestId,
		IsReversal:              true,
		ReversesMovementId:      &original.ID,
		ReversalReason:          &reason,
		Items:                   items,
		CreatedByUserId:         original.CreatedByUserId,
		CorrelationId:           original.CorrelationId,
	}
	reversalId, err := RecordMovement(tx, &reversal)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	err = tx.Model(&StockMovement{}).Where("id = ?", original.ID).Updates(map[string]interface{}{
		"status":                  MovementStatusReversed,
		"reversed_by_movement_id": reversalId,
		"reversed_at":             now,
	}).Error
	if err != nil {
		return 0, err
	}
	return reversalId, nil
}

func GetStockMovement(ctx context.Context, id int) (*StockMovement, error) {
	return utils.FetchModel[StockMovement](ctx, id, "Items")
}

func GetStockMovementsByReference(ctx context.Context, referenceNumber string) ([]*StockMovement, error) {
	db := config.GetDB()
	var movements []*StockMovement
	err := db.WithContext(ctx).Preload("Items").
		Where("reference_number = ?", referenceNumber).
		Order("id").Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func GetStockMovementsByRequest(ctx context.Context, requestId int) ([]*StockMovement, error) {
	db := config.GetDB()
	var movements []*StockMovement
	err := db.WithContext(ctx).Preload("Items").
		Where("request_id = ?", requestId).
		Order("id").Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
