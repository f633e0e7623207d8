package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/svcops/spareparts_backend/config"
)

// MinimumStockLevel is the threshold that classifies a replenishment request
// as kind "msl": when a location's good stock is at or below the threshold.
type MinimumStockLevel struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SpareId      int             `gorm:"not null;index:uniq_msl_key,unique" json:"spare_id"`
	LocationType LocationType    `gorm:"type:enum('PL','SC','TN','BR','WH','SP','CU');not null;index:uniq_msl_key,unique" json:"location_type"`
	LocationId   int             `gorm:"not null;index:uniq_msl_key,unique" json:"location_id"`
	Threshold    decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"threshold"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type MslBreach struct {
	SpareId      int             `json:"spare_id"`
	LocationType LocationType    `json:"location_type"`
	LocationId   int             `json:"location_id"`
	Threshold    decimal.Decimal `json:"threshold"`
	QtyGood      decimal.Decimal `json:"qty_good"`
}

// CheckMslBreaches lists spares whose good stock sits at or below the
// configured minimum, optionally filtered to one location.
func CheckMslBreaches(ctx context.Context, loc *LocationRef) ([]*MslBreach, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).
		Table("minimum_stock_levels AS msl").
		Select(`msl.spare_id, msl.location_type, msl.location_id, msl.threshold,
			COALESCE(ir.qty_good, 0) AS qty_good`).
		Joins(`LEFT JOIN inventory_records ir
			ON ir.spare_id = msl.spare_id
			AND ir.location_type = msl.location_type
			AND ir.location_id = msl.location_id`).
		Where("COALESCE(ir.qty_good, 0) <= msl.threshold")
	if loc != nil {
		query = query.Where("msl.location_type = ? AND msl.location_id = ?", loc.Type, loc.Id)
	}

	var breaches []*MslBreach
	if err := query.Order("msl.spare_id").Scan(&breaches).Error; err != nil {
		return nil, err
	}
	return breaches, nil
}
