package reports

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
)

// InventoryOnHandRow is one line of the on-hand report: a spare's buckets at
// one location, joined to catalog data for display.
type InventoryOnHandRow struct {
	SpareId      int                 `json:"spare_id"`
	PartCode     string              `json:"part_code"`
	Description  string              `json:"description"`
	Brand        string              `json:"brand"`
	LocationType models.LocationType `json:"location_type"`
	LocationId   int                 `json:"location_id"`
	QtyGood      decimal.Decimal     `json:"qty_good"`
	QtyDefective decimal.Decimal     `json:"qty_defective"`
	QtyInTransit decimal.Decimal     `json:"qty_in_transit"`
}

// InventoryOnHand lists current bucket quantities, optionally scoped to one
// location. Rows with all-zero buckets are kept: a record exists because
// stock moved through it, which the report reader wants to see.
func InventoryOnHand(ctx context.Context, loc *models.LocationRef) ([]*InventoryOnHandRow, error) {
	db := config.GetDB()
	query := db.WithContext(ctx).
		Table("inventory_records AS ir").
		Select(`ir.spare_id, sp.part_code, sp.description, sp.brand,
			ir.location_type, ir.location_id,
			ir.qty_good, ir.qty_defective, ir.qty_in_transit`).
		Joins("JOIN spare_parts sp ON sp.id = ir.spare_id")
	if loc != nil {
		query = query.Where("ir.location_type = ? AND ir.location_id = ?", loc.Type, loc.Id)
	}

	var rows []*InventoryOnHandRow
	if err := query.Order("ir.location_type, ir.location_id, sp.part_code").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
