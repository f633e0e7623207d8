package models

import (
	"log"

	"github.com/svcops/spareparts_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&SparePart{},
		&PlantAssignment{},
		&InventoryRecord{},
		&StockMovement{}, &GoodsMovementItem{},
		&SpareRequest{}, &SpareRequestItem{},
		&Approval{}, &ApprovalItemQty{},
		&RequestStatusHistory{},
		&DocumentNumberSeries{},
		&MinimumStockLevel{},
		&OutboxEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
