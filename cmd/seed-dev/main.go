package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/utils"
	"github.com/svcops/spareparts_backend/workflow"
)

// Seeds a development database: a small spare-part catalog, one plant
// assignment per service center, minimum stock levels, and opening stock
// posted through the reconcile workflow so even seed data leaves an audit
// trail.
func main() {
	userID := flag.Int("user-id", 1, "Acting user id for seeded audit rows")
	plantID := flag.Int("plant-id", 1, "Plant that sources the seeded service centers")
	serviceCenters := flag.Int("service-centers", 2, "Number of service centers to assign to the plant")
	openingQty := flag.Int("opening-qty", 100, "Opening good quantity per spare at the plant")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	models.MigrateTable()

	spares := []models.SparePart{
		{PartCode: "COMP-001", Description: "Compressor 1.5HP", Brand: "CoolTech"},
		{PartCode: "PCB-MAIN-01", Description: "Main control board", Brand: "CoolTech"},
		{PartCode: "FAN-BLADE-02", Description: "Outdoor fan blade", Brand: "AirMax"},
		{PartCode: "CAP-35UF", Description: "Run capacitor 35uF", Brand: "AirMax"},
		{PartCode: "FILT-HEPA-12", Description: "HEPA filter 12in", Brand: "PureFlow"},
	}
	for i := range spares {
		err := db.Where("part_code = ?", spares[i].PartCode).FirstOrCreate(&spares[i]).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed spare %s: %v\n", spares[i].PartCode, err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded %d spare parts\n", len(spares))

	now := time.Now().UTC()
	for sc := 1; sc <= *serviceCenters; sc++ {
		assignment := models.PlantAssignment{
			ServiceCenterId: sc,
			PlantId:         *plantID,
			EffectiveFrom:   now.AddDate(0, -1, 0),
		}
		err := db.Where("service_center_id = ? AND plant_id = ? AND effective_to IS NULL",
			sc, *plantID).FirstOrCreate(&assignment).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed plant assignment for SC %d: %v\n", sc, err)
			os.Exit(1)
		}
	}
	fmt.Printf("assigned %d service centers to plant %d\n", *serviceCenters, *plantID)

	threshold := decimal.NewFromInt(5)
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, spare := range spares {
			for sc := 1; sc <= *serviceCenters; sc++ {
				msl := models.MinimumStockLevel{
					SpareId:      spare.ID,
					LocationType: models.LocationTypeServiceCenter,
					LocationId:   sc,
					Threshold:    threshold,
				}
				err := tx.Where("spare_id = ? AND location_type = ? AND location_id = ?",
					spare.ID, models.LocationTypeServiceCenter, sc).FirstOrCreate(&msl).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed minimum stock levels: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("seeded minimum stock levels")

	ctx := utils.SetUserIdInContext(context.Background(), *userID)
	opening := decimal.NewFromInt(int64(*openingQty))
	for _, spare := range spares {
		result, err := workflow.ReconcileInventory(ctx, &workflow.ReconcileInput{
			SpareId:      spare.ID,
			LocationType: string(models.LocationTypePlant),
			LocationId:   *plantID,
			CountedGood:  opening,
			Remarks:      "dev seed opening stock",
			RequestKey:   fmt.Sprintf("seed-dev:%s:%d", spare.PartCode, *plantID),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "opening stock for %s: %v\n", spare.PartCode, err)
			os.Exit(1)
		}
		if result.Skipped || len(result.Deltas) == 0 {
			continue
		}
		fmt.Printf("opening stock %s x%s at plant %d\n", spare.PartCode, opening.String(), *plantID)
	}

	catalog, err := utils.FetchAllModels[models.SparePart](ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count catalog: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seed complete, catalog holds %d spare parts\n", len(catalog))
}
