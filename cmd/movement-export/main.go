package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
)

type movementRow struct {
	MovementId      int       `gorm:"column:movement_id"`
	ReferenceNumber string    `gorm:"column:reference_number"`
	MovementType    string    `gorm:"column:movement_type"`
	Status          string    `gorm:"column:status"`
	IsReversal      bool      `gorm:"column:is_reversal"`
	SourceType      string    `gorm:"column:source_type"`
	SourceId        int       `gorm:"column:source_id"`
	DestType        string    `gorm:"column:dest_type"`
	DestId          int       `gorm:"column:dest_id"`
	PartCode        string    `gorm:"column:part_code"`
	Qty             string    `gorm:"column:qty"`
	Condition       string    `gorm:"column:item_condition"`
	CreatedAt       time.Time `gorm:"column:created_at"`
}

// Exports posted stock movements (one row per line item) to an xlsx file for
// offline audit.
func main() {
	fromStr := flag.String("from", "", "Optional: start date (YYYY-MM-DD)")
	toStr := flag.String("to", "", "Optional: end date inclusive (YYYY-MM-DD)")
	typeStr := flag.String("type", "", "Optional: movement type filter (issue/return/transfer/adjustment)")
	condStr := flag.String("condition", "", "Optional: line condition filter (good/defective)")
	outPath := flag.String("out", "movements.xlsx", "Output file path")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	sql := `
SELECT
    m.id AS movement_id,
    m.reference_number,
    m.movement_type,
    m.status,
    m.is_reversal,
    m.source_location_type AS source_type,
    m.source_location_id AS source_id,
    m.destination_location_type AS dest_type,
    m.destination_location_id AS dest_id,
    sp.part_code,
    i.qty,
    i.` + "`condition`" + ` AS item_condition,
    m.created_at
FROM stock_movements m
JOIN goods_movement_items i ON i.movement_id = m.id
LEFT JOIN spare_parts sp ON sp.id = i.spare_id
`
	var conditions []string
	var args []interface{}
	if strings.TrimSpace(*fromStr) != "" {
		from, err := time.Parse("2006-01-02", strings.TrimSpace(*fromStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid from date: %v\n", err)
			os.Exit(1)
		}
		conditions = append(conditions, "m.created_at >= ?")
		args = append(args, from)
	}
	if strings.TrimSpace(*toStr) != "" {
		to, err := time.Parse("2006-01-02", strings.TrimSpace(*toStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid to date: %v\n", err)
			os.Exit(1)
		}
		conditions = append(conditions, "m.created_at < ?")
		args = append(args, to.AddDate(0, 0, 1))
	}
	if strings.TrimSpace(*typeStr) != "" {
		movementType, err := models.ParseMovementType(*typeStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		conditions = append(conditions, "m.movement_type = ?")
		args = append(args, movementType)
	}
	if strings.TrimSpace(*condStr) != "" {
		condition, err := models.ParseItemCondition(*condStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		conditions = append(conditions, "i.`condition` = ?")
		args = append(args, condition)
	}
	if len(conditions) > 0 {
		sql += " WHERE " + strings.Join(conditions, " AND ")
	}
	sql += " ORDER BY m.id, i.id"

	var rows []movementRow
	if err := db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
		os.Exit(1)
	}

	f := excelize.NewFile()
	headers := []string{"MovementId", "Reference", "Type", "Status", "IsReversal",
		"Source", "Destination", "PartCode", "Qty", "Condition", "CreatedAt"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue("Sheet1", cell, header)
	}
	for i, row := range rows {
		source := models.LocationRef{Type: models.LocationType(row.SourceType), Id: row.SourceId}
		dest := models.LocationRef{Type: models.LocationType(row.DestType), Id: row.DestId}
		values := []interface{}{
			row.MovementId, row.ReferenceNumber, row.MovementType, row.Status, row.IsReversal,
			source.String(), dest.String(), row.PartCode, row.Qty, row.Condition,
			row.CreatedAt.Format(time.RFC3339),
		}
		for j, value := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			f.SetCellValue("Sheet1", cell, value)
		}
	}

	if err := f.SaveAs(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("exported %d movement lines to %s\n", len(rows), *outPath)
}
