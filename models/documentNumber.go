package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentNumberSeries is the single source of truth for movement and request
// reference numbers. References are always allocated here at posting time;
// caller-supplied reference numbers on the fulfillment path are rejected as
// validation errors.
type DocumentNumberSeries struct {
	ID         int       `gorm:"primary_key" json:"id"`
	ModuleName string    `gorm:"size:100;not null;uniqueIndex" json:"module_name"`
	Prefix     string    `gorm:"size:10;not null" json:"prefix"`
	NextNumber int       `gorm:"not null;default:1" json:"next_number"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	DocumentModuleSpareRequest  = "SPARE_REQUEST"
	DocumentModuleDeliveryNote  = "DELIVERY_NOTE"
	DocumentModuleAdjustment    = "ADJUSTMENT"
)

var defaultSeriesPrefixes = map[string]string{
	DocumentModuleSpareRequest: "SR",
	DocumentModuleDeliveryNote: "DN",
	DocumentModuleAdjustment:   "ADJ",
}

// NextDocumentNumber allocates the next reference for a module under a row
// lock, so two concurrent fulfillments never share a DN number. Must run in
// the caller's transaction.
func NextDocumentNumber(tx *gorm.DB, moduleName string) (string, error) {
	prefix, ok := defaultSeriesPrefixes[moduleName]
	if !ok {
		return "", fmt.Errorf("unknown document number module %q", moduleName)
	}
	series := DocumentNumberSeries{
		ModuleName: moduleName,
		Prefix:     prefix,
		NextNumber: 1,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("module_name = ?", moduleName).
		FirstOrCreate(&series)
	if result.Error != nil {
		return "", result.Error
	}

	number := fmt.Sprintf("%s-%06d", series.Prefix, series.NextNumber)
	err := tx.Model(&DocumentNumberSeries{}).Where("id = ?", series.ID).
		Update("next_number", gorm.Expr("next_number + 1")).Error
	if err != nil {
		return "", err
	}
	return number, nil
}
