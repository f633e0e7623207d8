package models

import (
	"context"
	"time"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/utils"
)

// SparePart is catalog reference data owned by the catalog collaborator.
// This core reads and references it; it never mutates the catalog.
type SparePart struct {
	ID          int       `gorm:"primary_key" json:"id"`
	PartCode    string    `gorm:"size:100;not null;uniqueIndex" json:"part_code"`
	Description string    `gorm:"size:255" json:"description"`
	Brand       string    `gorm:"size:100;index" json:"brand"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetSparePart(ctx context.Context, id int) (*SparePart, error) {
	return utils.FetchModel[SparePart](ctx, id)
}

func GetSparePartByCode(ctx context.Context, partCode string) (*SparePart, error) {
	db := config.GetDB()
	var part SparePart
	if err := db.WithContext(ctx).Where("part_code = ?", partCode).First(&part).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &part, nil
}

func SearchSpareParts(ctx context.Context, keyword string) ([]*SparePart, error) {
	db := config.GetDB()
	var parts []*SparePart
	dbCtx := db.WithContext(ctx)
	if keyword != "" {
		like := "%" + keyword + "%"
		dbCtx = dbCtx.Where("part_code LIKE ? OR description LIKE ?", like, like)
	}
	if err := dbCtx.Order("part_code").Limit(config.SearchLimit).Find(&parts).Error; err != nil {
		return nil, err
	}
	return parts, nil
}
