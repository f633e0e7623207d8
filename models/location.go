package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// LocationRef identifies a stock-holding party. Locations themselves (plants,
// service centers, technicians...) are owned by other collaborators; this core
// only references them by (type, id).
type LocationRef struct {
	Type LocationType `json:"location_type"`
	Id   int          `json:"location_id"`
}

func (l LocationRef) String() string {
	return fmt.Sprintf("%s/%d", l.Type.Name(), l.Id)
}

func (l LocationRef) IsZero() bool {
	return l.Type == "" || l.Id == 0
}

// PlantAssignment maps a service center to the plant currently sourcing it.
// Requests created without an explicit source resolve through this table
// exactly once, at fulfillment time.
type PlantAssignment struct {
	ID              int        `gorm:"primary_key" json:"id"`
	ServiceCenterId int        `gorm:"index;not null" json:"service_center_id"`
	PlantId         int        `gorm:"not null" json:"plant_id"`
	EffectiveFrom   time.Time  `gorm:"not null" json:"effective_from"`
	EffectiveTo     *time.Time `json:"effective_to"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// ResolveSourceLocation returns the request's effective source. An explicit
// source on the request wins; otherwise the destination service center's
// current plant assignment is looked up. The result is resolved once and
// passed through the orchestrator, never re-derived mid-pipeline.
func ResolveSourceLocation(tx *gorm.DB, request *SpareRequest) (LocationRef, error) {
	if request == nil {
		return LocationRef{}, errors.New("request is required")
	}
	if request.SourceLocationId != 0 {
		return LocationRef{Type: request.SourceLocationType, Id: request.SourceLocationId}, nil
	}
	if request.DestinationLocationType != LocationTypeServiceCenter {
		return LocationRef{}, fmt.Errorf("request %d has no source and destination %s is not a service center",
			request.ID, request.DestinationLocationType.Name())
	}

	now := time.Now().UTC()
	var assignment PlantAssignment
	err := tx.
		Where("service_center_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)",
			request.DestinationLocationId, now, now).
		Order("effective_from DESC").
		First(&assignment).Error
	if err != nil {
		return LocationRef{}, fmt.Errorf("no plant assignment for service center %d", request.DestinationLocationId)
	}
	return LocationRef{Type: LocationTypePlant, Id: assignment.PlantId}, nil
}
