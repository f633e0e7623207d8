package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/utils"
)

// SpareRequest is a transfer intent: move spare quantities from a source
// location to a destination location. Requests are never deleted; they only
// move through the status state machine, and every transition is recorded in
// request_status_histories.
type SpareRequest struct {
	ID                      int           `gorm:"primary_key" json:"id"`
	RequestNumber           string        `gorm:"size:100;not null;uniqueIndex" json:"request_number"`
	Kind                    RequestKind   `gorm:"type:enum('MSL','BULK','TECH_ISSUE','CONS_RETURN','CONS_FILLUP');not null" json:"kind"`
	SourceLocationType      LocationType  `gorm:"type:enum('PL','SC','TN','BR','WH','SP','CU');default:'PL'" json:"source_location_type"`
	SourceLocationId        int           `gorm:"not null;default:0" json:"source_location_id"`
	DestinationLocationType LocationType  `gorm:"type:enum('PL','SC','TN','BR','WH','SP','CU');not null" json:"destination_location_type"`
	DestinationLocationId   int           `gorm:"not null" json:"destination_location_id"`
	CurrentStatus           RequestStatus `gorm:"type:enum('Pending','Approved','Rejected','Allocated','Received','Verified','Cancelled');not null" json:"current_status"`
	RequestedByUserId       int           `gorm:"index;not null" json:"requested_by_user_id"`
	CallReference           *string       `gorm:"size:100;index" json:"call_reference"`
	ContactPhone            *string       `gorm:"size:50" json:"contact_phone"`
	// Frozen requests failed a fatal integrity check mid-fulfillment and wait
	// for manual review; no workflow advances them while frozen.
	IsFrozen     bool               `gorm:"not null;default:false" json:"is_frozen"`
	FrozenReason *string            `gorm:"type:text" json:"frozen_reason"`
	Items        []SpareRequestItem `gorm:"foreignKey:RequestId" json:"items"`
	CreatedAt    time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type SpareRequestItem struct {
	ID          int              `gorm:"primary_key" json:"id"`
	RequestId   int              `gorm:"index;not null" json:"request_id"`
	SpareId     int              `gorm:"index;not null" json:"spare_id"`
	RequestedQty decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"requested_qty"`
	// ApprovedQty stays NULL until the final approval level decides it.
	ApprovedQty          *decimal.Decimal `gorm:"type:decimal(20,4)" json:"approved_qty"`
	ReceivedQty          decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"received_qty"`
	VerifiedQty          decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"verified_qty"`
	VerifiedGoodQty      decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"verified_good_qty"`
	VerifiedDefectiveQty decimal.Decimal  `gorm:"type:decimal(20,4);not null;default:0" json:"verified_defective_qty"`
	CreatedAt            time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// CheckQtyChain enforces 0 <= verified <= received <= approved <= requested
// for every field that has been set.
func (item *SpareRequestItem) CheckQtyChain() error {
	if item.RequestedQty.IsNegative() {
		return fmt.Errorf("item %d: requested qty is negative", item.ID)
	}
	ceiling := item.RequestedQty
	if item.ApprovedQty != nil {
		if item.ApprovedQty.IsNegative() || item.ApprovedQty.GreaterThan(ceiling) {
			return fmt.Errorf("item %d: approved qty %s outside [0, %s]", item.ID, item.ApprovedQty.String(), ceiling.String())
		}
		ceiling = *item.ApprovedQty
	}
	if item.ReceivedQty.IsNegative() || item.ReceivedQty.GreaterThan(ceiling) {
		return fmt.Errorf("item %d: received qty %s outside [0, %s]", item.ID, item.ReceivedQty.String(), ceiling.String())
	}
	if item.VerifiedQty.IsNegative() || item.VerifiedQty.GreaterThan(item.ReceivedQty) {
		return fmt.Errorf("item %d: verified qty %s outside [0, %s]", item.ID, item.VerifiedQty.String(), item.ReceivedQty.String())
	}
	if !item.VerifiedGoodQty.Add(item.VerifiedDefectiveQty).Equal(item.VerifiedQty) {
		return fmt.Errorf("item %d: condition split does not sum to verified qty", item.ID)
	}
	return nil
}

func (r *SpareRequest) Destination() LocationRef {
	return LocationRef{Type: r.DestinationLocationType, Id: r.DestinationLocationId}
}

type NewSpareRequest struct {
	Kind               string `json:"kind" binding:"required"`
	SourceLocationType string `json:"source_location_type"`
	SourceLocationId   int    `json:"source_location_id"`
	// Destination may be omitted by callers with a session location; it then
	// defaults to the acting user's own location.
	DestinationLocationType string                `json:"destination_location_type"`
	DestinationLocationId   int                   `json:"destination_location_id"`
	CallReference           string                `json:"call_reference"`
	ContactPhone            string                `json:"contact_phone"`
	Items                   []NewSpareRequestItem `json:"items" binding:"required"`
}

type NewSpareRequestItem struct {
	SpareId      int             `json:"spare_id" binding:"required"`
	RequestedQty decimal.Decimal `json:"requested_qty" binding:"required"`
}

func (input *NewSpareRequest) validate(ctx context.Context) (RequestKind, LocationRef, LocationRef, error) {
	kind, err := ParseRequestKind(input.Kind)
	if err != nil {
		return "", LocationRef{}, LocationRef{}, err
	}
	// The approval chain for this kind must be configured (or explicitly
	// exempt) before any request of the kind is accepted.
	if _, err := config.RequiredApprovalLevels(string(kind)); err != nil {
		return "", LocationRef{}, LocationRef{}, err
	}

	if input.DestinationLocationType == "" && input.DestinationLocationId == 0 {
		if locType, locId, ok := utils.GetActorLocationFromContext(ctx); ok {
			input.DestinationLocationType = locType
			input.DestinationLocationId = locId
		}
	}
	destType, err := ParseLocationType(input.DestinationLocationType)
	if err != nil {
		return "", LocationRef{}, LocationRef{}, err
	}
	if input.DestinationLocationId <= 0 {
		return "", LocationRef{}, LocationRef{}, errors.New("destination location id is required")
	}
	destination := LocationRef{Type: destType, Id: input.DestinationLocationId}

	var source LocationRef
	if input.SourceLocationType != "" || input.SourceLocationId != 0 {
		srcType, err := ParseLocationType(input.SourceLocationType)
		if err != nil {
			return "", LocationRef{}, LocationRef{}, err
		}
		if input.SourceLocationId == 0 {
			return "", LocationRef{}, LocationRef{}, errors.New("source location id is required when source type is set")
		}
		source = LocationRef{Type: srcType, Id: input.SourceLocationId}
		if source == destination {
			return "", LocationRef{}, LocationRef{}, errors.New("source and destination cannot be the same location")
		}
	}

	if len(input.Items) == 0 {
		return "", LocationRef{}, LocationRef{}, errors.New("request requires at least one item")
	}
	for _, item := range input.Items {
		if !item.RequestedQty.IsPositive() {
			return "", LocationRef{}, LocationRef{}, errors.New("requested quantity must be positive")
		}
		if err := utils.ValidateResourceId[SparePart](ctx, item.SpareId); err != nil {
			return "", LocationRef{}, LocationRef{}, fmt.Errorf("spare part %d not found", item.SpareId)
		}
	}

	if input.ContactPhone != "" {
		if err := utils.ValidatePhoneNumber(input.ContactPhone, ""); err != nil {
			return "", LocationRef{}, LocationRef{}, err
		}
	}

	return kind, source, destination, nil
}

func CreateSpareRequest(ctx context.Context, input *NewSpareRequest) (*SpareRequest, error) {
	db := config.GetDB()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}

	kind, source, destination, err := input.validate(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]SpareRequestItem, 0, len(input.Items))
	for _, item := range input.Items {
		items = append(items, SpareRequestItem{
			SpareId:      item.SpareId,
			RequestedQty: item.RequestedQty,
		})
	}

	tx := db.Begin()

	requestNumber, err := NextDocumentNumber(tx, DocumentModuleSpareRequest)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	request := SpareRequest{
		RequestNumber:           requestNumber,
		Kind:                    kind,
		SourceLocationType:      source.Type,
		SourceLocationId:        source.Id,
		DestinationLocationType: destination.Type,
		DestinationLocationId:   destination.Id,
		CurrentStatus:           RequestStatusPending,
		RequestedByUserId:       userId,
		CallReference:           utils.NilIfEmpty(input.CallReference),
		ContactPhone:            utils.NilIfEmpty(input.ContactPhone),
		Items:                   items,
	}
	if source.IsZero() {
		// Source resolved at fulfillment time via plant assignment.
		request.SourceLocationType = LocationTypePlant
		request.SourceLocationId = 0
	}

	if err := tx.WithContext(ctx).Create(&request).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := AppendRequestStatusHistory(tx, request.ID, "", RequestStatusPending, userId, "request created"); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func GetSpareRequest(ctx context.Context, id int) (*SpareRequest, error) {
	return utils.FetchModel[SpareRequest](ctx, id, "Items")
}

// PaginateSpareRequests lists requests newest-first with keyset pagination
// (afterId = last seen id from the previous page).
func PaginateSpareRequests(ctx context.Context, limit int, afterId int, status *RequestStatus, kind *RequestKind) ([]*SpareRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Preload("Items").Order("id DESC").Limit(limit)
	if afterId > 0 {
		dbCtx = dbCtx.Where("id < ?", afterId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	if kind != nil {
		dbCtx = dbCtx.Where("kind = ?", *kind)
	}
	var requests []*SpareRequest
	if err := dbCtx.Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}
