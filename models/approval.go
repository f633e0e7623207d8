package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Approval is one decided level for a request. The unique index on
// (request_id, level) makes duplicate submissions detectable at the store,
// not just in application code.
type Approval struct {
	ID               int              `gorm:"primary_key" json:"id"`
	RequestId        int              `gorm:"not null;index:uniq_request_level,unique" json:"request_id"`
	Level            int              `gorm:"not null;index:uniq_request_level,unique" json:"level"`
	Role             string           `gorm:"size:50;not null" json:"role"`
	ApproverUserId   int              `gorm:"not null" json:"approver_user_id"`
	Decision         ApprovalDecision `gorm:"type:enum('Approved','Rejected');not null" json:"decision"`
	Remarks          string           `gorm:"type:text" json:"remarks"`
	DecidedAt        time.Time        `gorm:"not null" json:"decided_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ApprovalItemQty records the per-item quantity an approver granted at the
// final level; it is applied onto the request items when the request
// transitions to Approved.
type ApprovalItemQty struct {
	ID          int             `gorm:"primary_key" json:"id"`
	ApprovalId  int             `gorm:"index;not null" json:"approval_id"`
	ItemId      int             `gorm:"index;not null" json:"item_id"`
	ApprovedQty decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"approved_qty"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func GetApprovalsForRequest(tx *gorm.DB, requestId int) ([]*Approval, error) {
	var approvals []*Approval
	err := tx.Where("request_id = ?", requestId).Order("level").Find(&approvals).Error
	if err != nil {
		return nil, err
	}
	return approvals, nil
}

func GetApprovalForLevel(tx *gorm.DB, requestId int, level int) (*Approval, error) {
	var approval Approval
	err := tx.Where("request_id = ? AND level = ?", requestId, level).First(&approval).Error
	if err != nil {
		return nil, err
	}
	return &approval, nil
}
