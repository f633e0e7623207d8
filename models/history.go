package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// RequestStatusHistory is the append-only audit trail of request transitions.
type RequestStatusHistory struct {
	ID         int           `gorm:"primary_key" json:"id"`
	RequestId  int           `gorm:"index;not null" json:"request_id"`
	FromStatus RequestStatus `gorm:"size:20" json:"from_status"`
	ToStatus   RequestStatus `gorm:"size:20;not null" json:"to_status"`
	UserId     int           `gorm:"not null" json:"user_id"`
	Remarks    string        `gorm:"type:text" json:"remarks"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func AppendRequestStatusHistory(tx *gorm.DB, requestId int, from, to RequestStatus, userId int, remarks string) error {
	history := RequestStatusHistory{
		RequestId:  requestId,
		FromStatus: from,
		ToStatus:   to,
		UserId:     userId,
		Remarks:    remarks,
	}
	return tx.Create(&history).Error
}

// TransitionRequestStatus validates the edge against the transition table,
// updates the request row and appends the audit record. The request struct is
// mutated to the new status on success.
func TransitionRequestStatus(tx *gorm.DB, request *SpareRequest, to RequestStatus, userId int, remarks string) error {
	from := request.CurrentStatus
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid request transition %s -> %s", from, to)
	}
	if request.IsFrozen {
		return fmt.Errorf("request %d is frozen pending manual review", request.ID)
	}
	if err := tx.Model(&SpareRequest{}).Where("id = ?", request.ID).
		Update("current_status", to).Error; err != nil {
		return err
	}
	if err := AppendRequestStatusHistory(tx, request.ID, from, to, userId, remarks); err != nil {
		return err
	}
	request.CurrentStatus = to
	return nil
}

// FreezeRequest marks a request for manual review after a fatal integrity
// error. Frozen requests are excluded from all workflow advancement.
func FreezeRequest(tx *gorm.DB, requestId int, reason string) error {
	return tx.Model(&SpareRequest{}).Where("id = ?", requestId).Updates(map[string]interface{}{
		"is_frozen":     true,
		"frozen_reason": &reason,
	}).Error
}

func GetRequestStatusHistory(tx *gorm.DB, requestId int) ([]*RequestStatusHistory, error) {
	var histories []*RequestStatusHistory
	err := tx.Where("request_id = ?", requestId).Order("id").Find(&histories).Error
	if err != nil {
		return nil, err
	}
	return histories, nil
}
