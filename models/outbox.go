package models

import (
	"encoding/json"
	"time"

	"github.com/svcops/spareparts_backend/config"
	"gorm.io/gorm"
)

// OutboxEventRecord is written inside the posting transaction; a background
// dispatcher publishes it to Pub/Sub after commit. This keeps integration
// events exactly as durable as the ledger writes they describe.
type OutboxEventRecord struct {
	ID            int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	OccurredAt    time.Time           `gorm:"index;not null" json:"occurred_at"`
	ReferenceId   int                 `json:"reference_id"`
	ReferenceType OutboxReferenceType `gorm:"type:enum('MV','RQ')" json:"reference_type"`
	Action        OutboxAction        `gorm:"type:enum('C','U')" json:"action"`
	Payload       []byte              `gorm:"type:blob" json:"payload"`

	PublishStatus    OutboxPublishStatus `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// WriteOutboxEvent serializes the payload and stores the event in the
// caller's transaction.
func WriteOutboxEvent(tx *gorm.DB, refType OutboxReferenceType, refId int, action OutboxAction, payload any, correlationId string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := OutboxEventRecord{
		OccurredAt:    time.Now().UTC(),
		ReferenceId:   refId,
		ReferenceType: refType,
		Action:        action,
		Payload:       body,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationId,
	}
	return tx.Create(&record).Error
}

func ConvertToMovementEvent(record OutboxEventRecord) config.MovementEvent {
	return config.MovementEvent{
		ID:            record.ID,
		OccurredAt:    record.OccurredAt,
		ReferenceId:   record.ReferenceId,
		ReferenceType: string(record.ReferenceType),
		Action:        string(record.Action),
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
