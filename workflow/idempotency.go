package workflow

import (
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/svcops/spareparts_backend/models"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// BeginIdempotency claims (handlerName, messageId) for this invocation.
// Returns skip=true when a previous invocation already succeeded, or when
// another worker holds a fresh STARTED claim. A stale STARTED claim (older
// than retryAfter) or a FAILED one is taken over.
func BeginIdempotency(tx *gorm.DB, handlerName, messageId string, retryAfter time.Duration) (skip bool, err error) {
	record := models.IdempotencyKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	err = tx.Create(&record).Error
	if err == nil {
		return false, nil
	}
	if !isDuplicateKeyErr(err) {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}

	var existing models.IdempotencyKey
	err = tx.Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		First(&existing).Error
	if err != nil {
		return false, fmt.Errorf("load idempotency key: %w", err)
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		if time.Since(existing.UpdatedAt) < retryAfter {
			return true, nil
		}
	}

	// Take over a failed or stale claim.
	result := tx.Model(&models.IdempotencyKey{}).
		Where("id = ? AND status = ? AND updated_at = ?", existing.ID, existing.Status, existing.UpdatedAt).
		Update("status", models.IdempotencyStatusStarted)
	if result.Error != nil {
		return false, fmt.Errorf("reclaim idempotency key: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race to another worker.
		return true, nil
	}
	return false, nil
}

func MarkIdempotencySucceeded(tx *gorm.DB, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Update("status", models.IdempotencyStatusSucceeded).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, handlerName, messageId, errMsg string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(map[string]interface{}{
			"status":     models.IdempotencyStatusFailed,
			"last_error": errMsg,
		}).Error
}
