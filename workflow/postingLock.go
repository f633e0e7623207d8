package workflow

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/svcops/spareparts_backend/models"
)

// MySQL advisory lock serializing maintenance postings (reconciliation) per
// location. NOTE: GET_LOCK is connection-scoped, so this must be called on
// the same *gorm.DB session that runs the posting statements.
func AcquireLocationPostingLock(tx *gorm.DB, loc models.LocationRef) error {
	lockName := fmt.Sprintf("reconcile:%s:%d", loc.Type, loc.Id)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("%w: reconcile lock for %s", ErrContention, loc.String())
	}
	return nil
}

func ReleaseLocationPostingLock(tx *gorm.DB, loc models.LocationRef) {
	lockName := fmt.Sprintf("reconcile:%s:%d", loc.Type, loc.Id)
	var _ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
