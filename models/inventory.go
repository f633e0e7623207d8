package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/svcops/spareparts_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InventoryRecord is one bucketed ledger row per (spare, location type,
// location id). Rows are created lazily on first credit. All three buckets
// must stay >= 0; a debit below zero fails instead of clamping.
//
// Mutation entry points (CreditInventory / DebitInventory / MoveInventory)
// are called only from the workflow package inside its posting transaction.
// Request-handling code never touches this table directly, which is what
// prevents a re-run approval from re-crediting stock.
type InventoryRecord struct {
	ID           int             `gorm:"primary_key" json:"id"`
	SpareId      int             `gorm:"not null;index:uniq_inventory_key,unique" json:"spare_id"`
	LocationType LocationType    `gorm:"type:enum('PL','SC','TN','BR','WH','SP','CU');not null;index:uniq_inventory_key,unique" json:"location_type"`
	LocationId   int             `gorm:"not null;index:uniq_inventory_key,unique" json:"location_id"`
	QtyGood      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty_good"`
	QtyDefective decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty_defective"`
	QtyInTransit decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"qty_in_transit"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *InventoryRecord) BucketQty(bucket InventoryBucket) decimal.Decimal {
	switch bucket {
	case BucketDefective:
		return r.QtyDefective
	case BucketInTransit:
		return r.QtyInTransit
	default:
		return r.QtyGood
	}
}

func bucketColumn(bucket InventoryBucket) (string, error) {
	switch bucket {
	case BucketGood:
		return "qty_good", nil
	case BucketDefective:
		return "qty_defective", nil
	case BucketInTransit:
		return "qty_in_transit", nil
	}
	return "", fmt.Errorf("invalid inventory bucket %q", string(bucket))
}

// GetBucketQty returns the current quantity of one bucket. An absent record
// reads as zero, not as an error.
func GetBucketQty(ctx context.Context, spareId int, loc LocationRef, bucket InventoryBucket) (decimal.Decimal, error) {
	if _, err := bucketColumn(bucket); err != nil {
		return decimal.Zero, err
	}
	db := config.GetDB()
	var record InventoryRecord
	err := db.WithContext(ctx).
		Where("spare_id = ? AND location_type = ? AND location_id = ?", spareId, loc.Type, loc.Id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return record.BucketQty(bucket), nil
}

// GetInventorySnapshot returns all three buckets for the key; zeroes when the
// record does not exist yet.
func GetInventorySnapshot(ctx context.Context, spareId int, loc LocationRef) (*InventoryRecord, error) {
	db := config.GetDB()
	var record InventoryRecord
	err := db.WithContext(ctx).
		Where("spare_id = ? AND location_type = ? AND location_id = ?", spareId, loc.Type, loc.Id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &InventoryRecord{
				SpareId:      spareId,
				LocationType: loc.Type,
				LocationId:   loc.Id,
				QtyGood:      decimal.Zero,
				QtyDefective: decimal.Zero,
				QtyInTransit: decimal.Zero,
			}, nil
		}
		return nil, err
	}
	return &record, nil
}

// GetInventorySnapshotForUpdate is the transactional variant: the row is
// fetched (or lazily created) under a row lock so the caller can apply
// corrections against a stable reading.
func GetInventorySnapshotForUpdate(tx *gorm.DB, spareId int, loc LocationRef) (*InventoryRecord, error) {
	return lockInventoryRecord(tx, spareId, loc)
}

// lockInventoryRecord fetches (or lazily creates) the ledger row under a
// row-level lock. Two concurrent fulfillments against the same key serialize
// here, so both cannot pass the insufficient-stock check.
func lockInventoryRecord(tx *gorm.DB, spareId int, loc LocationRef) (*InventoryRecord, error) {
	record := InventoryRecord{
		SpareId:      spareId,
		LocationType: loc.Type,
		LocationId:   loc.Id,
	}
	result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("spare_id = ? AND location_type = ? AND location_id = ?", spareId, loc.Type, loc.Id).
		FirstOrCreate(&record)
	if result.Error != nil {
		// Two transactions can race to create the first row for a key: both
		// miss the locked read, one wins the insert, the loser gets 1062.
		// The row exists now, so lock the winner's row instead of failing.
		if isInventoryKeyCollision(result.Error) {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("spare_id = ? AND location_type = ? AND location_id = ?", spareId, loc.Type, loc.Id).
				First(&record).Error
			if err != nil {
				return nil, err
			}
			return &record, nil
		}
		return nil, result.Error
	}
	return &record, nil
}

func isInventoryKeyCollision(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// CreditInventory adds qty (> 0) to one bucket, creating the record if absent.
// Must run inside the caller's posting transaction.
func CreditInventory(tx *gorm.DB, spareId int, loc LocationRef, bucket InventoryBucket, qty decimal.Decimal) error {
	column, err := bucketColumn(bucket)
	if err != nil {
		return err
	}
	if !qty.IsPositive() {
		return fmt.Errorf("credit quantity must be positive, got %s", qty.String())
	}
	record, err := lockInventoryRecord(tx, spareId, loc)
	if err != nil {
		return err
	}
	return tx.Exec("UPDATE inventory_records SET "+column+" = "+column+" + ? WHERE id = ?", qty, record.ID).Error
}

// DebitInventory removes qty (> 0) from one bucket. Fails with
// InsufficientStockError when the bucket holds less than requested; it never
// clamps to zero.
func DebitInventory(tx *gorm.DB, spareId int, loc LocationRef, bucket InventoryBucket, qty decimal.Decimal) error {
	column, err := bucketColumn(bucket)
	if err != nil {
		return err
	}
	if !qty.IsPositive() {
		return fmt.Errorf("debit quantity must be positive, got %s", qty.String())
	}
	record, err := lockInventoryRecord(tx, spareId, loc)
	if err != nil {
		return err
	}
	have := record.BucketQty(bucket)
	if have.LessThan(qty) {
		return &InsufficientStockError{
			SpareId:      spareId,
			LocationType: loc.Type,
			LocationId:   loc.Id,
			Bucket:       bucket,
			Have:         have,
			Want:         qty,
		}
	}
	return tx.Exec("UPDATE inventory_records SET "+column+" = "+column+" - ? WHERE id = ?", qty, record.ID).Error
}

// MoveInventory is a composed debit+credit inside the caller's transaction:
// either both land or the transaction rolls back. Keys are locked in a
// deterministic order to avoid lock-order deadlocks between concurrent moves.
func MoveInventory(tx *gorm.DB, spareId int, from LocationRef, fromBucket InventoryBucket, to LocationRef, toBucket InventoryBucket, qty decimal.Decimal) error {
	first, second := from, to
	if lockAfter(from, to) {
		first, second = to, from
	}
	if _, err := lockInventoryRecord(tx, spareId, first); err != nil {
		return err
	}
	if _, err := lockInventoryRecord(tx, spareId, second); err != nil {
		return err
	}
	if err := DebitInventory(tx, spareId, from, fromBucket, qty); err != nil {
		return err
	}
	return CreditInventory(tx, spareId, to, toBucket, qty)
}

func lockAfter(a, b LocationRef) bool {
	if a.Type != b.Type {
		return a.Type > b.Type
	}
	return a.Id > b.Id
}
