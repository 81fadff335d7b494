package database

import (
	"fmt"

	"gorm.io/gorm"

	"ble-bridge/repositories/interfaces"
)

// InventoryUnitOfWork runs a group of inventory writes as one transaction.
// The device repository handed to fn must only be used with the given tx.
type InventoryUnitOfWork interface {
	Do(fn func(tx *gorm.DB, devices interfaces.DeviceRepositoryInterface) error) error
}

type inventoryUnitOfWork struct {
	begin   func() *gorm.DB
	devices interfaces.DeviceRepositoryInterface
}

func NewInventoryUnitOfWork(db *gorm.DB, devices interfaces.DeviceRepositoryInterface) InventoryUnitOfWork {
	return &inventoryUnitOfWork{
		begin:   func() *gorm.DB { return db.Begin() },
		devices: devices,
	}
}

// Do commits when fn succeeds and rolls back when it fails or panics.
func (uow *inventoryUnitOfWork) Do(fn func(tx *gorm.DB, devices interfaces.DeviceRepositoryInterface) error) error {
	tx := uow.begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin inventory transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			rollback(tx)
			panic(r)
		}
	}()

	if err := fn(tx, uow.devices); err != nil {
		rollback(tx)
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit inventory transaction: %w", err)
	}
	return nil
}

// rollback skips transactions that already failed.
func rollback(tx *gorm.DB) {
	if tx.Error == nil {
		tx.Rollback()
	}
}
