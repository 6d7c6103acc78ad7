package db

import (
	"tradesim/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.Account{},
		&models.Trade{},
		&models.Override{},
		&models.PolicyState{},
		&models.PayoutTier{},
		&models.AuditLog{},
		&models.SystemSetting{},
	)
}
