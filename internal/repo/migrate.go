package repo

import (
	"gorm.io/gorm"

	"account-service/internal/feature/account"
)

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&account.AccountModel{})
}
