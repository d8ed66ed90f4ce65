package account

import (
	"time"

	"account-service/internal/domain"
)

// AccountModel 表结构；DeletedAt 是业务软删时间，不用 gorm.DeletedAt，否则查询会被自动过滤
type AccountModel struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)"`
	Email        string     `gorm:"uniqueIndex;size:191;not null"`
	Name         string     `gorm:"size:64;not null"`
	PasswordHash string     `gorm:"size:100;not null"`
	Role         string     `gorm:"size:16;not null;default:user"`
	Status       string     `gorm:"size:16;not null;index"`
	RegisteredAt time.Time  `gorm:"not null"`
	DeletedAt    *time.Time `gorm:"column:deleted_at"`
	UpdatedAt    time.Time  `gorm:"not null;autoUpdateTime:false"`
}

func (AccountModel) TableName() string { return "accounts" }

func FromDomain(a *domain.Account) AccountModel {
	return AccountModel{
		ID:           a.ID,
		Email:        a.Email,
		Name:         a.Name,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		Status:       string(a.Status),
		RegisteredAt: a.RegisteredAt.UTC(),
		DeletedAt:    utcPtr(a.DeletedAt),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (m AccountModel) ToDomain() *domain.Account {
	return &domain.Account{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         m.Role,
		Status:       domain.AccountStatus(m.Status),
		RegisteredAt: m.RegisteredAt.UTC(),
		DeletedAt:    utcPtr(m.DeletedAt),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
