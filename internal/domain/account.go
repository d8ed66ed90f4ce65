package domain

import (
	"context"
	"time"
)

type AccountStatus string

const (
	StatusNew     AccountStatus = "new"
	StatusActive  AccountStatus = "active"
	StatusDeleted AccountStatus = "deleted"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusNew, StatusActive, StatusDeleted:
		return true
	}
	return false
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 允许的状态迁移；purge 不是状态，由 sweeper 直接删除记录
var transitions = map[AccountStatus]map[AccountStatus]struct{}{
	StatusNew:     {StatusActive: {}},
	StatusActive:  {StatusDeleted: {}},
	StatusDeleted: {StatusActive: {}},
}

func CanTransition(from, to AccountStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

type Account struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	PasswordHash string        `json:"-"`
	Role         string        `json:"role"`
	Status       AccountStatus `json:"status"`
	RegisteredAt time.Time     `json:"registeredAt"`
	DeletedAt    *time.Time    `json:"deletedAt,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// AnonymousAccount 未登录时 /me 返回的占位
func AnonymousAccount() *Account {
	return &Account{Name: "Anonymous"}
}

func (a *Account) IsAnonymous() bool { return a.ID == "" }

func (a *Account) IsNew() bool     { return a.Status == StatusNew }
func (a *Account) IsActive() bool  { return a.Status == StatusActive }
func (a *Account) IsDeleted() bool { return a.Status == StatusDeleted }

// ListQuery 管理端分页查询；Status 为空表示全部
type ListQuery struct {
	Status AccountStatus
	Offset int
	Limit  int
}

// AccountRepository 查询类方法在记录不存在时返回 (nil, nil)
type AccountRepository interface {
	FindByID(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, a *Account) error
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, a *Account) error
	FindByStatus(ctx context.Context, status AccountStatus) ([]Account, error)
	List(ctx context.Context, q ListQuery) ([]Account, int64, error)
}
