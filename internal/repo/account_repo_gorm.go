package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"account-service/internal/domain"
	"account-service/internal/feature/account"
)

type AccountRepo struct{ db *gorm.DB }

func NewAccountRepo(db *gorm.DB) *AccountRepo { return &AccountRepo{db: db} }

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	m := account.FromDomain(a)
	err := r.db.WithContext(ctx).Create(&m).Error
	// 唯一索引兜底：并发注册同一邮箱
	if err != nil && isDupKey(err) {
		return domain.Wrap(domain.KindDuplicateEmail, err)
	}
	return err
}

func (r *AccountRepo) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *AccountRepo) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *AccountRepo) first(ctx context.Context, query string, arg any) (*domain.Account, error) {
	var m account.AccountModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m.ToDomain(), nil
}

func (r *AccountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&account.AccountModel{}).Where("email = ?", email).Count(&n).Error
	return n > 0, err
}

// Update 整行覆盖（last-writer-wins）；Select("*") 保证 nil 的 deleted_at 也会写回。
// 记录已被 sweeper 删除时静默无操作
func (r *AccountRepo) Update(ctx context.Context, a *domain.Account) error {
	m := account.FromDomain(a)
	return r.db.WithContext(ctx).Model(&account.AccountModel{ID: m.ID}).Select("*").Omit("id").Updates(&m).Error
}

func (r *AccountRepo) Delete(ctx context.Context, a *domain.Account) error {
	return r.db.WithContext(ctx).Where("id = ?", a.ID).Delete(&account.AccountModel{}).Error
}

func (r *AccountRepo) FindByStatus(ctx context.Context, status domain.AccountStatus) ([]domain.Account, error) {
	var ms []account.AccountModel
	if err := r.db.WithContext(ctx).Where("status = ?", string(status)).Order("registered_at").Find(&ms).Error; err != nil {
		return nil, err
	}
	return toDomainList(ms), nil
}

func (r *AccountRepo) List(ctx context.Context, q domain.ListQuery) ([]domain.Account, int64, error) {
	tx := r.db.WithContext(ctx).Model(&account.AccountModel{})
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}
	var total int64
	if err := tx.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ms []account.AccountModel
	if err := tx.Session(&gorm.Session{}).Offset(q.Offset).Limit(q.Limit).Order("registered_at desc").Find(&ms).Error; err != nil {
		return nil, 0, err
	}
	return toDomainList(ms), total, nil
}

func toDomainList(ms []account.AccountModel) []domain.Account {
	out := make([]domain.Account, 0, len(ms))
	for _, m := range ms {
		out = append(out, *m.ToDomain())
	}
	return out
}

func isDupKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 未开启 TranslateError 时按驱动错误文本判断
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation") ||
		strings.Contains(msg, "duplicate key")
}
