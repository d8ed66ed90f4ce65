package service

import (
	"time"

	"account-service/internal/domain"
)

const day = 24 * time.Hour

// Retention 两个保留窗口（天）。sweeper 与展示层共用同一公式
type Retention struct {
	ConfirmationWindowDays int
	DeletionGraceDays      int
}

// elapsedDays floor((now-since)/1d)，时间倒挂按 0 计
func elapsedDays(since, now time.Time) int {
	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return int(d / day)
}

// DaysLeft max(window - elapsedDays, 0)
func DaysLeft(window int, since, now time.Time) int {
	left := window - elapsedDays(since, now)
	if left < 0 {
		return 0
	}
	return left
}

// DaysLeftForRecovery 非 deleted 账号返回 -1
func (r Retention) DaysLeftForRecovery(a *domain.Account, now time.Time) int {
	if !a.IsDeleted() || a.DeletedAt == nil {
		return -1
	}
	return DaysLeft(r.DeletionGraceDays, *a.DeletedAt, now)
}

// DaysLeftForConfirmation 非 new 账号返回 -1
func (r Retention) DaysLeftForConfirmation(a *domain.Account, now time.Time) int {
	if !a.IsNew() {
		return -1
	}
	return DaysLeft(r.ConfirmationWindowDays, a.RegisteredAt, now)
}
