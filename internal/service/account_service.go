package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"account-service/internal/core/auth"
	"account-service/internal/core/cache"
	"account-service/internal/core/clock"
	"account-service/internal/domain"
	"account-service/internal/notify"
	"account-service/pkg/utils"
)

// Settings 账号生命周期相关配置
type Settings struct {
	Retention
	ConfirmationRequired bool
	BaseURL              string // 邮件里的站点地址
	ConfirmPath          string // 确认链接路径，token 走 query
}

func (s Settings) confirmURL(token string) string {
	return strings.TrimRight(s.BaseURL, "/") + s.ConfirmPath + "?token=" + url.QueryEscape(token)
}

type Deps struct {
	Repo     domain.AccountRepository
	Codec    auth.ClaimCodec
	Creds    utils.CredentialVerifier
	Clock    clock.Clock
	Notifier notify.Gateway
	Locker   cache.Locker
	Policy   PasswordPolicy
	Log      *zap.Logger
}

type AccountService struct {
	repo     domain.AccountRepository
	codec    auth.ClaimCodec
	creds    utils.CredentialVerifier
	clock    clock.Clock
	notifier notify.Gateway
	locker   cache.Locker
	policy   PasswordPolicy
	cfg      Settings
	log      *zap.Logger
}

func NewAccountService(d Deps, cfg Settings) *AccountService {
	s := &AccountService{
		repo:     d.Repo,
		codec:    d.Codec,
		creds:    d.Creds,
		clock:    d.Clock,
		notifier: d.Notifier,
		locker:   d.Locker,
		policy:   d.Policy,
		cfg:      cfg,
		log:      d.Log,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.locker == nil {
		s.locker = cache.NewLocalLocker()
	}
	if s.policy == nil {
		s.policy = MinLengthPolicy{Min: 8}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

func (s *AccountService) now() time.Time { return s.clock.Now().UTC() }

// Register 新建账号（默认 new，待邮件确认）。确认邮件在释放注册锁之后发送
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	in.normalize()
	if err := toDomainError(in.Validate(s.policy)); err != nil {
		return nil, err
	}
	acc, err := s.create(ctx, in)
	if err != nil {
		return nil, err
	}
	if acc.IsNew() {
		s.sendConfirmation(ctx, acc)
	}
	return acc, nil
}

// create 在 register:<email> 锁内查重并落库
func (s *AccountService) create(ctx context.Context, in RegisterInput) (*domain.Account, error) {
	// 同一邮箱串行化，配合唯一索引兜底
	unlock, err := s.locker.Lock(ctx, "register:"+in.Email)
	if err != nil {
		return nil, fmt.Errorf("register lock: %w", err)
	}
	defer unlock()

	exists, err := s.repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, domain.ErrDuplicateEmail
	}

	hash, err := s.creds.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().Truncate(time.Millisecond)
	acc := &domain.Account{
		ID:           utils.NewID(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       domain.StatusNew,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if !s.cfg.ConfirmationRequired {
		acc.Status = domain.StatusActive
	}
	if err := s.repo.Create(ctx, acc); err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.log.Info("account registered",
		zap.String("id", acc.ID), zap.String("status", string(acc.Status)))
	return acc, nil
}

func (s *AccountService) sendConfirmation(ctx context.Context, acc *domain.Account) {
	token, err := s.codec.Issue(acc.ID, acc.RegisteredAt)
	if err != nil {
		s.log.Error("issue confirmation token", zap.String("id", acc.ID), zap.Error(err))
		return
	}
	s.dispatch(ctx, acc, notify.EventConfirmRegistration, map[string]any{
		notify.KeyToken:      token,
		notify.KeyConfirmURL: s.cfg.confirmURL(token),
	})
}

// dispatch 通知失败只记日志，不影响业务结果
func (s *AccountService) dispatch(ctx context.Context, acc *domain.Account, typ notify.EventType, data map[string]any) {
	if s.notifier == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data[notify.KeyName] = acc.Name
	data[notify.KeyBaseURL] = s.cfg.BaseURL
	n := notify.Notification{Type: typ, To: acc.Email, Data: data, At: s.now()}
	if err := s.notifier.Dispatch(ctx, n); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("type", string(typ)), zap.String("id", acc.ID), zap.Error(err))
	}
}

// ConfirmRegistration new -> active
func (s *AccountService) ConfirmRegistration(ctx context.Context, token string) (*domain.Account, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidToken, err)
	}
	acc, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acc == nil || acc.RegisteredAt.UnixMilli() != claims.RegisteredAt.UnixMilli() {
		return nil, domain.ErrInvalidToken
	}
	// 过期判断不看状态：窗口过后即使已确认也报过期
	if elapsedDays(acc.RegisteredAt, s.now()) >= s.cfg.ConfirmationWindowDays {
		return nil, domain.ErrTokenExpired
	}
	if !acc.IsNew() {
		return nil, domain.ErrAlreadyConfirmed
	}
	if err := s.transition(ctx, acc, domain.StatusActive); err != nil {
		return nil, err
	}
	s.log.Info("account confirmed", zap.String("id", acc.ID))
	return acc, nil
}

func (s *AccountService) transition(ctx context.Context, acc *domain.Account, to domain.AccountStatus) error {
	if !domain.CanTransition(acc.Status, to) {
		return domain.ErrInvalidState
	}
	now := s.now()
	acc.Status = to
	switch to {
	case domain.StatusDeleted:
		acc.DeletedAt = &now
	case domain.StatusActive:
		acc.DeletedAt = nil
	}
	return s.save(ctx, acc)
}

func (s *AccountService) save(ctx context.Context, acc *domain.Account) error {
	acc.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, acc); err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// Authenticate 按邮箱取账号；未确认的账号在比对密码之前就拒绝
func (s *AccountService) Authenticate(ctx context.Context, email string) (*domain.Account, error) {
	acc, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acc == nil {
		return nil, domain.ErrUserNotFound
	}
	if acc.IsNew() {
		return nil, domain.ErrEmailNotConfirmed
	}
	return acc, nil
}

// Login Authenticate + 密码校验；密码错误与用户不存在返回同一种错误
func (s *AccountService) Login(ctx context.Context, email, password string) (*domain.Account, error) {
	acc, err := s.Authenticate(ctx, email)
	if err != nil {
		return nil, err
	}
	if !s.creds.Verify(password, acc.PasswordHash) {
		return nil, domain.ErrUserNotFound
	}
	return acc, nil
}

func (s *AccountService) ResolveCurrentAccount(ctx context.Context, principal string) (*domain.Account, error) {
	if strings.TrimSpace(principal) == "" {
		return nil, domain.ErrNotAuthenticated
	}
	acc, err := s.repo.FindByEmail(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if acc == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return acc, nil
}

// CurrentAccountOrAnonymous 未登录时返回匿名占位账号
func (s *AccountService) CurrentAccountOrAnonymous(ctx context.Context, principal string) (*domain.Account, error) {
	acc, err := s.ResolveCurrentAccount(ctx, principal)
	if errors.Is(err, domain.ErrNotAuthenticated) {
		return domain.AnonymousAccount(), nil
	}
	return acc, err
}

// activeAccount 顺序：先认身份，再校验入参，最后要求 active
func (s *AccountService) activeAccount(ctx context.Context, principal string, validate func() error) (*domain.Account, error) {
	acc, err := s.ResolveCurrentAccount(ctx, principal)
	if err != nil {
		return nil, err
	}
	if err := toDomainError(validate()); err != nil {
		return nil, err
	}
	if !acc.IsActive() {
		return nil, domain.ErrInvalidState
	}
	return acc, nil
}

func (s *AccountService) ChangeName(ctx context.Context, principal, name string) (*domain.Account, error) {
	in := ChangeNameInput{Name: strings.TrimSpace(name)}
	acc, err := s.activeAccount(ctx, principal, in.Validate)
	if err != nil {
		return nil, err
	}
	acc.Name = in.Name
	if err := s.save(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *AccountService) ChangePassword(ctx context.Context, principal string, in ChangePasswordInput) (*domain.Account, error) {
	acc, err := s.activeAccount(ctx, principal, func() error { return in.Validate(s.policy) })
	if err != nil {
		return nil, err
	}
	if !s.creds.Verify(in.OldPassword, acc.PasswordHash) {
		return nil, domain.ErrIncorrectPassword
	}
	if s.creds.Verify(in.NewPassword, acc.PasswordHash) {
		return nil, domain.ErrPasswordUnchanged
	}
	hash, err := s.creds.Hash(in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acc.PasswordHash = hash
	if err := s.save(ctx, acc); err != nil {
		return nil, err
	}
	s.log.Info("password changed", zap.String("id", acc.ID))
	s.dispatch(ctx, acc, notify.EventPasswordChanged, nil)
	return acc, nil
}

// DeleteAccount 软删除；已删除的账号原样返回，不会延长宽限期
func (s *AccountService) DeleteAccount(ctx context.Context, principal, password string) (*domain.Account, error) {
	if err := toDomainError(DeleteInput{Password: password}.Validate()); err != nil {
		return nil, err
	}
	acc, err := s.ResolveCurrentAccount(ctx, principal)
	if err != nil {
		return nil, err
	}
	if !s.creds.Verify(password, acc.PasswordHash) {
		return nil, domain.ErrIncorrectPassword
	}
	if acc.IsDeleted() {
		return acc, nil
	}
	if err := s.transition(ctx, acc, domain.StatusDeleted); err != nil {
		return nil, err
	}
	s.log.Info("account deleted", zap.String("id", acc.ID))
	s.dispatch(ctx, acc, notify.EventAccountDeleted, map[string]any{
		notify.KeyDaysLeft: s.cfg.DaysLeftForRecovery(acc, s.now()),
	})
	return acc, nil
}

// RecoverAccount deleted -> active；已是 active 时原样返回
func (s *AccountService) RecoverAccount(ctx context.Context, principal string) (*domain.Account, error) {
	acc, err := s.ResolveCurrentAccount(ctx, principal)
	if err != nil {
		return nil, err
	}
	if acc.IsActive() {
		return acc, nil
	}
	if !acc.IsDeleted() {
		return nil, domain.ErrInvalidState
	}
	if err := s.transition(ctx, acc, domain.StatusActive); err != nil {
		return nil, err
	}
	s.log.Info("account recovered", zap.String("id", acc.ID))
	return acc, nil
}

func (s *AccountService) DaysLeftForRecovery(acc *domain.Account) int {
	return s.cfg.DaysLeftForRecovery(acc, s.now())
}

func (s *AccountService) DaysLeftForConfirmation(acc *domain.Account) int {
	return s.cfg.DaysLeftForConfirmation(acc, s.now())
}

func (s *AccountService) ListAccounts(ctx context.Context, q domain.ListQuery) ([]domain.Account, int64, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, domain.NewValidationError([]domain.Violation{{
			Field: "status", Message: domain.MsgEmptyField.Text, MessageID: domain.MsgEmptyField.ID,
		}})
	}
	switch {
	case q.Limit <= 0:
		q.Limit = 50
	case q.Limit > 200:
		q.Limit = 200
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.repo.List(ctx, q)
}
