package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-service/internal/domain"
	"account-service/internal/notify"
)

const (
	alice   = "alice@example.com"
	alicePw = "P@ssw0rd1"
)

func TestRegister(t *testing.T) {
	f := newFixture(t)
	acc, tok := f.register(t, "  Alice ", "  "+alice+" ", alicePw)

	assert.Equal(t, domain.StatusNew, acc.Status)
	assert.Nil(t, acc.DeletedAt)
	assert.Equal(t, "Alice", acc.Name)
	assert.Equal(t, alice, acc.Email)
	assert.Equal(t, domain.RoleUser, acc.Role)
	assert.NotEqual(t, alicePw, acc.PasswordHash)
	assert.True(t, f.svc.creds.Verify(alicePw, acc.PasswordHash))
	assert.Equal(t, t0, acc.RegisteredAt)

	stored, err := f.repo.FindByEmail(context.Background(), alice)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, acc.ID, stored.ID)

	n := f.gw.last(t, notify.EventConfirmRegistration)
	assert.Equal(t, alice, n.To)
	assert.Equal(t, "Alice", n.Data[notify.KeyName])
	url, _ := n.Data[notify.KeyConfirmURL].(string)
	assert.True(t, strings.HasPrefix(url, "http://localhost:8080/api/v1/accounts/confirm?token="))
	assert.Contains(t, url, tok)
}

func TestRegisterCollectsAllViolations(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "  ", Email: "nope", Password: "short"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	require.Len(t, de.Violations, 3)
	assert.Equal(t, "email", de.Violations[0].Field)
	assert.Equal(t, domain.MsgInvalidEmail.ID, de.Violations[0].MessageID)
	assert.Equal(t, "name", de.Violations[1].Field)
	assert.Equal(t, domain.MsgEmptyName.ID, de.Violations[1].MessageID)
	assert.Equal(t, "password", de.Violations[2].Field)
	assert.Equal(t, domain.MsgWeakPassword.ID, de.Violations[2].MessageID)
	assert.Equal(t, domain.MsgWeakPassword.Text, de.Violations[2].Message)
	assert.Zero(t, f.repo.count())
}

func TestRegisterEmptyFields(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{})
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	ids := map[string]string{}
	for _, v := range de.Violations {
		ids[v.Field] = v.MessageID
	}
	assert.Equal(t, map[string]string{
		"name":     domain.MsgEmptyName.ID,
		"email":    domain.MsgEmptyEmail.ID,
		"password": domain.MsgEmptyPassword.ID,
	}, ids)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Alice", alice, alicePw)

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Other", Email: alice, Password: alicePw})
	assert.True(t, errors.Is(err, domain.ErrDuplicateEmail))
	assert.Equal(t, 1, f.repo.count())
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)
	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: alice, Password: alicePw})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrDuplicateEmail):
				dups++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
	assert.Equal(t, 1, f.repo.count())
}

func TestRegisterWithoutConfirmation(t *testing.T) {
	f := newFixture(t, func(s *Settings) { s.ConfirmationRequired = false })
	acc, err := f.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: alice, Password: alicePw})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, acc.Status)
	assert.Empty(t, f.gw.sent)
}

func TestRegisterNotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.gw.err = errors.New("smtp down")
	acc, err := f.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: alice, Password: alicePw})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, acc.Status)
	assert.Equal(t, 1, f.repo.count())
}

// gatewayFunc 让测试在投递时观察服务状态
type gatewayFunc func(ctx context.Context, n notify.Notification) error

func (f gatewayFunc) Dispatch(ctx context.Context, n notify.Notification) error { return f(ctx, n) }

func TestRegisterSendsAfterReleasingLock(t *testing.T) {
	f := newFixture(t)
	var lockErr error
	sent := 0
	f.svc.notifier = gatewayFunc(func(ctx context.Context, n notify.Notification) error {
		sent++
		lctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		unlock, err := f.svc.locker.Lock(lctx, "register:"+n.To)
		lockErr = err
		if err == nil {
			unlock()
		}
		return nil
	})

	_, err := f.svc.Register(context.Background(), RegisterInput{Name: "Alice", Email: alice, Password: alicePw})
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.NoError(t, lockErr)
}

func TestConfirmRegistration(t *testing.T) {
	f := newFixture(t)
	_, tok := f.register(t, "Alice", alice, alicePw)

	acc, err := f.svc.ConfirmRegistration(context.Background(), tok)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, acc.Status)

	_, err = f.svc.ConfirmRegistration(context.Background(), tok)
	assert.True(t, errors.Is(err, domain.ErrAlreadyConfirmed))
}

func TestConfirmRegistrationInvalid(t *testing.T) {
	f := newFixture(t)
	acc, tok := f.register(t, "Alice", alice, alicePw)

	_, err := f.svc.ConfirmRegistration(context.Background(), "garbage")
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))

	ghost, err := f.codec.Issue("missing-id", t0)
	require.NoError(t, err)
	_, err = f.svc.ConfirmRegistration(context.Background(), ghost)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))

	// 注册时间变了，旧 token 失效
	stored, _ := f.repo.FindByID(context.Background(), acc.ID)
	stored.RegisteredAt = stored.RegisteredAt.Add(time.Second)
	require.NoError(t, f.repo.Update(context.Background(), stored))
	_, err = f.svc.ConfirmRegistration(context.Background(), tok)
	assert.True(t, errors.Is(err, domain.ErrInvalidToken))

	after, _ := f.repo.FindByID(context.Background(), acc.ID)
	assert.Equal(t, domain.StatusNew, after.Status)
}

func TestConfirmRegistrationWindow(t *testing.T) {
	f := newFixture(t)
	acc, tok := f.register(t, "Alice", alice, alicePw)

	f.clock.Advance(3*day - time.Second)
	assert.Equal(t, 1, f.svc.DaysLeftForConfirmation(acc))

	f.clock.Advance(time.Second)
	_, err := f.svc.ConfirmRegistration(context.Background(), tok)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))

	after, _ := f.repo.FindByID(context.Background(), acc.ID)
	assert.Equal(t, domain.StatusNew, after.Status)
}

func TestConfirmRegistrationExpiredAfterActivation(t *testing.T) {
	f := newFixture(t)
	_, tok := f.register(t, "Alice", alice, alicePw)
	_, err := f.svc.ConfirmRegistration(context.Background(), tok)
	require.NoError(t, err)

	f.clock.Advance(4 * day)
	_, err = f.svc.ConfirmRegistration(context.Background(), tok)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))
	assert.False(t, errors.Is(err, domain.ErrAlreadyConfirmed))
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, domain.ErrUserNotFound))

	_, tok := f.register(t, "Alice", alice, alicePw)
	_, err = f.svc.Authenticate(ctx, alice)
	assert.True(t, errors.Is(err, domain.ErrEmailNotConfirmed))
	_, err = f.svc.Login(ctx, alice, alicePw)
	assert.True(t, errors.Is(err, domain.ErrEmailNotConfirmed))

	_, err = f.svc.ConfirmRegistration(ctx, tok)
	require.NoError(t, err)

	acc, err := f.svc.Login(ctx, alice, alicePw)
	require.NoError(t, err)
	assert.Equal(t, alice, acc.Email)

	_, err = f.svc.Login(ctx, alice, "wrong-password")
	assert.True(t, errors.Is(err, domain.ErrUserNotFound))
}

func TestCurrentAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ResolveCurrentAccount(ctx, "")
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))
	_, err = f.svc.ResolveCurrentAccount(ctx, "ghost@example.com")
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))

	anon, err := f.svc.CurrentAccountOrAnonymous(ctx, "")
	require.NoError(t, err)
	assert.True(t, anon.IsAnonymous())

	f.activate(t, "Alice", alice, alicePw)
	me, err := f.svc.CurrentAccountOrAnonymous(ctx, alice)
	require.NoError(t, err)
	assert.False(t, me.IsAnonymous())
	assert.Equal(t, "Alice", me.Name)
}

func TestChangeName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ChangeName(ctx, "", "Bob")
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))
	// 未登录时先报身份，不报入参
	_, err = f.svc.ChangeName(ctx, "", "  ")
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))
	_, err = f.svc.ChangePassword(ctx, "", ChangePasswordInput{})
	assert.True(t, errors.Is(err, domain.ErrNotAuthenticated))

	f.activate(t, "Alice", alice, alicePw)
	_, err = f.svc.ChangeName(ctx, alice, "   ")
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))

	acc, err := f.svc.ChangeName(ctx, alice, " Alice B ")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", acc.Name)
	assert.Equal(t, alice, acc.Email)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activate(t, "Alice", alice, alicePw)

	_, err := f.svc.ChangePassword(ctx, alice, ChangePasswordInput{OldPassword: "Wr0ngPass", NewPassword: "N3wPassword"})
	assert.True(t, errors.Is(err, domain.ErrIncorrectPassword))

	_, err = f.svc.ChangePassword(ctx, alice, ChangePasswordInput{OldPassword: alicePw, NewPassword: alicePw})
	assert.True(t, errors.Is(err, domain.ErrPasswordUnchanged))

	_, err = f.svc.ChangePassword(ctx, alice, ChangePasswordInput{OldPassword: alicePw, NewPassword: "weak"})
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))

	acc, err := f.svc.ChangePassword(ctx, alice, ChangePasswordInput{OldPassword: alicePw, NewPassword: "N3wPassword"})
	require.NoError(t, err)
	assert.False(t, f.svc.creds.Verify(alicePw, acc.PasswordHash))
	assert.True(t, f.svc.creds.Verify("N3wPassword", acc.PasswordHash))

	n := f.gw.last(t, notify.EventPasswordChanged)
	assert.Equal(t, alice, n.To)
}

func TestMutationsRequireActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Alice", alice, alicePw)

	_, err := f.svc.ChangeName(ctx, alice, "Bob")
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	_, err = f.svc.ChangePassword(ctx, alice, ChangePasswordInput{OldPassword: alicePw, NewPassword: "N3wPassword"})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	_, err = f.svc.DeleteAccount(ctx, alice, alicePw)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	_, err = f.svc.RecoverAccount(ctx, alice)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
}

func TestDeleteAndRecover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	before := f.activate(t, "Alice", alice, alicePw)

	_, err := f.svc.DeleteAccount(ctx, alice, "Wr0ngPass")
	assert.True(t, errors.Is(err, domain.ErrIncorrectPassword))

	deleted, err := f.svc.DeleteAccount(ctx, alice, alicePw)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, deleted.Status)
	require.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, t0, *deleted.DeletedAt)
	assert.Equal(t, 7, f.svc.DaysLeftForRecovery(deleted))
	assert.Equal(t, 7, f.gw.last(t, notify.EventAccountDeleted).Data[notify.KeyDaysLeft])

	// 再删一次不会延长宽限期
	f.clock.Advance(2 * day)
	again, err := f.svc.DeleteAccount(ctx, alice, alicePw)
	require.NoError(t, err)
	assert.Equal(t, t0, *again.DeletedAt)
	assert.Equal(t, 5, f.svc.DaysLeftForRecovery(again))

	// 已删除的账号仍可登录以便恢复
	_, err = f.svc.Login(ctx, alice, alicePw)
	require.NoError(t, err)

	recovered, err := f.svc.RecoverAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, recovered.Status)
	assert.Nil(t, recovered.DeletedAt)
	assert.Equal(t, before.ID, recovered.ID)
	assert.Equal(t, before.Name, recovered.Name)
	assert.Equal(t, before.Email, recovered.Email)
	assert.Equal(t, before.PasswordHash, recovered.PasswordHash)
	assert.Equal(t, before.RegisteredAt, recovered.RegisteredAt)
	assert.Equal(t, -1, f.svc.DaysLeftForRecovery(recovered))

	same, err := f.svc.RecoverAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, same.Status)
}

func TestAliceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, tok := f.register(t, "Alice", alice, alicePw)
	require.Equal(t, domain.StatusNew, acc.Status)

	acc, err := f.svc.ConfirmRegistration(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, acc.Status)

	acc, err = f.svc.ChangeName(ctx, alice, "Alice B")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", acc.Name)
	assert.Equal(t, alice, acc.Email)

	acc, err = f.svc.DeleteAccount(ctx, alice, alicePw)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDeleted, acc.Status)
	assert.NotNil(t, acc.DeletedAt)

	acc, err = f.svc.RecoverAccount(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, acc.Status)
	assert.Nil(t, acc.DeletedAt)
}

func TestExpiredRegistrationIsPurged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, tok := f.register(t, "Alice", alice, alicePw)

	f.clock.Advance(4 * day)
	_, err := f.svc.ConfirmRegistration(ctx, tok)
	assert.True(t, errors.Is(err, domain.ErrTokenExpired))

	sw := NewSweeper(f.repo, f.ret, f.clock, nil, nil)
	rep, err := sw.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.PurgedUnconfirmed)

	acc, err := f.repo.FindByEmail(ctx, alice)
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestListAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activate(t, "Alice", alice, alicePw)
	f.register(t, "Bob", "bob@example.com", alicePw)

	all, total, err := f.svc.ListAccounts(ctx, domain.ListQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, all, 2)

	_, total, err = f.svc.ListAccounts(ctx, domain.ListQuery{Status: domain.StatusNew})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, _, err = f.svc.ListAccounts(ctx, domain.ListQuery{Status: "zombie"})
	assert.True(t, errors.Is(err, domain.ErrValidationFailed))
}
