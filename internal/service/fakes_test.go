package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"account-service/internal/core/auth"
	"account-service/internal/core/clock"
	"account-service/internal/domain"
	"account-service/internal/notify"
	"account-service/pkg/utils"
)

// memRepo 内存版 AccountRepository
type memRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Account

	failDelete   map[string]bool
	onFindStatus func()
	findCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[string]domain.Account{}, failDelete: map[string]bool{}}
}

func (r *memRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findCalls
}

func (r *memRepo) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *memRepo) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.byID {
		if a.Email == email {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (r *memRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	a, err := r.FindByEmail(ctx, email)
	return a != nil, err
}

func (r *memRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.byID {
		if x.Email == a.Email {
			return domain.Wrap(domain.KindDuplicateEmail, errors.New("unique constraint"))
		}
	}
	r.byID[a.ID] = *a
	return nil
}

func (r *memRepo) Update(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.ID]; ok {
		r.byID[a.ID] = *a
	}
	return nil
}

func (r *memRepo) Delete(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDelete[a.ID] {
		return errors.New("disk on fire")
	}
	delete(r.byID, a.ID)
	return nil
}

func (r *memRepo) FindByStatus(_ context.Context, st domain.AccountStatus) ([]domain.Account, error) {
	r.mu.Lock()
	r.findCalls++
	hook := r.onFindStatus
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, a := range r.byID {
		if a.Status == st {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (r *memRepo) List(_ context.Context, q domain.ListQuery) ([]domain.Account, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Account
	for _, a := range r.byID {
		if q.Status == "" || a.Status == q.Status {
			out = append(out, a)
		}
	}
	total := int64(len(out))
	if q.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// recordingGateway 记录所有通知，可选地返回错误
type recordingGateway struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (g *recordingGateway) Dispatch(_ context.Context, n notify.Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, n)
	return g.err
}

func (g *recordingGateway) last(t *testing.T, typ notify.EventType) notify.Notification {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.sent) - 1; i >= 0; i-- {
		if g.sent[i].Type == typ {
			return g.sent[i]
		}
	}
	t.Fatalf("no %s notification", typ)
	return notify.Notification{}
}

type fixture struct {
	svc   *AccountService
	repo  *memRepo
	clock *clock.Fake
	gw    *recordingGateway
	codec *auth.ConfirmCodec
	ret   Retention
}

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T, mutate ...func(*Settings)) *fixture {
	t.Helper()
	f := &fixture{
		repo:  newMemRepo(),
		clock: clock.NewFake(t0),
		gw:    &recordingGateway{},
	}
	f.codec = &auth.ConfirmCodec{Secret: []byte("test-secret"), Issuer: "account-service", Now: f.clock.Now}
	cfg := Settings{
		Retention:            Retention{ConfirmationWindowDays: 3, DeletionGraceDays: 7},
		ConfirmationRequired: true,
		BaseURL:              "http://localhost:8080",
		ConfirmPath:          "/api/v1/accounts/confirm",
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.ret = cfg.Retention
	f.svc = NewAccountService(Deps{
		Repo:     f.repo,
		Codec:    f.codec,
		Creds:    utils.Bcrypt{Cost: bcrypt.MinCost},
		Clock:    f.clock,
		Notifier: f.gw,
		Policy:   StrongPolicy{Min: 8},
	}, cfg)
	return f
}

// register 注册并返回确认邮件里的 token
func (f *fixture) register(t *testing.T, name, email, pw string) (*domain.Account, string) {
	t.Helper()
	acc, err := f.svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: pw})
	require.NoError(t, err)
	n := f.gw.last(t, notify.EventConfirmRegistration)
	tok, _ := n.Data[notify.KeyToken].(string)
	require.NotEmpty(t, tok)
	return acc, tok
}

func (f *fixture) activate(t *testing.T, name, email, pw string) *domain.Account {
	t.Helper()
	_, tok := f.register(t, name, email, pw)
	acc, err := f.svc.ConfirmRegistration(context.Background(), tok)
	require.NoError(t, err)
	return acc
}
