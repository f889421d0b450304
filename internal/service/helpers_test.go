package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/identity-service/internal/authn"
	"github.com/pribylovaa/identity-service/internal/config"
	"github.com/pribylovaa/identity-service/internal/notify"
	"github.com/pribylovaa/identity-service/internal/storage/memory"
	"github.com/pribylovaa/identity-service/internal/token"
	"github.com/pribylovaa/identity-service/mocks"
)

const testPassword = "Abcdef1!"

func testCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:          "unit-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    24 * time.Hour,
		ActivationTokenTTL: 24 * time.Hour,
		ResetTokenTTL:      10 * time.Minute,
		Issuer:             "identity-service",
		Audience:           []string{"api-gateway"},
		BuyerRole:          "ROLE_BUYER",
		InvestorRole:       "ROLE_INVESTOR",
		BcryptCost:         bcrypt.MinCost,
	}
}

// fakeClock — управляемые часы для симуляции течения времени.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func newCodec(cfg config.AuthConfig, clk *fakeClock) *token.Codec {
	return token.NewCodec(cfg.JWTSecret, cfg.Issuer, cfg.Audience, token.WithClock(clk.Now))
}

// event — зафиксированный вызов Notifier.
type event struct {
	kind   string
	email  string
	name   string
	token  string
	status notify.LoanStatus
	note   string
}

// recNotifier записывает все уведомления вместо отправки.
type recNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recNotifier) add(e event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recNotifier) NotifyActivation(_ context.Context, email, userName string) {
	n.add(event{kind: "activation", email: email, name: userName})
}

func (n *recNotifier) NotifyPasswordChanged(_ context.Context, email, userName string) {
	n.add(event{kind: "password_changed", email: email, name: userName})
}

func (n *recNotifier) NotifyPasswordRecovery(_ context.Context, email, userName, resetToken string) {
	n.add(event{kind: "recovery", email: email, name: userName, token: resetToken})
}

func (n *recNotifier) NotifyLoanStatus(_ context.Context, email, userName string, status notify.LoanStatus, note string) {
	n.add(event{kind: "loan_status", email: email, name: userName, status: status, note: note})
}

func (n *recNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.kind)
	}

	return out
}

func (n *recNotifier) last() event {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.events) == 0 {
		return event{}
	}

	return n.events[len(n.events)-1]
}

// fakeAuth — Authenticator для тестов на моках хранилища.
type fakeAuth struct {
	err error
}

func (a fakeAuth) Authenticate(context.Context, string, string) error { return a.err }

func (a fakeAuth) Hash(secret string) (string, error) { return "hash:" + secret, nil }

// fakeCache — BlacklistCache в памяти.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]time.Duration
	getErr  error
	gets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]time.Duration)}
}

func (c *fakeCache) IsRevoked(_ context.Context, hash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gets++
	if c.getErr != nil {
		return false, c.getErr
	}

	_, ok := c.entries[hash]
	return ok, nil
}

func (c *fakeCache) MarkRevoked(_ context.Context, hash string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > 0 {
		c.entries[hash] = ttl
	}

	return nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func (c *fakeCache) Close() error { return nil }

// env — сервис поверх хранилища в памяти.
type env struct {
	svc   *Service
	st    *memory.Storage
	clk   *fakeClock
	notes *recNotifier
	cfg   config.AuthConfig
}

func newEnv(t *testing.T, mutate ...func(*config.AuthConfig)) *env {
	t.Helper()

	cfg := testCfg()
	for _, m := range mutate {
		m(&cfg)
	}

	clk := newClock()
	st := memory.New()
	notes := &recNotifier{}
	svc := New(st, authn.New(st, cfg.BcryptCost), newCodec(cfg, clk), notes, cfg)

	return &env{svc: svc, st: st, clk: clk, notes: notes, cfg: cfg}
}

func (e *env) register(t *testing.T, email string) *AuthResult {
	t.Helper()

	res, err := e.svc.RegisterUser(context.Background(), RegisterInput{
		Email:    email,
		Password: testPassword,
		Name:     "Ivan",
		Lastname: "Petrov",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}

	return res
}

// newMockSvc — сервис поверх gomock-хранилища.
func newMockSvc(t *testing.T, auth Authenticator) (*Service, *mocks.MockStorage, *fakeClock) {
	t.Helper()

	ctrl := gomock.NewController(t)
	st := mocks.NewMockStorage(ctrl)
	clk := newClock()
	cfg := testCfg()

	return New(st, auth, newCodec(cfg, clk), &recNotifier{}, cfg), st, clk
}
