package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/metrics"
	"github.com/promptpix/promptpix/internal/model"
	"github.com/promptpix/promptpix/internal/repository"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	txs   []*model.Transaction
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*model.User)}
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrEmailExists
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (m *memStore) CreateTransaction(_ context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	return nil
}

func (m *memStore) ListTransactionsByUser(_ context.Context, f repository.TransactionFilter) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range m.txs {
		if tx.UserID != f.UserID {
			continue
		}
		if len(f.Plans) > 0 {
			match := false
			for _, p := range f.Plans {
				match = match || p == tx.Plan
			}
			if !match {
				continue
			}
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func (r *memRevoker) RevokeToken(_ context.Context, id string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]time.Duration)
	}
	r.revoked[id] = ttl
	return nil
}

type accountEnv struct {
	svc     *AccountService
	store   *memStore
	revoker *memRevoker
	tokens  *auth.TokenIssuer
	metrics *metrics.InMemoryRecorder
}

func newAccountEnv(t *testing.T) *accountEnv {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("service-test-secret-123", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	env := &accountEnv{
		store:   newMemStore(),
		revoker: &memRevoker{},
		tokens:  tokens,
		metrics: metrics.NewInMemory(),
	}
	env.svc = NewAccountService(AccountConfig{
		Store:          env.store,
		Tokens:         tokens,
		Revoker:        env.revoker,
		InitialCredits: 5,
		Metrics:        env.metrics,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

func TestRegister_GrantsInitialCredits(t *testing.T) {
	t.Parallel()
	env := newAccountEnv(t)

	sess, err := env.svc.Register(context.Background(), RegisterInput{
		Name:     " Ada ",
		Email:    "Ada@Example.com ",
		Password: "correct horse",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if sess.User.CreditBalance != 5 {
		t.Errorf("CreditBalance = %d, want 5", sess.User.CreditBalance)
	}
	if sess.User.Email != "ada@example.com" || sess.User.Name != "Ada" {
		t.Errorf("user = %+v", sess.User)
	}
	if sess.User.PasswordHash == "correct horse" {
		t.Error("password stored in plaintext")
	}

	ac, err := env.tokens.Parse(sess.Token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if ac.UserID != sess.User.ID {
		t.Errorf("token subject = %s, want %s", ac.UserID, sess.User.ID)
	}
	if env.metrics.Snapshot().UsersRegistered != 1 {
		t.Error("registration not counted")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	env := newAccountEnv(t)
	ctx := context.Background()

	in := RegisterInput{Name: "A", Email: "dup@example.com", Password: "password1"}
	if _, err := env.svc.Register(ctx, in); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	in.Email = "DUP@example.com"
	if _, err := env.svc.Register(ctx, in); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("second Register() error = %v, want ErrEmailTaken", err)
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()
	env := newAccountEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, RegisterInput{Name: "Bo", Email: "bo@example.com", Password: "hunter22"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"correct", "bo@example.com", "hunter22", nil},
		{"email case-insensitive", "BO@example.com", "hunter22", nil},
		{"wrong password", "bo@example.com", "hunter23", ErrInvalidCredentials},
		{"unknown email", "nobody@example.com", "hunter22", ErrInvalidCredentials},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			sess, err := env.svc.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Login() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && sess.Token == "" {
				t.Error("empty token")
			}
		})
	}
}

func TestLogout_RevokesForRemainingLifetime(t *testing.T) {
	t.Parallel()
	env := newAccountEnv(t)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	env.svc.now = func() time.Time { return now }

	err := env.svc.Logout(context.Background(), &model.AuthContext{
		UserID:    "u1",
		TokenID:   "tok-1",
		ExpiresAt: now.Add(30 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if got := env.revoker.revoked["tok-1"]; got != 30*time.Minute {
		t.Errorf("revocation ttl = %v, want 30m", got)
	}
}

func TestPurchase(t *testing.T) {
	t.Parallel()
	env := newAccountEnv(t)
	ctx := context.Background()

	tx, err := env.svc.Purchase(ctx, "user-1", model.PlanAdvanced)
	if err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}
	if tx.Credits != 500 || tx.Amount != 5000 || tx.Payment {
		t.Errorf("transaction = %+v", tx)
	}
	if tx.ID == "" || tx.UserID != "user-1" {
		t.Errorf("transaction identity = %+v", tx)
	}

	if _, err := env.svc.Purchase(ctx, "user-1", "platinum"); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("Purchase(platinum) error = %v, want ErrUnknownPlan", err)
	}
}

func TestTransactions_FilterByPlan(t *testing.T) {
	t.Parallel()
	env := newAccountEnv(t)
	ctx := context.Background()

	for _, p := range []string{model.PlanBasic, model.PlanBusiness, model.PlanBasic} {
		if _, err := env.svc.Purchase(ctx, "user-1", p); err != nil {
			t.Fatalf("Purchase(%s) error = %v", p, err)
		}
	}
	if _, err := env.svc.Purchase(ctx, "user-2", model.PlanBasic); err != nil {
		t.Fatalf("Purchase() error = %v", err)
	}

	all, err := env.svc.Transactions(ctx, "user-1", nil, 0)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}

	basic, err := env.svc.Transactions(ctx, "user-1", []string{model.PlanBasic}, 0)
	if err != nil {
		t.Fatalf("Transactions() error = %v", err)
	}
	if len(basic) != 2 {
		t.Errorf("len(basic) = %d, want 2", len(basic))
	}

	if _, err := env.svc.Transactions(ctx, "user-1", []string{"gold"}, 0); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("unknown plan filter error = %v, want ErrUnknownPlan", err)
	}
}
