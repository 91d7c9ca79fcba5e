package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/promptpix/promptpix/internal/model"
	"github.com/promptpix/promptpix/internal/repository"
	"github.com/promptpix/promptpix/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memLedger is an in-memory credit ledger.
type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func (l *memLedger) CreditBalance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.balances[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return b, nil
}

func (l *memLedger) DecrementCredits(_ context.Context, userID string, amount int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[userID]; !ok {
		return 0, repository.ErrUserNotFound
	}
	l.balances[userID] -= amount
	return l.balances[userID], nil
}

func (l *memLedger) get(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// stubImages returns fixed bytes or a fixed error.
type stubImages struct {
	mu    sync.Mutex
	image []byte
	err   error
	calls int
}

func (s *stubImages) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.image, s.err
}

func (s *stubImages) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubAccounts implements AccountService with canned results.
type stubAccounts struct {
	user        *model.User
	session     *service.Session
	err         error
	loggedOut   []string
	purchases   []string
	planFilters []string
	txs         []*model.Transaction
}

func (s *stubAccounts) Register(_ context.Context, in service.RegisterInput) (*service.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func (s *stubAccounts) Login(_ context.Context, _, _ string) (*service.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.session, nil
}

func (s *stubAccounts) Account(_ context.Context, _ string) (*model.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.user, nil
}

func (s *stubAccounts) Logout(_ context.Context, ac *model.AuthContext) error {
	if s.err != nil {
		return s.err
	}
	s.loggedOut = append(s.loggedOut, ac.TokenID)
	return nil
}

func (s *stubAccounts) Purchase(_ context.Context, userID, planID string) (*model.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	plan, err := model.LookupPlan(planID)
	if err != nil {
		return nil, service.ErrUnknownPlan
	}
	s.purchases = append(s.purchases, planID)
	return model.NewTransaction("tx-1", userID, plan, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), nil
}

func (s *stubAccounts) Transactions(_ context.Context, _ string, plans []string, _ int) ([]*model.Transaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.planFilters = plans
	return s.txs, nil
}
