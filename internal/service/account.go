// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/promptpix/promptpix/internal/auth"
	"github.com/promptpix/promptpix/internal/metrics"
	"github.com/promptpix/promptpix/internal/model"
	"github.com/promptpix/promptpix/internal/repository"
)

// Service errors.
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnknownPlan        = model.ErrUnknownPlan
)

// AccountStore persists users and their purchase records.
type AccountStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	ListTransactionsByUser(ctx context.Context, filter repository.TransactionFilter) ([]*model.Transaction, error)
}

// TokenSigner issues session tokens.
type TokenSigner interface {
	Issue(user *model.User) (string, time.Time, error)
}

// TokenRevoker denylists session tokens.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
}

// Session is an issued login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// AccountService handles registration, login and credit purchases.
type AccountService struct {
	store          AccountStore
	tokens         TokenSigner
	revoker        TokenRevoker
	initialCredits int64
	metrics        metrics.Recorder
	logger         *slog.Logger
	now            func() time.Time
}

// AccountConfig wires AccountService dependencies.
type AccountConfig struct {
	Store          AccountStore
	Tokens         TokenSigner
	Revoker        TokenRevoker
	InitialCredits int64
	Metrics        metrics.Recorder
	Logger         *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(cfg AccountConfig) *AccountService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AccountService{
		store:          cfg.Store,
		tokens:         cfg.Tokens,
		revoker:        cfg.Revoker,
		initialCredits: cfg.InitialCredits,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger.With("component", "account"),
		now:            time.Now,
	}
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates a user with the opening credit grant and logs them in.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &model.User{
		ID:            ulid.Make().String(),
		Name:          strings.TrimSpace(input.Name),
		Email:         normalizeEmail(input.Email),
		PasswordHash:  hash,
		CreditBalance: s.initialCredits,
		CreatedAt:     now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.metrics.IncUserRegistered()
	s.logger.Info("user_registered",
		"user_id", user.ID,
		"initial_credits", user.CreditBalance,
	)

	return s.issue(user)
}

// Login verifies credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			auth.VerifyDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Account returns the user with a fresh credit balance.
func (s *AccountService) Account(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *AccountService) Logout(ctx context.Context, session *model.AuthContext) error {
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.revoker.RevokeToken(ctx, session.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("user_logged_out", "user_id", session.UserID)
	return nil
}

// Purchase records an unsettled transaction for planID. Credits are not
// granted until the transaction is settled.
func (s *AccountService) Purchase(ctx context.Context, userID, planID string) (*model.Transaction, error) {
	plan, err := model.LookupPlan(planID)
	if err != nil {
		return nil, err
	}

	tx := model.NewTransaction(ulid.Make().String(), userID, plan, s.now())
	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.metrics.IncTransactionCreated(plan.ID)
	s.logger.Info("transaction_created",
		"transaction_id", tx.ID,
		"user_id", userID,
		"plan", plan.ID,
		"amount", plan.Amount,
	)
	return tx, nil
}

// Transactions lists the user's transactions, newest first, optionally
// restricted to the given plans.
func (s *AccountService) Transactions(ctx context.Context, userID string, plans []string, limit int) ([]*model.Transaction, error) {
	for _, p := range plans {
		if _, err := model.LookupPlan(p); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPlan, p)
		}
	}

	txs, err := s.store.ListTransactionsByUser(ctx, repository.TransactionFilter{
		UserID: userID,
		Plans:  plans,
		Limit:  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func (s *AccountService) issue(user *model.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
