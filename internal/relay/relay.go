// Package relay meters text-to-image generation against a user's credit balance.
//
// A generation checks the balance, calls the image provider, then debits one
// credit. The provider call and the debit are not atomic: if the debit fails
// after the provider succeeded the image is still returned undebited and the
// failure is raised as an alert event for reconciliation.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/promptpix/promptpix/internal/events"
	"github.com/promptpix/promptpix/internal/metrics"
	"github.com/promptpix/promptpix/internal/provider"
	"github.com/promptpix/promptpix/internal/repository"
)

// CostPerImage is the number of credits a successful generation consumes.
const CostPerImage = 1

// debitTimeout bounds the debit once the provider has produced an image.
const debitTimeout = 5 * time.Second

// Ledger reads and debits credit balances.
type Ledger interface {
	CreditBalance(ctx context.Context, userID string) (int64, error)
	DecrementCredits(ctx context.Context, userID string, amount int64) (int64, error)
}

// ImageProvider produces image bytes for a prompt.
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// EventPublisher receives generation events without blocking.
type EventPublisher interface {
	PublishAsync(event events.Event)
}

// Result is the outcome of a successful generation.
type Result struct {
	Image           []byte
	RemainingCredit int64
	// Debited is false when the image was produced but the debit failed.
	Debited bool
}

// Options configures optional collaborators.
type Options struct {
	ProviderName string
	Events       EventPublisher
	Metrics      metrics.Recorder
	Logger       *slog.Logger
}

// Relay orchestrates a metered generation.
type Relay struct {
	ledger       Ledger
	provider     ImageProvider
	providerName string
	events       EventPublisher
	metrics      metrics.Recorder
	logger       *slog.Logger
}

// New creates a Relay.
func New(ledger Ledger, images ImageProvider, opts Options) *Relay {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ProviderName == "" {
		opts.ProviderName = "unknown"
	}
	return &Relay{
		ledger:       ledger,
		provider:     images,
		providerName: opts.ProviderName,
		events:       opts.Events,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With("component", "relay"),
	}
}

// Generate produces an image for prompt on behalf of userID and debits one credit.
func (r *Relay) Generate(ctx context.Context, userID, prompt string) (Result, error) {
	result, err := r.generate(ctx, userID, prompt)
	if err != nil {
		r.metrics.IncGeneration(string(KindOf(err)))
		return Result{}, err
	}
	if result.Debited {
		r.metrics.IncGeneration(metrics.OutcomeSuccess)
	} else {
		r.metrics.IncGeneration(metrics.OutcomeLedgerError)
	}
	return result, nil
}

func (r *Relay) generate(ctx context.Context, userID, prompt string) (Result, error) {
	prompt = strings.TrimSpace(prompt)
	if userID == "" || prompt == "" {
		return Result{}, &Error{Kind: KindInvalidRequest, Err: errors.New("user and prompt are required")}
	}

	balance, err := r.ledger.CreditBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return Result{}, &Error{Kind: KindInvalidRequest, Err: err}
		}
		return Result{}, &Error{Kind: KindFault, Err: fmt.Errorf("read balance: %w", err)}
	}
	if balance <= 0 {
		return Result{}, &Error{Kind: KindInsufficientCredit, Balance: balance}
	}

	start := time.Now()
	image, err := r.provider.GenerateImage(ctx, prompt)
	r.metrics.ObserveProviderDuration(r.providerName, time.Since(start))
	if err != nil {
		r.metrics.IncProviderFailure(r.providerName, providerKind(err))
		r.logger.Warn("image provider failed",
			"user_id", userID,
			"provider", r.providerName,
			"error", err,
		)
		return Result{}, &Error{Kind: KindProvider, Balance: balance, Err: err}
	}

	// The image exists now; a client disconnect must not skip the debit.
	debitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), debitTimeout)
	defer cancel()

	remaining, err := r.ledger.DecrementCredits(debitCtx, userID, CostPerImage)
	if err != nil {
		r.logger.Error("credit debit failed after successful generation",
			"user_id", userID,
			"provider", r.providerName,
			"balance", balance,
			"error", err,
		)
		r.publish(events.Event{
			Type:       events.TypeCreditDebitFailed,
			UserID:     userID,
			Provider:   r.providerName,
			Balance:    balance,
			Amount:     CostPerImage,
			ImageBytes: len(image),
			Error:      err.Error(),
		})
		return Result{Image: image, RemainingCredit: balance, Debited: false}, nil
	}

	r.metrics.IncCreditsDebited(CostPerImage)
	r.publish(events.Event{
		Type:       events.TypeGenerated,
		UserID:     userID,
		Provider:   r.providerName,
		Balance:    remaining,
		Amount:     CostPerImage,
		ImageBytes: len(image),
	})

	return Result{Image: image, RemainingCredit: remaining, Debited: true}, nil
}

func (r *Relay) publish(event events.Event) {
	if r.events == nil {
		return
	}
	r.events.PublishAsync(event)
}

func providerKind(err error) string {
	if kind := provider.KindOf(err); kind != "" {
		return string(kind)
	}
	return "unknown"
}
