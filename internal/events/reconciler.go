package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptpix/promptpix/internal/metrics"
	"github.com/promptpix/promptpix/internal/repository"
)

// reconciledKeyPrefix marks stream entries whose debit has been applied.
const reconciledKeyPrefix = "events:reconciled:"

// ReconciledTTL bounds how long a reconciled marker is kept. It must
// outlast the stream's pending-entry retention.
const ReconciledTTL = 7 * 24 * time.Hour

// Debiter applies a credit debit.
type Debiter interface {
	DecrementCredits(ctx context.Context, userID string, amount int64) (int64, error)
}

// Reconciler applies debits that failed inline during generation.
// Each stream entry is debited at most once. The image was already
// delivered, so the debit is applied whatever the current balance is and
// can leave the user below zero.
type Reconciler struct {
	ledger  Debiter
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewReconciler creates a Reconciler.
func NewReconciler(ledger Debiter, client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Reconciler {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		ledger:  ledger,
		redis:   client,
		logger:  logger.With("component", "events.reconciler"),
		metrics: recorder,
	}
}

// HandleEvents debits every credit_debit_failed event in batch.
// Other event types are ignored.
func (r *Reconciler) HandleEvents(ctx context.Context, batch []Message) error {
	for _, msg := range batch {
		if msg.Event.Type != TypeCreditDebitFailed {
			continue
		}
		if err := r.reconcile(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, msg Message) error {
	key := reconciledKeyPrefix + msg.ID

	claimed, err := r.redis.SetNX(ctx, key, msg.Event.UserID, ReconciledTTL).Result()
	if err != nil {
		return fmt.Errorf("claim %s: %w", msg.ID, err)
	}
	if !claimed {
		return nil
	}

	balance, err := r.ledger.DecrementCredits(ctx, msg.Event.UserID, msg.Event.Amount)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			r.logger.Warn("dropping late debit for missing user",
				"user_id", msg.Event.UserID,
				"message_id", msg.ID,
			)
			return nil
		}
		if delErr := r.redis.Del(ctx, key).Err(); delErr != nil {
			r.logger.Error("failed to release reconcile marker", "message_id", msg.ID, "error", delErr)
		}
		return fmt.Errorf("debit %s: %w", msg.Event.UserID, err)
	}

	r.metrics.IncCreditsReconciled(msg.Event.Amount)
	r.logger.Info("late debit applied",
		"user_id", msg.Event.UserID,
		"amount", msg.Event.Amount,
		"balance", balance,
		"message_id", msg.ID,
	)
	return nil
}
