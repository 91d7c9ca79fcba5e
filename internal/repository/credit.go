package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CreditBalance returns the user's current credit balance.
func (r *Repository) CreditBalance(ctx context.Context, userID string) (int64, error) {
	query := `SELECT credit_balance FROM users WHERE id = $1`

	var balance int64
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to get credit balance: %w", err)
	}

	return balance, nil
}

// DecrementCredits subtracts amount from the user's balance and returns the new balance.
// The update is a single statement so concurrent debits for one user serialize on the
// row lock and none are lost. Non-negativity is not enforced here.
func (r *Repository) DecrementCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	return r.adjustCredits(ctx, userID, -amount)
}

// AddCredits adds amount to the user's balance and returns the new balance.
func (r *Repository) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	return r.adjustCredits(ctx, userID, amount)
}

func (r *Repository) adjustCredits(ctx context.Context, userID string, delta int64) (int64, error) {
	query := `
		UPDATE users
		SET credit_balance = credit_balance + $2
		WHERE id = $1
		RETURNING credit_balance
	`

	var balance int64
	if err := r.pool.QueryRow(ctx, query, userID, delta).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to adjust credit balance: %w", err)
	}

	return balance, nil
}
