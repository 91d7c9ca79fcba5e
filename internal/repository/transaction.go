package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/promptpix/promptpix/internal/model"
)

// ErrTransactionNotFound is returned when a transaction does not exist.
var ErrTransactionNotFound = errors.New("transaction not found")

// maxTransactionsPerPage caps ListTransactionsByUser.
const maxTransactionsPerPage = 100

// CreateTransaction inserts a purchase record.
func (r *Repository) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, plan, credits, amount, payment, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		tx.ID,
		tx.UserID,
		tx.Plan,
		tx.Credits,
		tx.Amount,
		tx.Payment,
		tx.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetTransactionByID retrieves a transaction by its ID.
func (r *Repository) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	query := `
		SELECT id, user_id, plan, credits, amount, payment, date
		FROM transactions
		WHERE id = $1
	`

	tx, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

// TransactionFilter narrows ListTransactionsByUser.
type TransactionFilter struct {
	UserID string
	// Plans restricts results to these plan IDs. Empty means all plans.
	Plans []string
	Limit int
}

// ListTransactionsByUser returns a user's transactions, newest first.
func (r *Repository) ListTransactionsByUser(ctx context.Context, filter TransactionFilter) ([]*model.Transaction, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxTransactionsPerPage {
		limit = maxTransactionsPerPage
	}

	query := `
		SELECT id, user_id, plan, credits, amount, payment, date
		FROM transactions
		WHERE user_id = $1
		  AND (cardinality($2::text[]) = 0 OR plan = ANY($2::text[]))
		ORDER BY date DESC
		LIMIT $3
	`

	plans := filter.Plans
	if plans == nil {
		plans = []string{}
	}

	rows, err := r.pool.Query(ctx, query, filter.UserID, pq.Array(plans), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []*model.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var tx model.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Plan,
		&tx.Credits,
		&tx.Amount,
		&tx.Payment,
		&tx.Date,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
