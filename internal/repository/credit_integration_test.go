//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promptpix/promptpix/internal/model"
	"github.com/promptpix/promptpix/internal/testutil"
)

// ============================================================================
// Credit Ledger Integration Tests
// ============================================================================

func TestIntegrationCredit_Balance(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, 7)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	balance, err := repo.CreditBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	if balance != 7 {
		t.Errorf("balance = %d, want 7", balance)
	}
}

func TestIntegrationCredit_BalanceUnknownUser(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	_, err := repo.CreditBalance(ctx, "missing-user")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIntegrationCredit_DecrementReturnsNewBalance(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, 1)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	balance, err := repo.DecrementCredits(ctx, user.ID, 1)
	if err != nil {
		t.Fatalf("DecrementCredits failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	// The ledger itself does not clamp at zero.
	balance, err = repo.DecrementCredits(ctx, user.ID, 1)
	if err != nil {
		t.Fatalf("DecrementCredits failed: %v", err)
	}
	if balance != -1 {
		t.Errorf("balance = %d, want -1", balance)
	}
}

func TestIntegrationCredit_DecrementUnknownUser(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	_, err := repo.DecrementCredits(ctx, "missing-user", 1)
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIntegrationCredit_ConcurrentDecrementsNotLost(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	const start, n = 50, 40
	user := testutil.NewTestUser(t, start)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.DecrementCredits(ctx, user.ID, 1); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("DecrementCredits failed: %v", err)
	}

	balance, err := repo.CreditBalance(ctx, user.ID)
	if err != nil {
		t.Fatalf("CreditBalance failed: %v", err)
	}
	if balance != start-n {
		t.Errorf("balance = %d, want %d", balance, start-n)
	}
}

func TestIntegrationCredit_AddCredits(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, 0)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	balance, err := repo.AddCredits(ctx, user.ID, 100)
	if err != nil {
		t.Fatalf("AddCredits failed: %v", err)
	}
	if balance != 100 {
		t.Errorf("balance = %d, want 100", balance)
	}
}

// ============================================================================
// User & Transaction Integration Tests
// ============================================================================

func TestIntegrationUser_DuplicateEmail(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	first := testutil.NewTestUser(t, 5)
	if err := repo.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	second := testutil.NewTestUser(t, 5)
	second.Email = first.Email
	if err := repo.CreateUser(ctx, second); !errors.Is(err, ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

func TestIntegrationUser_GetByEmail(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, 5)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if got.ID != user.ID || got.CreditBalance != 5 {
		t.Errorf("got %+v, want id %s balance 5", got, user.ID)
	}
}

func TestIntegrationTransaction_CreateAndList(t *testing.T) {
	ctx, repo := newRepoTestEnv(t)

	user := testutil.NewTestUser(t, 0)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	basic, _ := model.LookupPlan(model.PlanBasic)
	business, _ := model.LookupPlan(model.PlanBusiness)
	now := time.Now()

	txs := []*model.Transaction{
		model.NewTransaction(testutil.UniqueID("tx"), user.ID, basic, now.Add(-time.Hour)),
		model.NewTransaction(testutil.UniqueID("tx"), user.ID, business, now),
	}
	for _, tx := range txs {
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction failed: %v", err)
		}
	}

	all, err := repo.ListTransactionsByUser(ctx, TransactionFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("ListTransactionsByUser failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}
	if all[0].Plan != model.PlanBusiness {
		t.Errorf("newest first: got %s, want %s", all[0].Plan, model.PlanBusiness)
	}

	onlyBasic, err := repo.ListTransactionsByUser(ctx, TransactionFilter{
		UserID: user.ID,
		Plans:  []string{model.PlanBasic},
	})
	if err != nil {
		t.Fatalf("ListTransactionsByUser failed: %v", err)
	}
	if len(onlyBasic) != 1 || onlyBasic[0].Plan != model.PlanBasic {
		t.Errorf("plan filter returned %+v", onlyBasic)
	}

	got, err := repo.GetTransactionByID(ctx, txs[0].ID)
	if err != nil {
		t.Fatalf("GetTransactionByID failed: %v", err)
	}
	if got.Payment {
		t.Error("transaction should be unsettled")
	}
}

func newRepoTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()

	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetSchema(ctx, pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, NewFromPool(pool)
}
