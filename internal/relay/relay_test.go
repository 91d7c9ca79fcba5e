package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/promptpix/promptpix/internal/events"
	"github.com/promptpix/promptpix/internal/metrics"
	"github.com/promptpix/promptpix/internal/provider"
	"github.com/promptpix/promptpix/internal/repository"
)

type fakeLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	debitErr error
	readErr  error
	debits   int
}

func newFakeLedger(userID string, balance int64) *fakeLedger {
	return &fakeLedger{balances: map[string]int64{userID: balance}}
}

func (l *fakeLedger) CreditBalance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return 0, l.readErr
	}
	b, ok := l.balances[userID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return b, nil
}

func (l *fakeLedger) DecrementCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debitErr != nil {
		return 0, l.debitErr
	}
	if _, ok := l.balances[userID]; !ok {
		return 0, repository.ErrUserNotFound
	}
	l.balances[userID] -= amount
	l.debits++
	return l.balances[userID], nil
}

func (l *fakeLedger) balance(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

type fakeProvider struct {
	image []byte
	err   error
	calls atomic.Int32
	last  atomic.Value
}

func (p *fakeProvider) GenerateImage(_ context.Context, prompt string) ([]byte, error) {
	p.calls.Add(1)
	p.last.Store(prompt)
	if p.err != nil {
		return nil, p.err
	}
	return p.image, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) PublishAsync(event events.Event) {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0x01}

type relayEnv struct {
	relay    *Relay
	ledger   *fakeLedger
	provider *fakeProvider
	events   *recordingPublisher
	metrics  *metrics.InMemoryRecorder
}

func newRelayEnv(t *testing.T, balance int64) *relayEnv {
	t.Helper()
	env := &relayEnv{
		ledger:   newFakeLedger("user-1", balance),
		provider: &fakeProvider{image: pngBytes},
		events:   &recordingPublisher{},
		metrics:  metrics.NewInMemory(),
	}
	env.relay = New(env.ledger, env.provider, Options{
		ProviderName: "fake",
		Events:       env.events,
		Metrics:      env.metrics,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return env
}

func TestGenerate_Success(t *testing.T) {
	t.Parallel()
	env := newRelayEnv(t, 1)

	res, err := env.relay.Generate(context.Background(), "user-1", "a red fox")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !bytes.Equal(res.Image, pngBytes) {
		t.Errorf("image bytes differ from provider output")
	}
	if res.RemainingCredit != 0 {
		t.Errorf("RemainingCredit = %d, want 0", res.RemainingCredit)
	}
	if !res.Debited {
		t.Error("Debited = false, want true")
	}
	if got := env.ledger.balance("user-1"); got != 0 {
		t.Errorf("ledger balance = %d, want 0", got)
	}
	if got := env.provider.last.Load(); got != "a red fox" {
		t.Errorf("provider prompt = %v, want %q", got, "a red fox")
	}
	if got := env.events.types(); len(got) != 1 || got[0] != events.TypeGenerated {
		t.Errorf("events = %v, want [%s]", got, events.TypeGenerated)
	}
	snap := env.metrics.Snapshot()
	if snap.Generations[metrics.OutcomeSuccess] != 1 || snap.CreditsDebited != 1 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestGenerate_DebitsExactlyOne(t *testing.T) {
	t.Parallel()
	env := newRelayEnv(t, 7)

	res, err := env.relay.Generate(context.Background(), "user-1", "lighthouse at dusk")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.RemainingCredit != 6 || env.ledger.balance("user-1") != 6 {
		t.Errorf("remaining = %d, ledger = %d, want 6", res.RemainingCredit, env.ledger.balance("user-1"))
	}
}

func TestGenerate_InsufficientCreditSkipsProvider(t *testing.T) {
	t.Parallel()

	for _, balance := range []int64{0, -1} {
		env := newRelayEnv(t, balance)

		_, err := env.relay.Generate(context.Background(), "user-1", "a red fox")
		if !errors.Is(err, ErrInsufficientCredit) {
			t.Fatalf("balance %d: error = %v, want insufficient credit", balance, err)
		}
		var rerr *Error
		if !errors.As(err, &rerr) || rerr.Balance != balance {
			t.Errorf("balance %d: error balance = %+v", balance, rerr)
		}
		if n := env.provider.calls.Load(); n != 0 {
			t.Errorf("balance %d: provider called %d times, want 0", balance, n)
		}
		if got := env.ledger.balance("user-1"); got != balance {
			t.Errorf("balance %d: ledger changed to %d", balance, got)
		}
	}
}

func TestGenerate_InvalidRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		userID string
		prompt string
	}{
		{"empty prompt", "user-1", ""},
		{"blank prompt", "user-1", "   \n\t"},
		{"missing user", "", "a red fox"},
		{"unknown user", "ghost", "a red fox"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newRelayEnv(t, 5)

			_, err := env.relay.Generate(context.Background(), tt.userID, tt.prompt)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("error = %v, want invalid request", err)
			}
			if n := env.provider.calls.Load(); n != 0 {
				t.Errorf("provider called %d times, want 0", n)
			}
			if got := env.ledger.balance("user-1"); got != 5 {
				t.Errorf("ledger balance = %d, want 5", got)
			}
		})
	}
}

func TestGenerate_BalanceReadFailureIsFault(t *testing.T) {
	t.Parallel()
	env := newRelayEnv(t, 5)
	env.ledger.readErr = errors.New("connection refused")

	_, err := env.relay.Generate(context.Background(), "user-1", "a red fox")
	if !errors.Is(err, ErrFault) {
		t.Fatalf("error = %v, want fault", err)
	}
	if KindOf(err) != KindFault {
		t.Errorf("KindOf() = %s, want %s", KindOf(err), KindFault)
	}
}

func TestGenerate_ProviderFailureLeavesBalance(t *testing.T) {
	t.Parallel()
	env := newRelayEnv(t, 3)
	env.provider.err = &provider.Error{Provider: "fake", Kind: provider.KindTimeout, Err: context.DeadlineExceeded}

	_, err := env.relay.Generate(context.Background(), "user-1", "a red fox")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want provider error", err)
	}
	if provider.KindOf(err) != provider.KindTimeout {
		t.Errorf("provider kind = %q, want timeout", provider.KindOf(err))
	}
	if got := env.ledger.balance("user-1"); got != 3 {
		t.Errorf("ledger balance = %d, want 3", got)
	}
	if env.ledger.debits != 0 {
		t.Errorf("debits = %d, want 0", env.ledger.debits)
	}
	if n := env.provider.calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want exactly 1 (no retry)", n)
	}
	if got := env.metrics.Snapshot().ProviderFailures["timeout"]; got != 1 {
		t.Errorf("timeout failures = %d, want 1", got)
	}
}

func TestGenerate_DebitFailureReturnsImageUndebited(t *testing.T) {
	t.Parallel()
	env := newRelayEnv(t, 4)
	env.ledger.debitErr = errors.New("deadlock detected")

	res, err := env.relay.Generate(context.Background(), "user-1", "a red fox")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Debited {
		t.Error("Debited = true, want false")
	}
	if res.RemainingCredit != 4 {
		t.Errorf("RemainingCredit = %d, want 4", res.RemainingCredit)
	}
	if !bytes.Equal(res.Image, pngBytes) {
		t.Error("image not returned")
	}
	if got := env.events.types(); len(got) != 1 || got[0] != events.TypeCreditDebitFailed {
		t.Errorf("events = %v, want [%s]", got, events.TypeCreditDebitFailed)
	}
	if got := env.metrics.Snapshot().Generations[metrics.OutcomeLedgerError]; got != 1 {
		t.Errorf("ledger_error outcomes = %d, want 1", got)
	}
}

func TestGenerate_DebitSurvivesCanceledRequest(t *testing.T) {
	t.Parallel()
	env := newRelayEnv(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	env.relay.provider = providerFunc(func(context.Context, string) ([]byte, error) {
		cancel()
		return pngBytes, nil
	})

	res, err := env.relay.Generate(ctx, "user-1", "a red fox")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !res.Debited || env.ledger.balance("user-1") != 1 {
		t.Errorf("debited = %v, balance = %d, want true/1", res.Debited, env.ledger.balance("user-1"))
	}
}

func TestGenerate_ConcurrentDebits(t *testing.T) {
	t.Parallel()

	const (
		start = 50
		n     = 40
	)
	env := newRelayEnv(t, start)

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.relay.Generate(context.Background(), "user-1", "tiled mosaic"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d generations failed", failures.Load())
	}
	if got := env.ledger.balance("user-1"); got != start-n {
		t.Errorf("final balance = %d, want %d", got, start-n)
	}
}

type providerFunc func(ctx context.Context, prompt string) ([]byte, error)

func (f providerFunc) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	return f(ctx, prompt)
}
