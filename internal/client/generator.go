package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/promptpix/promptpix/internal/handler/dto"
	"github.com/promptpix/promptpix/internal/relay"
)

// State is the generator's request lifecycle.
type State int

// Lifecycle states. Succeeded and Failed return to Submitting on the next Submit.
const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrEmptyPrompt is returned without contacting the server.
	ErrEmptyPrompt = errors.New("please provide a prompt")
	// ErrBusy is returned when a generation is already in flight.
	ErrBusy = errors.New("generation already in progress")
)

// API is the subset of Client the Generator needs.
type API interface {
	GenerateImage(ctx context.Context, prompt string) (*dto.GenerateImageResponse, error)
	Credits(ctx context.Context) (*dto.CreditsResponse, error)
}

// Snapshot is a point-in-time view of a Generator.
type Snapshot struct {
	State    State
	Prompt   string
	Image    []byte
	MIME     string
	Credits  int64
	UserName string
	Err      error
}

// Generator drives one prompt box: submit, wait, show the image or the failure.
type Generator struct {
	api    API
	logger *slog.Logger

	// OnInsufficientCredit runs after a refusal for lack of credit,
	// typically to send the user to the purchase page.
	OnInsufficientCredit func(balance int64)

	mu   sync.Mutex
	snap Snapshot
}

// NewGenerator creates a Generator in StateIdle.
func NewGenerator(api API, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{api: api, logger: logger}
}

// Snapshot returns the current state.
func (g *Generator) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

// State returns the current lifecycle state.
func (g *Generator) State() State {
	return g.Snapshot().State
}

// Reset clears the last result and returns to StateIdle.
// It is a no-op while a request is in flight.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.snap.State == StateSubmitting {
		return
	}
	g.snap = Snapshot{Credits: g.snap.Credits, UserName: g.snap.UserName}
}

// Submit generates an image for prompt and returns the decoded bytes.
func (g *Generator) Submit(ctx context.Context, prompt string) ([]byte, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	g.mu.Lock()
	if g.snap.State == StateSubmitting {
		g.mu.Unlock()
		return nil, ErrBusy
	}
	g.snap.State = StateSubmitting
	g.snap.Prompt = prompt
	g.snap.Image = nil
	g.snap.MIME = ""
	g.snap.Err = nil
	g.mu.Unlock()

	img, mime, balance, err := g.generate(ctx, prompt)

	g.mu.Lock()
	if err != nil {
		g.snap.State = StateFailed
		g.snap.Err = err
	} else {
		g.snap.State = StateSucceeded
		g.snap.Image = img
		g.snap.MIME = mime
	}
	if balance != nil {
		g.snap.Credits = *balance
	}
	g.mu.Unlock()

	g.RefreshCredits(ctx)

	if err != nil && g.OnInsufficientCredit != nil && insufficientCredit(err, balance) {
		var b int64
		if balance != nil {
			b = *balance
		}
		g.OnInsufficientCredit(b)
	}
	return img, err
}

// insufficientCredit reports a refusal for lack of credit. The server refuses
// at any balance <= 0, so late reconciliation can leave a negative balance.
func insufficientCredit(err error, balance *int64) bool {
	if IsStatus(err, http.StatusPaymentRequired) {
		return true
	}
	return balance != nil && *balance <= 0
}

func (g *Generator) generate(ctx context.Context, prompt string) ([]byte, string, *int64, error) {
	resp, err := g.api.GenerateImage(ctx, prompt)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, "", apiErr.CreditBalance, err
		}
		return nil, "", nil, err
	}
	if !resp.Success {
		return nil, "", resp.CreditBalance, &APIError{StatusCode: 200, Message: resp.Message, CreditBalance: resp.CreditBalance}
	}

	mime, img, err := relay.DecodeDataURI(resp.ResultImage)
	if err != nil {
		return nil, "", resp.CreditBalance, fmt.Errorf("decode image: %w", err)
	}
	return img, mime, resp.CreditBalance, nil
}

// RefreshCredits reloads the balance and user name. Failures are logged
// and leave the previous values in place.
func (g *Generator) RefreshCredits(ctx context.Context) {
	resp, err := g.api.Credits(ctx)
	if err != nil {
		g.logger.Warn("refresh credits failed", "error", err)
		return
	}
	g.mu.Lock()
	g.snap.Credits = resp.Credits
	g.snap.UserName = resp.User.Name
	g.mu.Unlock()
}
