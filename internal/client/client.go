// Package client is a Go client for the promptpix HTTP API, plus the
// request state machine a front-end drives while a generation is in flight.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/promptpix/promptpix/internal/handler/dto"
)

// DefaultTimeout outlasts the server's provider timeout.
const DefaultTimeout = 2 * time.Minute

// maxResponseSize caps decoded bodies; images arrive base64 encoded.
const maxResponseSize = 32 << 20

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	// CreditBalance is set when the server reported the caller's balance.
	CreditBalance *int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("promptpix: %s (status %d)", e.Message, e.StatusCode)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// Client calls the promptpix API.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", cfg.BaseURL)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		http:    hc,
		token:   cfg.Token,
	}, nil
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the session token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, name, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	err := c.do(ctx, http.MethodPost, "/api/user/register", dto.RegisterRequest{
		Name: name, Email: email, Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Login authenticates and stores the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.AuthResponse, error) {
	var resp dto.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/user/login", dto.LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Logout revokes the current token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/api/user/logout", nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Credits returns the caller's balance and name.
func (c *Client) Credits(ctx context.Context) (*dto.CreditsResponse, error) {
	var resp dto.CreditsResponse
	if err := c.do(ctx, http.MethodGet, "/api/user/credits", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Plans lists purchasable credit plans.
func (c *Client) Plans(ctx context.Context) (*dto.PlansResponse, error) {
	var resp dto.PlansResponse
	if err := c.do(ctx, http.MethodGet, "/api/user/plans", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Purchase starts a purchase of planID.
func (c *Client) Purchase(ctx context.Context, planID string) (*dto.PurchaseResponse, error) {
	var resp dto.PurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/api/user/purchase", dto.PurchaseRequest{PlanID: planID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateImage submits prompt. A failed generation is returned as *APIError.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (*dto.GenerateImageResponse, error) {
	var resp dto.GenerateImageResponse
	if err := c.do(ctx, http.MethodPost, "/api/image/generate-image", dto.GenerateImageRequest{Prompt: prompt}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure struct {
			Message       string `json:"message"`
			CreditBalance *int64 `json:"creditBalance"`
		}
		_ = json.Unmarshal(raw, &failure)
		if failure.Message == "" {
			failure.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: failure.Message, CreditBalance: failure.CreditBalance}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
