package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const (
	// DefaultClipDropBaseURL is the public ClipDrop API endpoint.
	DefaultClipDropBaseURL = "https://clipdrop-api.co"

	clipDropName = "clipdrop"
	clipDropPath = "/text-to-image/v1"

	// maxImageBytes caps the response body read from the provider.
	maxImageBytes = 32 << 20
	// maxErrorBodyBytes caps how much of an error body is kept for logs.
	maxErrorBodyBytes = 512
)

// ClipDrop calls the ClipDrop text-to-image API.
type ClipDrop struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
}

// NewClipDrop creates a ClipDrop client. An empty baseURL selects the public endpoint.
func NewClipDrop(apiKey, baseURL string, opts Options) *ClipDrop {
	if baseURL == "" {
		baseURL = DefaultClipDropBaseURL
	}
	return &ClipDrop{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  opts.httpClient(),
		limiter: opts.limiter(),
		opts:    opts,
	}
}

// GenerateImage posts the prompt as multipart form data and returns the image bytes.
func (c *ClipDrop) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	if err := wait(ctx, clipDropName, c.limiter); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("prompt", prompt); err != nil {
		return nil, &Error{Provider: clipDropName, Kind: KindTransport, Err: fmt.Errorf("write form: %w", err)}
	}
	if err := form.Close(); err != nil {
		return nil, &Error{Provider: clipDropName, Kind: KindTransport, Err: fmt.Errorf("close form: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+clipDropPath, &body)
	if err != nil {
		return nil, &Error{Provider: clipDropName, Kind: KindTransport, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, transportError(clipDropName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &Error{
			Provider:   clipDropName,
			Kind:       kindForStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(snippet))),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, transportError(clipDropName, fmt.Errorf("read body: %w", err))
	}
	if len(data) == 0 {
		return nil, &Error{Provider: clipDropName, Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: errors.New("empty image body")}
	}
	if len(data) > maxImageBytes {
		return nil, &Error{Provider: clipDropName, Kind: KindMalformedResponse, StatusCode: resp.StatusCode, Err: errors.New("image body too large")}
	}

	return data, nil
}
