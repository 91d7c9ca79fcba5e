package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const openAIName = "openai"

// OpenAIConfig configures the OpenAI image client.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API root, e.g. "https://api.openai.com/v1".
	BaseURL string
	// Model defaults to dall-e-3.
	Model string
	// Size defaults to 1024x1024.
	Size string
}

// OpenAI generates images through the OpenAI images API.
type OpenAI struct {
	client  *openai.Client
	model   string
	size    string
	limiter *rate.Limiter
	opts    Options
}

// NewOpenAI creates an OpenAI image client.
func NewOpenAI(cfg OpenAIConfig, opts Options) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = opts.httpClient()

	model := cfg.Model
	if model == "" {
		model = openai.CreateImageModelDallE3
	}
	size := cfg.Size
	if size == "" {
		size = openai.CreateImageSize1024x1024
	}

	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		size:    size,
		limiter: opts.limiter(),
		opts:    opts,
	}
}

// GenerateImage requests a single base64 image and returns the decoded bytes.
func (c *OpenAI) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.timeout())
	defer cancel()

	if err := wait(ctx, openAIName, c.limiter); err != nil {
		return nil, err
	}

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.model,
		Size:           c.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, &Error{Provider: openAIName, Kind: KindMalformedResponse, Err: errors.New("no image in response")}
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, &Error{Provider: openAIName, Kind: KindMalformedResponse, Err: fmt.Errorf("decode image: %w", err)}
	}

	return data, nil
}

func classifyOpenAIError(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &Error{Provider: openAIName, Kind: kindForStatus(apiErr.HTTPStatusCode), StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &Error{Provider: openAIName, Kind: kindForStatus(reqErr.HTTPStatusCode), StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return transportError(openAIName, err)
}
