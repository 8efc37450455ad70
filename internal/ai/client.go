package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/keshon/server-miyabi/pkg/retrylimit"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second

	transportRetries = 1
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	Temperature   float64
	MaxTokens     int64
	RatePerSecond float64
	HTTPClient    *http.Client
}

// Client sends single-prompt chat completions to an OpenAI compatible API.
type Client struct {
	api     openai.Client
	model   string
	temp    float64
	maxTok  int64
	limiter *retrylimit.AdaptiveLimiter
}

// APIError is a non-2xx answer from the completion endpoint.
type APIError struct {
	Status int
	Err    error
}

func (e *APIError) Error() string { return fmt.Sprintf("completion http %d: %v", e.Status, e.Err) }
func (e *APIError) Unwrap() error { return e.Err }
func (e *APIError) HTTPStatus() int { return e.Status }

// New builds a Client. An empty API key is rejected.
func New(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, fmt.Errorf("ai: api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = 2
	}

	api := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(key),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(transportRetries),
		option.WithRequestTimeout(timeout),
	)
	return &Client{
		api:     api,
		model:   model,
		temp:    opts.Temperature,
		maxTok:  opts.MaxTokens,
		limiter: retrylimit.NewAdaptiveLimiter(rate.Limit(rps), rate.Limit(rps/4), rate.Limit(rps*2), rate.Limit(rps/4), 0.5),
	}, nil
}

// Complete sends prompt as one user message and returns the cleaned text of
// the first choice.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if c.temp > 0 {
		params.Temperature = openai.Float(c.temp)
	}
	if c.maxTok > 0 {
		params.MaxTokens = openai.Int(c.maxTok)
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			wrapped := &APIError{Status: apiErr.StatusCode, Err: err}
			if retrylimit.IsThrottle(wrapped) {
				c.limiter.Throttled()
			}
			log.Printf("[AI] action=complete status=%d err=%v", apiErr.StatusCode, err)
			return "", wrapped
		}
		log.Printf("[AI] action=complete err=%v", err)
		return "", err
	}
	c.limiter.Success()

	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	reply := cleanReply(resp.Choices[0].Message.Content)
	log.Printf("[AI] action=complete model=%s latency=%s reply_len=%d", c.model, time.Since(start).Round(time.Millisecond), len(reply))
	return reply, nil
}
