package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	codeact "github.com/nevindra/codeact"
)

// DefaultBaseURL is the OpenAI API base.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider implements codeact.Provider for the Responses API. Every tool is
// advertised as a strict function tool.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	name    string
	logger  *slog.Logger

	store           *bool
	instructions    string
	temperature     *float64
	maxOutputTokens int
	effort          string
}

// NewProvider creates a Responses API provider. baseURL defaults to
// DefaultBaseURL; the /responses path is appended.
func NewProvider(apiKey, model, baseURL string, opts ...Option) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		name:    "responses",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name (default "responses", configurable via WithName).
func (p *Provider) Name() string { return p.name }

// Model returns the model identifier sent with every request.
func (p *Provider) Model() string { return p.model }

// Stream posts req with stream enabled and forwards incremental events into ch.
// ch is closed on every path.
func (p *Provider) Stream(ctx context.Context, req codeact.Request, ch chan<- codeact.ProviderEvent) (codeact.Response, error) {
	resp, err := p.sendHTTP(ctx, p.buildBody(req))
	if err != nil {
		close(ch)
		return codeact.Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		close(ch)
		return codeact.Response{}, p.httpErr(resp)
	}

	// StreamSSE closes ch when done.
	out, err := StreamSSE(ctx, p.name, resp.Body, ch)
	if err == nil && out.ID == "" && p.logger != nil {
		p.logger.Warn("stream ended without a completed response", "provider", p.name, "model", p.model)
	}
	return out, err
}

func (p *Provider) buildBody(req codeact.Request) CreateRequest {
	body := CreateRequest{
		Model:           p.model,
		Input:           req.Messages,
		Stream:          true,
		Store:           p.store,
		Instructions:    p.instructions,
		Temperature:     p.temperature,
		MaxOutputTokens: p.maxOutputTokens,
	}
	if body.Input == nil {
		body.Input = []codeact.Message{}
	}
	if p.effort != "" {
		body.Reasoning = &Reasoning{Effort: p.effort}
	}
	for _, t := range req.Tools {
		t.Strict = true
		body.Tools = append(body.Tools, Tool{Type: "function", ToolSpec: t})
	}
	return body
}

// sendHTTP marshals the request body and sends it to the responses endpoint.
func (p *Provider) sendHTTP(ctx context.Context, body CreateRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &codeact.ErrLLM{Provider: p.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, &codeact.ErrLLM{Provider: p.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	return p.client.Do(httpReq)
}

// httpErr reads the response body and returns an ErrHTTP for retry middleware.
// Parses the Retry-After header when present (429/503 responses).
func (p *Provider) httpErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &codeact.ErrHTTP{
		Status:     resp.StatusCode,
		Body:       string(body),
		RetryAfter: codeact.ParseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// Compile-time interface check.
var _ codeact.Provider = (*Provider)(nil)
