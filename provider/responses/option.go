package responses

import (
	"log/slog"
	"net/http"
)

// Option configures a Provider instance.
type Option func(*Provider)

// WithName sets the provider name returned by Name() (default "responses").
// Use this to distinguish providers in logs and observability.
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// WithHTTPClient sets a custom HTTP client (e.g. for timeouts or proxies).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets the logger for stream diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithStore controls whether the API retains responses server-side.
func WithStore(store bool) Option {
	return func(p *Provider) { p.store = &store }
}

// WithInstructions sets a system-level instruction sent with every request.
func WithInstructions(s string) Option {
	return func(p *Provider) { p.instructions = s }
}

// WithTemperature sets the sampling temperature (0.0–2.0).
func WithTemperature(t float64) Option {
	return func(p *Provider) { p.temperature = &t }
}

// WithMaxOutputTokens caps the tokens generated per response.
func WithMaxOutputTokens(n int) Option {
	return func(p *Provider) { p.maxOutputTokens = n }
}

// WithReasoningEffort sets the reasoning effort for reasoning models.
func WithReasoningEffort(effort string) Option {
	return func(p *Provider) { p.effort = effort }
}
