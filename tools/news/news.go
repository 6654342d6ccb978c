// Package news searches recent news through the Tavily search API.
package news

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	codeact "github.com/nevindra/codeact"
)

// ActionName is the name of the news search action.
const ActionName = "search_news"

// DefaultBaseURL is the Tavily API base.
const DefaultBaseURL = "https://api.tavily.com"

// Args is the input of a news search.
type Args struct {
	Query string `json:"query" jsonschema:"News/search query, e.g. 'bitcoin spot ETF flows'"`
}

// Source is one search hit.
type Source struct {
	URL           string `json:"url"`
	Title         string `json:"title"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date,omitempty"`
}

// Result is a search answer and its sources.
type Result struct {
	Answer  string   `json:"answer,omitempty"`
	Results []Source `json:"results"`
}

// Digest renders r as the answer followed by numbered sources.
func (r Result) Digest() string {
	answer := r.Answer
	if answer == "" {
		answer = "No preview answer"
	}
	lines := []string{answer}
	for i, s := range r.Results {
		lines = append(lines, fmt.Sprintf("[%d]: %s\n%s", i+1, s.URL, s.Content))
	}
	return strings.Join(lines, "\n")
}

// Client calls the Tavily search endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	maxResults int
	days       int
	client     *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets the logger for failed searches.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxResults sets the number of sources requested. Default: 6.
func WithMaxResults(n int) Option {
	return func(c *Client) { c.maxResults = n }
}

// WithDays sets how many days back to search. Default: 1.
func WithDays(n int) Option {
	return func(c *Client) { c.days = n }
}

// New creates a Client. An empty apiKey is allowed; searches then report
// the missing key as their result.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		maxResults: 6,
		days:       1,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type searchRequest struct {
	Query         string `json:"query"`
	Topic         string `json:"topic"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	Days          int    `json:"days"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Search runs one news query.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("query is required")
	}
	if c.apiKey == "" {
		return Result{}, fmt.Errorf("Tavily API key is not set")
	}
	payload, err := json.Marshal(searchRequest{
		Query:         query,
		Topic:         "news",
		SearchDepth:   "basic",
		MaxResults:    c.maxResults,
		Days:          c.days,
		IncludeAnswer: true,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("search error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read error: %w", err)
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("news search non-OK response",
			"status", resp.StatusCode,
			"content_type", resp.Header.Get("Content-Type"),
			"preview", truncate(string(body), 500))
		return Result{}, fmt.Errorf("failed to search news: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		c.logger.Error("news search JSON parse failed", "preview", truncate(string(body), 500), "error", err)
		return Result{}, fmt.Errorf("invalid JSON response from Tavily")
	}
	return out, nil
}

// Action returns the Defined action backed by c.
func (c *Client) Action() (*codeact.DefinedAction, error) {
	return codeact.NewDefinedAction(ActionName,
		"Search recent news on the web.\n"+
			"**DO NOT USE IT** for crypto token prices or market metrics; query those with the tool designed for that purpose.",
		json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","minLength":1,"description":"News/search query, e.g. 'bitcoin spot ETF flows'"}},"required":["query"],"additionalProperties":false}`),
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args Args
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			res, err := c.Search(ctx, args.Query)
			if err != nil {
				return "News search error: " + err.Error(), nil
			}
			if len(res.Results) == 0 {
				return fmt.Sprintf("No news found for query: %q. Try refining the query.", args.Query), nil
			}
			return res.Digest(), nil
		})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
