// Package crypto prices cryptocurrencies through the coinpaprika ticker API
// and exposes the lookup as a Defined action.
package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	codeact "github.com/nevindra/codeact"
)

// ActionName is the name of the price lookup action.
const ActionName = "get_cryptoInfo"

// DefaultBaseURL is the coinpaprika API base.
const DefaultBaseURL = "https://api.coinpaprika.com/v1"

// Args is the input of a price lookup.
type Args struct {
	Ticker   string  `json:"ticker" jsonschema:"The official ticker symbol of the cryptocurrency, a short uppercase code used on exchanges and in APIs (e.g. 'BTC' for Bitcoin, 'ETH' for Ethereum, 'SOL' for Solana)."`
	Name     string  `json:"name" jsonschema:"The official name of the cryptocurrency used on exchanges and in APIs (e.g. 'bitcoin', 'ethereum', 'dogecoin')."`
	Quantity float64 `json:"quantity,omitempty" jsonschema:"The amount of cryptocurrency. Defaults to 1 if not specified."`
}

// Client fetches tickers from coinpaprika.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
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

// WithLogger sets the logger used for failed lookups.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client with a 10-second timeout.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type ticker struct {
	Rank        int     `json:"rank"`
	TotalSupply float64 `json:"total_supply"`
	BetaValue   float64 `json:"beta_value"`
	Quotes      struct {
		USD struct {
			Price               float64 `json:"price"`
			Volume24h           float64 `json:"volume_24h"`
			MarketCap           float64 `json:"market_cap"`
			PercentChange24h    float64 `json:"percent_change_24h"`
			PercentChange7d     float64 `json:"percent_change_7d"`
			PercentChange30d    float64 `json:"percent_change_30d"`
			PercentChange1y     float64 `json:"percent_change_1y"`
			ATHPrice            float64 `json:"ath_price"`
			ATHDate             string  `json:"ath_date"`
			PercentFromPriceATH float64 `json:"percent_from_price_ath"`
		} `json:"USD"`
	} `json:"quotes"`
}

// Fetch returns a plain-text report on the coin described by args.
func (c *Client) Fetch(ctx context.Context, args Args) (string, error) {
	if args.Ticker == "" || args.Name == "" {
		return "", fmt.Errorf("ticker and name are required")
	}
	if args.Quantity <= 0 {
		args.Quantity = 1
	}
	id := strings.ToLower(args.Ticker) + "-" + strings.ToLower(strings.ReplaceAll(strings.TrimSpace(args.Name), " ", "-"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tickers/"+id, nil)
	if err != nil {
		return "", fmt.Errorf("invalid request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d for %s", resp.StatusCode, id)
	}

	var t ticker
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&t); err != nil {
		return "", fmt.Errorf("decode ticker: %w", err)
	}
	return format(args, t), nil
}

func format(args Args, t ticker) string {
	p := message.NewPrinter(language.English)
	usd := func(v float64) string { return p.Sprintf("$%.2f", v) }
	pct := func(v float64) string { return fmt.Sprintf("%.2f%%", v) }
	q := t.Quotes.USD

	priceLine := "Current price: " + usd(q.Price)
	if args.Quantity != 1 {
		priceLine = fmt.Sprintf("Total price for %g %s: %s", args.Quantity, args.Ticker, usd(q.Price*args.Quantity))
	}
	ath := q.ATHDate
	if d, err := time.Parse(time.RFC3339, q.ATHDate); err == nil {
		ath = d.Format("Jan 2, 2006")
	}

	return strings.Join([]string{
		fmt.Sprintf("=== %s (%s) ===", strings.ToUpper(args.Name), args.Ticker),
		priceLine,
		fmt.Sprintf("Rank: %d", t.Rank),
		"Market Cap: " + usd(q.MarketCap),
		"24h Volume: " + usd(q.Volume24h),
		"Price change in the last 24h: " + pct(q.PercentChange24h),
		"Price change in the last 7d: " + pct(q.PercentChange7d),
		"Price change in the last 30d: " + pct(q.PercentChange30d),
		"Price change in the last 1y: " + pct(q.PercentChange1y),
		fmt.Sprintf("All-Time High: %s on %s", usd(q.ATHPrice), ath),
		fmt.Sprintf("Currently %s from ATH", pct(q.PercentFromPriceATH)),
		p.Sprintf("Total Supply: %.0f", t.TotalSupply),
		fmt.Sprintf("Beta value: %.2f", t.BetaValue),
	}, "\n")
}

// Schema returns the argument schema: Args with a positive quantity.
func Schema() (json.RawMessage, error) {
	s, err := jsonschema.For[Args](nil)
	if err != nil {
		return nil, err
	}
	if q, ok := s.Properties["quantity"]; ok {
		zero := 0.0
		q.ExclusiveMinimum = &zero
	}
	return json.Marshal(s)
}

// Action returns the Defined action backed by c. Lookup failures are
// reported to the model as text.
func (c *Client) Action() (*codeact.DefinedAction, error) {
	schema, err := Schema()
	if err != nil {
		return nil, fmt.Errorf("crypto: schema: %w", err)
	}
	return codeact.NewDefinedAction(ActionName,
		"Get the current price and market metrics of a specific cryptocurrency.",
		schema,
		func(ctx context.Context, raw json.RawMessage) (string, error) {
			var args Args
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
			out, err := c.Fetch(ctx, args)
			if err != nil {
				c.logger.Warn("crypto lookup failed", "ticker", args.Ticker, "name", args.Name, "error", err)
				return "Failed to retrieve cryptocurrency data", nil
			}
			return out, nil
		})
}
