// Package web fetches pages and documents and extracts their readable text.
package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	codeact "github.com/nevindra/codeact"
)

// ActionName is the name of the page fetch action.
const ActionName = "fetch_page"

// DefaultMaxChars bounds the text returned to the model.
const DefaultMaxChars = 8000

// Args is the input of a page fetch.
type Args struct {
	URL string `json:"url" jsonschema:"Absolute http(s) URL of the page or PDF to read"`
}

// Fetcher downloads URLs and extracts readable text.
type Fetcher struct {
	client   *http.Client
	maxChars int
}

// New creates a Fetcher with a 15-second timeout.
func New() *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		maxChars: DefaultMaxChars,
	}
}

// Action returns the Defined action backed by f. Fetch errors are returned
// to the model as text.
func (f *Fetcher) Action() (*codeact.DefinedAction, error) {
	return codeact.Define(ActionName,
		"Fetch a URL and extract its readable text. Works for articles, documentation and PDF files.",
		func(ctx context.Context, args Args) (string, error) {
			content, err := f.Fetch(ctx, args.URL)
			if err != nil {
				return "Fetch error: " + err.Error(), nil
			}
			if len(content) > f.maxChars {
				content = content[:f.maxChars] + "\n... (truncated)"
			}
			return content, nil
		})
}

// Fetch downloads rawURL and extracts readable text. PDFs are extracted page
// by page; HTML goes through readability with a plain-text fallback.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid URL: %q", rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; codeact/1.0)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/pdf" || bytes.HasPrefix(body, []byte("%PDF-")):
		return extractPDF(body)
	case mediaType == "application/json", strings.HasPrefix(mediaType, "text/plain"):
		return strings.TrimSpace(string(body)), nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		text := strings.TrimSpace(article.TextContent)
		if article.Title != "" {
			text = article.Title + "\n\n" + text
		}
		return text, nil
	}
	return stripHTML(body), nil
}

// extractPDF returns the text of every non-empty page, separated by blank lines.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("pdf has no extractable text")
	}
	return strings.Join(pages, "\n\n"), nil
}

// stripHTML returns the visible text of an HTML document, one line per
// block of text. Script and style contents are dropped.
func stripHTML(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	var lines []string
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(lines, "\n")
		case html.StartTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); isHidden(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := strings.Join(strings.Fields(string(z.Text())), " "); text != "" {
				lines = append(lines, text)
			}
		}
	}
}

func isHidden(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template":
		return true
	}
	return false
}
