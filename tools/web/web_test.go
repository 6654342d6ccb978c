package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Test</title><script>var x = 1;</script></head>
<body><article><h1>Heading</h1><p>Hello from test server</p></article></body></html>`))
	}))
	defer srv.Close()

	out, err := New().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Hello from test server") {
		t.Errorf("content = %q", out)
	}
	if strings.Contains(out, "var x") {
		t.Errorf("script leaked into content: %q", out)
	}
}

func TestFetchPlainAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data.json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(" {\"a\":1}\n"))
		case "/broken.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("not a pdf"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	f := New()
	ctx := context.Background()

	if out, err := f.Fetch(ctx, srv.URL+"/data.json"); err != nil || out != `{"a":1}` {
		t.Errorf("json = %q, %v", out, err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/missing"); err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("404 err = %v", err)
	}
	if _, err := f.Fetch(ctx, srv.URL+"/broken.pdf"); err == nil || !strings.Contains(err.Error(), "pdf") {
		t.Errorf("broken pdf err = %v", err)
	}
	if _, err := f.Fetch(ctx, "file:///etc/passwd"); err == nil {
		t.Error("non-http scheme accepted")
	}
}

func TestStripHTML(t *testing.T) {
	got := stripHTML([]byte(`<div>One   two</div><style>p{}</style><p>three<br>four</p><noscript>x</noscript>`))
	if got != "One two\nthree\nfour" {
		t.Errorf("stripHTML = %q", got)
	}
}

func TestActionTruncates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("A", 10000)))
	}))
	defer srv.Close()

	a, err := New().Action()
	if err != nil {
		t.Fatal(err)
	}
	args, _ := json.Marshal(Args{URL: srv.URL})
	out, err := a.Call(context.Background(), args)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) > DefaultMaxChars+100 || !strings.HasSuffix(out, "... (truncated)") {
		t.Errorf("content not truncated: %d bytes", len(out))
	}

	out, _ = a.Call(context.Background(), json.RawMessage(`{"url":"ftp://x"}`))
	if !strings.HasPrefix(out, "Fetch error: invalid URL") {
		t.Errorf("bad url = %q", out)
	}
}
