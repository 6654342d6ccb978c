package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nevindra/codeact/skills"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"simple words", "hello world", []string{"hello", "world"}},
		{"mixed case", "Hello World", []string{"hello", "world"}},
		{"camel case", "fetchCryptoData", []string{"fetchcryptodata", "fetch", "crypto", "data"}},
		{"acronym", "parseHTMLPage", []string{"parsehtmlpage", "parse", "html", "page"}},
		{"snake case", "get_cryptoInfo", []string{"get_cryptoinfo", "get", "crypto", "info"}},
		{"punctuation", "foo, bar. baz!", []string{"foo", "bar", "baz"}},
		{"short words filtered", "a I go do it", []string{"go", "do", "it"}},
		{"empty string", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenize(tt.input); !slices.Equal(got, tt.want) {
				t.Errorf("tokenize(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

var testSources = []skills.Source{
	{Skill: "crypto", Path: "crypto/fetchCryptoData.ts", Content: "// Input: { ticker: string }\nexport async function fetchCryptoData() {\n  return fetch(url);\n}"},
	{Skill: "web", Path: "web/searchWeb.ts", Content: "// Search the web for a query.\nexport async function searchWeb(query: string) {\n  return query;\n}"},
}

func TestSearchCamelCase(t *testing.T) {
	hits := newSearchIndex(testSources).search("crypto data")
	if len(hits) == 0 || hits[0].source.Path != "crypto/fetchCryptoData.ts" {
		t.Fatalf("hits = %+v", hits)
	}
	if !strings.Contains(hits[0].snippet, "fetchCryptoData") {
		t.Errorf("snippet = %q", hits[0].snippet)
	}
}

func TestSearchNoMatch(t *testing.T) {
	idx := newSearchIndex(testSources)
	if hits := idx.search("kubernetes"); len(hits) != 0 {
		t.Errorf("hits = %+v", hits)
	}
	if hits := idx.search("  "); hits != nil {
		t.Errorf("blank query hits = %+v", hits)
	}
	if out := formatHits("kubernetes", nil); !strings.Contains(out, "No skill source") {
		t.Errorf("formatHits = %q", out)
	}
}

func TestFormatHits(t *testing.T) {
	out := formatHits("web", newSearchIndex(testSources).search("web"))
	if !strings.Contains(out, "skill://web/searchWeb.ts") {
		t.Errorf("missing resource uri:\n%s", out)
	}
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "crypto", "fetchCryptoData.ts")
	os.MkdirAll(filepath.Dir(p), 0o755)
	os.WriteFile(p, []byte("export function fetchCryptoData() {}\n"), 0o644)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	actions, resources, err := build(root, "", logger)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, a := range actions {
		names = append(names, a.Name())
	}
	if !slices.Equal(names, []string{"get_cryptoInfo", "search_news", "search_skills"}) {
		t.Errorf("actions = %v", names)
	}
	if len(resources) != 1 || resources[0].URI != "skill://crypto/fetchCryptoData.ts" {
		t.Fatalf("resources = %+v", resources)
	}
	text, _ := resources[0].Read(context.Background())
	if !strings.Contains(text, "fetchCryptoData") {
		t.Errorf("resource text = %q", text)
	}

	out, err := actions[2].Call(context.Background(), []byte(`{"query":"crypto"}`))
	if err != nil || !strings.Contains(out, "crypto/fetchCryptoData.ts") {
		t.Errorf("search_skills = %q, %v", out, err)
	}

	actions, resources, err = build(filepath.Join(root, "missing"), "", logger)
	if err != nil || len(actions) != 2 || resources != nil {
		t.Errorf("missing dir: %d actions, %v, %v", len(actions), resources, err)
	}
}
