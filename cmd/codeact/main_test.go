package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	codeact "github.com/nevindra/codeact"
	"github.com/nevindra/codeact/internal/config"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestReadInput(t *testing.T) {
	got, err := readInput([]string{"price", "of", "BTC"}, strings.NewReader("ignored"))
	if err != nil || got != "price of BTC" {
		t.Errorf("args: %q, %v", got, err)
	}
	got, err = readInput(nil, strings.NewReader("  from stdin\n"))
	if err != nil || got != "from stdin" {
		t.Errorf("stdin: %q, %v", got, err)
	}
	if _, err := readInput(nil, strings.NewReader(" \n")); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestTextPrinter(t *testing.T) {
	var out, diag bytes.Buffer
	p := &textPrinter{out: &out, diag: &diag}
	p.Print(codeact.Event{Type: codeact.EventInit, Message: "INIT"})
	p.Print(codeact.Event{Type: codeact.EventToolStart, ToolRound: 1, Name: "get_cryptoInfo"})
	p.Print(codeact.Event{Type: codeact.EventToolResult, ToolRound: 1, Name: "get_cryptoInfo", OutputPreview: "42"})
	p.Print(codeact.Event{Type: codeact.EventTextDelta, Delta: "BTC is "})
	p.Print(codeact.Event{Type: codeact.EventTextDelta, Delta: "42"})
	p.Print(codeact.Event{Type: codeact.EventTextEnd, FullText: "BTC is 42"})
	if out.String() != "BTC is 42\n" {
		t.Errorf("out = %q", out.String())
	}
	if !strings.Contains(diag.String(), "[round 1] get_cryptoInfo ->\n42") {
		t.Errorf("diag = %q", diag.String())
	}
}

func TestJSONPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &jsonPrinter{w: &out}
	p.Print(codeact.Event{Type: codeact.EventInit, Message: "INIT"})
	p.Print(codeact.Event{Type: codeact.EventDone, Message: "END"})
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	var ev codeact.Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil || ev.Type != codeact.EventDone {
		t.Errorf("event = %+v, %v", ev, err)
	}
}

func TestHTMLPrinter(t *testing.T) {
	var out bytes.Buffer
	p := &htmlPrinter{w: &out}
	p.Print(codeact.Event{Type: codeact.EventTextEnd, FullText: "draft"})
	p.Print(codeact.Event{Type: codeact.EventTextEnd, FullText: "**BTC** is up\n\n| a | b |\n|---|---|\n| 1 | 2 |"})
	if err := p.Flush(); err != nil {
		t.Fatal(err)
	}
	html := out.String()
	if !strings.Contains(html, "<strong>BTC</strong>") || !strings.Contains(html, "<table>") {
		t.Errorf("html = %q", html)
	}
	if strings.Contains(html, "draft") {
		t.Error("only the last answer should be rendered")
	}
}

func TestHTMLPrinterError(t *testing.T) {
	var out bytes.Buffer
	p := &htmlPrinter{w: &out}
	p.Print(codeact.Event{Type: codeact.EventError, Kind: "HTTPError", Message: "http 500: boom"})
	p.Flush()
	if !strings.Contains(out.String(), "<strong>Error:</strong> http 500: boom") {
		t.Errorf("html = %q", out.String())
	}
}

func TestRenderHTMLEscapesRaw(t *testing.T) {
	html, err := renderHTML("<script>alert(1)</script>")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(html, "<script>") {
		t.Errorf("raw html passed through: %q", html)
	}
}

func TestBuiltinActions(t *testing.T) {
	actions, err := builtinActions(config.Default().Tools, discard)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, a := range actions {
		names = append(names, a.Name())
	}
	if strings.Join(names, ",") != "get_cryptoInfo,search_news,fetch_page" {
		t.Errorf("names = %v", names)
	}
	if _, err := builtinActions(config.ToolsConfig{Enabled: []string{"nope"}}, discard); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestOpenCheckpointer(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	none, closer, err := openCheckpointer(ctx, config.CheckpointConfig{}, discard)
	if err != nil || none != nil || closer != nil {
		t.Errorf("empty backend: %v %v", none, err)
	}

	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.CheckpointConfig{Backend: backend, Path: filepath.Join(dir, backend)}
			cp, closer, err := openCheckpointer(ctx, cfg, discard)
			if err != nil {
				t.Fatal(err)
			}
			if closer != nil {
				defer closer()
			}
			saved := codeact.NewCheckpoint("s", []codeact.Message{codeact.UserMessage("hi")})
			if err := cp.Save(ctx, saved); err != nil {
				t.Fatal(err)
			}
			got, err := cp.LoadLatest(ctx, "s")
			if err != nil || got.ID != saved.ID {
				t.Errorf("LoadLatest = %+v, %v", got, err)
			}
		})
	}

	if _, _, err := openCheckpointer(ctx, config.CheckpointConfig{Backend: "redis", DSN: "::bad"}, discard); err == nil {
		t.Error("expected error for bad redis url")
	}
}

func TestWireInProcess(t *testing.T) {
	cfg := config.Default()
	cfg.Checkpoint = config.CheckpointConfig{Backend: "file", Path: t.TempDir(), Session: "s"}
	d, err := wire(context.Background(), cfg, discard, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if d.agent == nil || d.checkpoints == nil {
		t.Fatalf("deps = %+v", d)
	}
	if n := d.agent.Registry().Len(); n != 3 {
		t.Errorf("registry size = %d, want 3", n)
	}
}

func TestWireSubprocess(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "skills", "crypto"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "skills", "crypto", "index.ts"), []byte("export {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Checkpoint = config.CheckpointConfig{}
	cfg.Sandbox.Strategy = "subprocess"
	cfg.Sandbox.Interpreter = "sh"
	cfg.Sandbox.SourceRoot = root
	cfg.Sandbox.SkillsDir = "skills"
	cfg.Sandbox.AllowedSkills = []string{"crypto"}
	cfg.MCP.Command = "never-started"

	d, err := wire(context.Background(), cfg, discard, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	var names []string
	for _, e := range d.agent.Registry().Catalogue() {
		if e.Defined() {
			t.Errorf("defined action %q registered for subprocess sandbox", e.Name)
		}
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "run_ts" {
		t.Errorf("actions = %v, want [run_ts]", names)
	}
}
