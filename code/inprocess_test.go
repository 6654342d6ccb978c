package code

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	codeact "github.com/nevindra/codeact"
)

type priceArgs struct {
	Symbol string `json:"symbol" jsonschema:"ticker symbol"`
}

func testRegistry(t *testing.T) *codeact.Registry {
	t.Helper()
	price := codeact.MustDefine("get_price", "Price of a coin.",
		func(_ context.Context, in priceArgs) (string, error) {
			if in.Symbol == "FAIL" {
				return "", errors.New("upstream down")
			}
			return "price of " + in.Symbol, nil
		})
	explode, err := codeact.NewDefinedAction("explode", "Always panics.", nil,
		func(context.Context, json.RawMessage) (string, error) { panic("kaboom") })
	if err != nil {
		t.Fatal(err)
	}
	free := codeact.Freeform("analyze", "Free analysis.", map[string]any{
		"DATA":  []int{1, 2, 3},
		"greet": func(name string) string { return "hi " + name },
	})
	reg, err := codeact.NewRegistry(price, explode, free, codeact.Freeform("bare", "No globals.", nil))
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func runSnippet(t *testing.T, r *InProcessRunner, action, code string) string {
	t.Helper()
	return r.Run(context.Background(), codeact.CodeRequest{
		Code:     code,
		Action:   action,
		Registry: testRegistry(t),
	}).Stdout
}

func TestInProcessConsole(t *testing.T) {
	r := NewInProcessRunner()
	tests := []struct {
		name string
		code string
		want string
	}{
		{"string", `console.log("hello")`, "hello"},
		{"mixed arguments", `console.log("a", {x: 1}, [1, 2], 3, true, null)`, `a {"x":1} [1,2] 3 true null`},
		{"undefined", `console.log(undefined)`, "undefined"},
		{"multiple lines", "console.log(1)\nconsole.info(2)", "1\n2"},
		{"leading whitespace trimmed", `console.log("   padded")`, "padded"},
		{"typescript", "const n: number = 21;\ninterface P { v: number }\nconst p: P = { v: n * 2 };\nconsole.log(p.v)", "42"},
		{"no output", `const x = 1`, noOutputFeedback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runSnippet(t, r, "bare", tt.code); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInProcessFreeformGlobals(t *testing.T) {
	r := NewInProcessRunner()
	got := runSnippet(t, r, "analyze", `console.log(DATA.length, greet("bob"))`)
	if got != "3 hi bob" {
		t.Errorf("output = %q", got)
	}

	// Globals of another action are not visible.
	got = runSnippet(t, r, "bare", `console.log(typeof DATA, typeof api)`)
	if got != "undefined undefined" {
		t.Errorf("output = %q", got)
	}
}

func TestInProcessDefinedAction(t *testing.T) {
	r := NewInProcessRunner()

	got := runSnippet(t, r, "get_price", `const r = await api.get_price.call({symbol: "BTC"}); console.log(r)`)
	if got != "price of BTC" {
		t.Errorf("output = %q", got)
	}

	got = runSnippet(t, r, "get_price", `console.log(await api.get_price.call({symbol: 7}))`)
	if !strings.HasPrefix(got, "[SANDBOX_FEEDBACK] Invalid arguments for action:") || !strings.Contains(got, "- symbol:") {
		t.Errorf("schema feedback = %q", got)
	}

	got = runSnippet(t, r, "get_price", `await api.get_price.call({symbol: "FAIL"})`)
	if !strings.HasPrefix(got, "[SANDBOX_ERROR]:") || !strings.Contains(got, "upstream down") {
		t.Errorf("handler error = %q", got)
	}

	got = runSnippet(t, r, "get_price", `try { await api.explode.call() } catch (e) { console.log("caught", e instanceof Error) }`)
	if got != "caught true" {
		t.Errorf("panic = %q", got)
	}
}

func TestInProcessErrors(t *testing.T) {
	r := NewInProcessRunner()

	got := runSnippet(t, r, "bare", `throw new Error("boom")`)
	if got != "[SANDBOX_ERROR]: Error: boom" {
		t.Errorf("throw = %q", got)
	}

	got = runSnippet(t, r, "bare", `const = ;`)
	if !strings.HasPrefix(got, "[SANDBOX_ERROR]: SyntaxError:") {
		t.Errorf("syntax error = %q", got)
	}

	got = runSnippet(t, r, "bare", `await fetch("https://example.com")`)
	if !strings.Contains(got, "Network is disabled.") {
		t.Errorf("fetch = %q", got)
	}

	got = runSnippet(t, r, "bare", `require("fs")`)
	if !strings.Contains(got, "Imports are disabled.") {
		t.Errorf("require = %q", got)
	}

	got = r.Run(context.Background(), codeact.CodeRequest{Code: `console.log(1)`, Action: "missing", Registry: testRegistry(t)}).Stdout
	if got != "[SANDBOX_ERROR]: unknown action: missing" {
		t.Errorf("unknown action = %q", got)
	}
}

func TestInProcessTimers(t *testing.T) {
	r := NewInProcessRunner()
	code := `
const order: string[] = [];
setTimeout(() => order.push("b"), 20);
setTimeout(() => order.push("a"), 5);
const id = setTimeout(() => order.push("never"), 10);
clearTimeout(id);
await new Promise(res => setTimeout(res, 40));
console.log(order.join(","));
`
	if got := runSnippet(t, r, "bare", code); got != "a,b" {
		t.Errorf("output = %q", got)
	}
}

func TestInProcessTimeout(t *testing.T) {
	r := NewInProcessRunner()
	for name, code := range map[string]string{
		"busy loop":     `console.log("start"); while (true) {}`,
		"pending timer": `console.log("start"); await new Promise(res => setTimeout(res, 60000))`,
	} {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			got := r.Run(context.Background(), codeact.CodeRequest{
				Code:     code,
				Action:   "bare",
				Registry: testRegistry(t),
				Timeout:  100 * time.Millisecond,
			}).Stdout
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("run took %v", elapsed)
			}
			want := "start\n[SANDBOX_ERROR]: Script execution timed out after 100ms"
			if got != want {
				t.Errorf("output = %q, want %q", got, want)
			}
		})
	}
}

func TestInProcessOutputCap(t *testing.T) {
	r := NewInProcessRunner(WithMaxOutput(64))
	got := runSnippet(t, r, "bare", `for (let i = 0; ; i++) console.log("line " + i)`)
	body, marker, ok := strings.Cut(got, "\n[TRUNCATED] Output exceeded 64 bytes")
	if !ok || marker != "" {
		t.Fatalf("output = %q, want truncation marker at end", got)
	}
	if len(body) > 64 {
		t.Errorf("captured %d bytes, cap is 64", len(body))
	}
	if !strings.HasPrefix(body, "line 0\nline 1") {
		t.Errorf("body = %q", body)
	}
}

func TestInProcessFreshRuntime(t *testing.T) {
	r := NewInProcessRunner()
	runSnippet(t, r, "bare", `globalThis.leak = 1; console.log("set")`)
	if got := runSnippet(t, r, "bare", `console.log(typeof leak)`); got != "undefined" {
		t.Errorf("state leaked between runs: %q", got)
	}
}
