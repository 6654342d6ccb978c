// Package storetest is a conformance suite shared by the Checkpointer
// implementations under store/.
package storetest

import (
	"context"
	"errors"
	"testing"

	codeact "github.com/nevindra/codeact"
)

// Run exercises c against the Checkpointer contract. c must be empty.
func Run(t *testing.T, c codeact.Checkpointer) {
	t.Helper()
	ctx := context.Background()

	t.Run("LoadLatestEmpty", func(t *testing.T) {
		_, err := c.LoadLatest(ctx, "missing")
		if !errors.Is(err, codeact.ErrNoCheckpoint) {
			t.Fatalf("err = %v, want ErrNoCheckpoint", err)
		}
	})

	t.Run("SaveThenLoadLatest", func(t *testing.T) {
		first := codeact.NewCheckpoint("s1", []codeact.Message{codeact.UserMessage("one")})
		second := codeact.NewCheckpoint("s1", []codeact.Message{
			codeact.UserMessage("one"),
			codeact.FunctionCallMessage("fc_1", "call_1", "get_price", `{"code":"x"}`),
			codeact.FunctionCallOutputMessage("call_1", "42"),
			codeact.AssistantMessage("two"),
		})
		for _, cp := range []codeact.Checkpoint{first, second} {
			if err := c.Save(ctx, cp); err != nil {
				t.Fatalf("Save: %v", err)
			}
		}
		got, err := c.LoadLatest(ctx, "s1")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if got.ID != second.ID || got.CreatedAt != second.CreatedAt || got.Session != "s1" {
			t.Errorf("got %s@%d, want %s@%d", got.ID, got.CreatedAt, second.ID, second.CreatedAt)
		}
		if len(got.Messages) != 4 {
			t.Fatalf("messages = %+v", got.Messages)
		}
		if fc := got.Messages[1]; fc.Type != codeact.TypeFunctionCall || fc.CallID != "call_1" || fc.Arguments != `{"code":"x"}` {
			t.Errorf("function call = %+v", fc)
		}
		if out := got.Messages[2]; out.Output != "42" {
			t.Errorf("output = %+v", out)
		}
	})

	t.Run("SessionsIsolated", func(t *testing.T) {
		if err := c.Save(ctx, codeact.NewCheckpoint("s2", []codeact.Message{codeact.UserMessage("other")})); err != nil {
			t.Fatalf("Save: %v", err)
		}
		got, err := c.LoadLatest(ctx, "s2")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if len(got.Messages) != 1 || got.Messages[0].Content != "other" {
			t.Errorf("s2 messages = %+v", got.Messages)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		if err := c.Clear(ctx, "s1"); err != nil {
			t.Fatalf("Clear: %v", err)
		}
		if _, err := c.LoadLatest(ctx, "s1"); !errors.Is(err, codeact.ErrNoCheckpoint) {
			t.Errorf("after Clear err = %v", err)
		}
		if _, err := c.LoadLatest(ctx, "s2"); err != nil {
			t.Errorf("Clear touched another session: %v", err)
		}
		if err := c.Clear(ctx, "never-saved"); err != nil {
			t.Errorf("Clear unknown session: %v", err)
		}
	})
}
