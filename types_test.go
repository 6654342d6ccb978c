package codeact

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestUserMessage(t *testing.T) {
	msg := UserMessage("hello")
	if msg.Role != "user" {
		t.Errorf("Role = %q, want %q", msg.Role, "user")
	}
	if msg.Content != "hello" {
		t.Errorf("Content = %q, want %q", msg.Content, "hello")
	}
	if msg.Type != TypeMessage {
		t.Errorf("Type = %q, want %q", msg.Type, TypeMessage)
	}
}

func TestFunctionCallMessageJSON(t *testing.T) {
	msg := FunctionCallMessage("fc_1", "call_1", "calculate", `{"code":"console.log(1)"}`)
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, want := range []string{`"type":"function_call"`, `"call_id":"call_1"`, `"status":"completed"`} {
		if !strings.Contains(s, want) {
			t.Errorf("marshalled %s missing %s", s, want)
		}
	}
	if strings.Contains(s, `"role"`) {
		t.Errorf("function call should not carry a role: %s", s)
	}
}

func TestFunctionCallOutputEmptyKeepsOutput(t *testing.T) {
	data, err := json.Marshal(FunctionCallOutputMessage("call_1", ""))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"function_call_output","call_id":"call_1","output":""}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	// Other items still omit an empty output.
	data, err = json.Marshal(UserMessage("hi"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"output"`) {
		t.Errorf("user message carries output: %s", data)
	}
}

func TestMessageRawPassthrough(t *testing.T) {
	raw := `{"type":"message","id":"msg_1","role":"assistant","status":"completed","content":[{"type":"output_text","text":"hi"}]}`
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Role != "assistant" || msg.ID != "msg_1" {
		t.Errorf("decoded = %+v", msg)
	}
	if string(msg.Raw) != raw {
		t.Errorf("Raw = %s, want original encoding", msg.Raw)
	}
	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != raw {
		t.Errorf("Marshal = %s, want %s", out, raw)
	}
}

func TestMessageStringContentHasNoRaw(t *testing.T) {
	var msg Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"price of BTC"}`), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Content != "price of BTC" {
		t.Errorf("Content = %q", msg.Content)
	}
	if msg.Raw != nil {
		t.Errorf("Raw = %s, want nil", msg.Raw)
	}
	if !msg.IsRole("user") {
		t.Error("IsRole(user) = false")
	}
}

func TestWithoutSystem(t *testing.T) {
	msgs := []Message{
		SystemMessage("prompt"),
		UserMessage("q"),
		FunctionCallMessage("fc", "c", "calculate", "{}"),
		FunctionCallOutputMessage("c", "4"),
	}
	got := WithoutSystem(msgs)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].Role != "user" {
		t.Errorf("first = %+v", got[0])
	}
}
