package responses

import (
	"context"
	"errors"
	"strings"
	"testing"

	codeact "github.com/nevindra/codeact"
)

// buildSSE constructs a mock SSE stream from event payloads.
func buildSSE(payloads ...string) string {
	var sb strings.Builder
	for _, p := range payloads {
		sb.WriteString("event: x\n")
		sb.WriteString("data: ")
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func collect(t *testing.T, sse string) ([]codeact.ProviderEvent, codeact.Response, error) {
	t.Helper()
	ch := make(chan codeact.ProviderEvent, 64)
	resp, err := StreamSSE(context.Background(), "test", strings.NewReader(sse), ch)
	var events []codeact.ProviderEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events, resp, err
}

func TestStreamSSE_TextAndToolCall(t *testing.T) {
	sse := buildSSE(
		`{"type":"response.created","response":{"id":"resp_1","status":"in_progress","output":[]}}`,
		`{"type":"response.output_text.delta","item_id":"msg_1","delta":"Let me "}`,
		`{"type":"response.output_text.delta","item_id":"msg_1","delta":"check."}`,
		`{"type":"response.output_item.added","item":{"type":"function_call","id":"fc_1","call_id":"call_1","name":"get_price","arguments":""}}`,
		`{"type":"response.function_call_arguments.delta","item_id":"fc_1","delta":"{\"code\":"}`,
		`{"type":"response.function_call_arguments.delta","item_id":"fc_1","delta":"\"1\"}"}`,
		`{"type":"response.completed","response":{"id":"resp_1","status":"completed","output":[`+
			`{"type":"message","id":"msg_1","role":"assistant","content":[{"type":"output_text","text":"Let me check."}]},`+
			`{"type":"function_call","id":"fc_1","call_id":"call_1","name":"get_price","arguments":"{\"code\":\"1\"}","status":"completed"}]}}`,
	)

	events, resp, err := collect(t, sse)
	if err != nil {
		t.Fatalf("StreamSSE returned error: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("expected 5 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != codeact.ProviderTextDelta || events[0].Delta != "Let me " || events[0].ItemID != "msg_1" {
		t.Errorf("event 0 = %+v", events[0])
	}
	added := events[2]
	if added.Type != codeact.ProviderItemAdded || added.Item == nil || added.Item.CallID != "call_1" || added.ItemID != "fc_1" {
		t.Errorf("item added = %+v", added)
	}
	if events[4].Type != codeact.ProviderArgumentsDelta || events[4].ItemID != "fc_1" {
		t.Errorf("event 4 = %+v", events[4])
	}

	if resp.ID != "resp_1" {
		t.Errorf("response id = %q", resp.ID)
	}
	if len(resp.Output) != 2 {
		t.Fatalf("expected 2 output items, got %d", len(resp.Output))
	}
	if resp.Output[0].Raw == nil {
		t.Error("structured assistant message should keep its raw encoding")
	}
	fc := resp.Output[1]
	if fc.Type != codeact.TypeFunctionCall || fc.Name != "get_price" || fc.Arguments != `{"code":"1"}` {
		t.Errorf("function call = %+v", fc)
	}
}

func TestStreamSSE_ErrorEventDoesNotEndStream(t *testing.T) {
	sse := buildSSE(
		`{"type":"error","code":"server_error","message":"upstream hiccup"}`,
		`{"type":"error","code":"rate_limit"}`,
		`{"type":"response.completed","response":{"id":"resp_2","output":[]}}`,
	)
	events, resp, err := collect(t, sse)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Message != "upstream hiccup" || events[1].Message != "rate_limit" {
		t.Errorf("events = %+v", events)
	}
	if resp.ID != "resp_2" {
		t.Errorf("response id = %q", resp.ID)
	}
}

func TestStreamSSE_MissingCompleted(t *testing.T) {
	sse := buildSSE(`{"type":"response.output_text.delta","item_id":"m","delta":"partial"}`)
	events, resp, err := collect(t, sse)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("events = %+v", events)
	}
	if resp.ID != "" {
		t.Errorf("expected empty response, got %+v", resp)
	}
}

func TestStreamSSE_Failed(t *testing.T) {
	sse := buildSSE(`{"type":"response.failed","response":{"id":"resp_3","status":"failed","error":{"code":"server_error","message":"model overloaded"}}}`)
	_, _, err := collect(t, sse)
	var llmErr *codeact.ErrLLM
	if !errors.As(err, &llmErr) {
		t.Fatalf("err = %v, want *ErrLLM", err)
	}
	if llmErr.Message != "model overloaded" || llmErr.Provider != "test" {
		t.Errorf("ErrLLM = %+v", llmErr)
	}
}

func TestStreamSSE_SkipsMalformedAndHandlesTrailingEvent(t *testing.T) {
	sse := "data: {not json}\n\n" +
		": keep-alive comment\n\n" +
		`data: {"type":"response.completed","response":{"id":"resp_4","output":[]}}`
	_, resp, err := collect(t, sse)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "resp_4" {
		t.Errorf("response id = %q", resp.ID)
	}
}

func TestStreamSSE_MultiLineData(t *testing.T) {
	sse := "data: {\"type\":\"response.output_text.delta\",\n" +
		"data: \"item_id\":\"m\",\"delta\":\"hi\"}\n\n"
	events, _, err := collect(t, sse)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Delta != "hi" {
		t.Errorf("events = %+v", events)
	}
}

func TestStreamSSE_ConsumerGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan codeact.ProviderEvent) // unbuffered, never read
	sse := buildSSE(`{"type":"response.output_text.delta","item_id":"m","delta":"x"}`)
	_, err := StreamSSE(ctx, "test", strings.NewReader(sse), ch)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, open := <-ch; open {
		t.Error("channel not closed")
	}
}
