package codeact

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

// scriptedTurn is one provider response: events streamed in order, then the
// terminal response or error. before runs first, inside Stream.
type scriptedTurn struct {
	before func()
	events []ProviderEvent
	resp   Response
	err    error
}

// scriptedProvider replays turns and records every request it receives.
type scriptedProvider struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(_ context.Context, req Request, ch chan<- ProviderEvent) (Response, error) {
	defer close(ch)
	p.mu.Lock()
	i := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if i >= len(p.turns) {
		return Response{}, errors.New("unexpected provider call")
	}
	turn := p.turns[i]
	if turn.before != nil {
		turn.before()
	}
	for _, ev := range turn.events {
		ch <- ev
	}
	return turn.resp, turn.err
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// recorder collects events delivered to a Sink.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// functionCall builds a provider output item calling name with code.
func functionCall(id, callID, name, code string) Message {
	args, _ := json.Marshal(CodeArgs{Code: code})
	return Message{Type: TypeFunctionCall, ID: id, CallID: callID, Name: name, Arguments: string(args), Status: "completed"}
}

// assistantItem builds an assistant output item as a provider returns it.
func assistantItem(id, text string) Message {
	raw, _ := json.Marshal(map[string]any{
		"type":    "message",
		"id":      id,
		"role":    "assistant",
		"status":  "completed",
		"content": []map[string]string{{"type": "output_text", "text": text}},
	})
	return Message{Type: TypeMessage, ID: id, Role: "assistant", Raw: raw}
}

// staticRunner returns the same output for every snippet and counts calls.
type staticRunner struct {
	mu     sync.Mutex
	output string
	reqs   []CodeRequest
}

func (s *staticRunner) Run(_ context.Context, req CodeRequest) CodeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return CodeResult{Stdout: s.output}
}

func (s *staticRunner) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

func mustRegistry(t testing.TB, actions ...Action) *Registry {
	t.Helper()
	r, err := NewRegistry(actions...)
	if err != nil {
		t.Fatal(err)
	}
	return r
}
