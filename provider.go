package codeact

import "context"

// Provider abstracts a streaming LLM backend.
type Provider interface {
	// Stream sends req and forwards incremental events into ch until the
	// response completes. Implementations close ch before returning.
	// The returned Response is the terminal response object; an empty ID
	// means the stream ended without a completion.
	Stream(ctx context.Context, req Request, ch chan<- ProviderEvent) (Response, error)
	// Name returns the provider name (e.g. "responses").
	Name() string
}

// Request is one model turn: the conversation so far plus the tool list.
type Request struct {
	Messages []Message
	Tools    []ToolSpec
}

// Response is the terminal object of a provider stream.
type Response struct {
	ID     string
	Output []Message
}

// ProviderEventType identifies an incremental provider event.
type ProviderEventType string

const (
	ProviderTextDelta      ProviderEventType = "response.output_text.delta"
	ProviderArgumentsDelta ProviderEventType = "response.function_call_arguments.delta"
	ProviderItemAdded      ProviderEventType = "response.output_item.added"
	ProviderError          ProviderEventType = "error"
)

// ProviderEvent is an incremental event from a provider stream.
type ProviderEvent struct {
	Type ProviderEventType
	// Delta carries text or argument tokens.
	Delta string
	// ItemID correlates deltas with the output item they belong to.
	ItemID string
	// Item is the added output item (ProviderItemAdded only).
	Item *Message
	// Message describes a provider-reported error (ProviderError only).
	Message string
}
