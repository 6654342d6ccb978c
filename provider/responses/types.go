// Package responses implements codeact.Provider over the OpenAI Responses
// API with server-sent events.
package responses

import (
	"encoding/json"

	codeact "github.com/nevindra/codeact"
)

// --- Request types ---

// CreateRequest is the POST /responses body.
type CreateRequest struct {
	Model           string            `json:"model"`
	Input           []codeact.Message `json:"input"`
	Tools           []Tool            `json:"tools,omitempty"`
	Stream          bool              `json:"stream"`
	Store           *bool             `json:"store,omitempty"`
	Instructions    string            `json:"instructions,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
	MaxOutputTokens int               `json:"max_output_tokens,omitempty"`
	Reasoning       *Reasoning        `json:"reasoning,omitempty"`
}

// Tool is a function tool definition.
type Tool struct {
	Type string `json:"type"` // "function"
	codeact.ToolSpec
}

// Reasoning configures reasoning models.
type Reasoning struct {
	Effort string `json:"effort,omitempty"` // "low", "medium", "high"
}

// --- Stream event types ---

// streamEvent is the union of the event payloads this package reads. Fields
// not relevant to an event type stay zero.
type streamEvent struct {
	Type     string          `json:"type"`
	ItemID   string          `json:"item_id"`
	Delta    string          `json:"delta"`
	Item     json.RawMessage `json:"item"`
	Message  string          `json:"message"`
	Code     string          `json:"code"`
	Response *responseObject `json:"response"`
}

type responseObject struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Output            []codeact.Message `json:"output"`
	Error             *apiError         `json:"error"`
	IncompleteDetails *struct {
		Reason string `json:"reason"`
	} `json:"incomplete_details"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	eventTextDelta      = "response.output_text.delta"
	eventArgumentsDelta = "response.function_call_arguments.delta"
	eventItemAdded      = "response.output_item.added"
	eventCompleted      = "response.completed"
	eventIncomplete     = "response.incomplete"
	eventFailed         = "response.failed"
	eventError          = "error"
)
