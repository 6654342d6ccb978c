package codeact

import (
	"bytes"
	"encoding/json"
)

// MessageType identifies a conversation item.
type MessageType string

const (
	TypeMessage            MessageType = "message"
	TypeFunctionCall       MessageType = "function_call"
	TypeFunctionCallOutput MessageType = "function_call_output"
)

// Message is one item of a conversation: a role message (system, user,
// assistant), a function call made by the model, or the output of that call.
//
// Items returned by a provider that the loop does not interpret (assistant
// output messages with structured content, reasoning items) keep their
// original encoding in Raw and are re-sent verbatim.
type Message struct {
	Type      MessageType `json:"type,omitempty"`
	ID        string      `json:"id,omitempty"`
	Role      string      `json:"role,omitempty"` // "system", "user", "assistant"
	Content   string      `json:"content,omitempty"`
	Status    string      `json:"status,omitempty"`
	Name      string      `json:"name,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
	Output    string      `json:"output,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type messageAlias Message

// MarshalJSON emits Raw unchanged when present. Function call outputs always
// carry an output field.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	if m.Type == TypeFunctionCallOutput {
		// output is required on the wire even when the snippet printed nothing.
		return json.Marshal(struct {
			messageAlias
			Output string `json:"output"`
		}{messageAlias(m), m.Output})
	}
	return json.Marshal(messageAlias(m))
}

// UnmarshalJSON decodes known item shapes into fields. Anything else (for
// example content given as an array of parts) is kept in Raw as well, so a
// round trip through a checkpoint never loses provider data.
func (m *Message) UnmarshalJSON(data []byte) error {
	var probe struct {
		messageAlias
		Content json.RawMessage `json:"content,omitempty"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	*m = Message(probe.messageAlias)

	keepRaw := false
	switch m.Type {
	case "", TypeMessage, TypeFunctionCall, TypeFunctionCallOutput:
	default:
		keepRaw = true
	}
	if c := bytes.TrimSpace(probe.Content); len(c) > 0 && string(c) != "null" {
		if c[0] == '"' {
			if err := json.Unmarshal(c, &m.Content); err != nil {
				return err
			}
		} else {
			keepRaw = true
		}
	}
	if keepRaw {
		m.Raw = append(json.RawMessage(nil), data...)
	}
	return nil
}

// IsRole reports whether m is a role message with the given role.
func (m Message) IsRole(role string) bool {
	return (m.Type == "" || m.Type == TypeMessage) && m.Role == role
}

// --- Message constructors ---

func SystemMessage(text string) Message {
	return Message{Type: TypeMessage, Role: "system", Content: text}
}

func UserMessage(text string) Message {
	return Message{Type: TypeMessage, Role: "user", Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Type: TypeMessage, Role: "assistant", Content: text}
}

// FunctionCallMessage records a completed function call requested by the model.
func FunctionCallMessage(id, callID, name, arguments string) Message {
	return Message{
		Type:      TypeFunctionCall,
		ID:        id,
		CallID:    callID,
		Name:      name,
		Arguments: arguments,
		Status:    "completed",
	}
}

// FunctionCallOutputMessage pairs with the FunctionCallMessage carrying callID.
func FunctionCallOutputMessage(callID, output string) Message {
	return Message{Type: TypeFunctionCallOutput, CallID: callID, Output: output}
}

// WithoutSystem returns msgs minus system role messages. Callers use it
// before persisting a conversation so the next run can supply a fresh prompt.
func WithoutSystem(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsRole("system") {
			continue
		}
		out = append(out, m)
	}
	return out
}
