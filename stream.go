package codeact

// EventType identifies an agent event.
type EventType string

const (
	EventInit           EventType = "init"
	EventTextDelta      EventType = "text_delta"
	EventArgumentsDelta EventType = "arguments_delta"
	EventItemAdded      EventType = "output_item.added"
	EventToolStart      EventType = "tool_start"
	EventToolResult     EventType = "tool_result"
	EventTextEnd        EventType = "text_end"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is emitted by Agent.Run in the order the run progresses:
// init, then per round the streaming deltas, tool_start/tool_result pairs
// and text_end, and finally done or error.
type Event struct {
	Type EventType `json:"type"`
	// Message is set on init, done and error.
	Message string `json:"message,omitempty"`
	// Kind classifies an error event (see ErrorKind).
	Kind string `json:"kind,omitempty"`

	Delta     string `json:"delta,omitempty"`
	ID        string `json:"id,omitempty"`
	ToolRound int    `json:"toolRound,omitempty"`

	CallID string `json:"callId,omitempty"`
	Name   string `json:"name,omitempty"`
	Args   string `json:"args,omitempty"`
	ArgsID string `json:"argsId,omitempty"`
	// OutputPreview holds at most the first 2000 characters of tool output.
	OutputPreview string `json:"outputPreview,omitempty"`

	ResponseID string `json:"responseId,omitempty"`
	FullText   string `json:"fullText,omitempty"`
}

// Sink receives agent events. It is called from the goroutine running the
// agent and must not retain the loop.
type Sink func(Event)

// ChannelSink returns a Sink that sends every event on ch. The caller must
// keep draining ch until Run returns.
func ChannelSink(ch chan<- Event) Sink {
	return func(ev Event) { ch <- ev }
}
