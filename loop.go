package codeact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultToolRounds bounds the number of model turns in one run.
	DefaultToolRounds = 3
	// DefaultSandboxTimeout is the wall-clock limit of one snippet.
	DefaultSandboxTimeout = 10 * time.Second

	maxPreviewLen = 2000
)

// nopLogger is used when no logger is configured.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler            { return d }

// Agent runs the code-action loop: the model answers with tool calls whose
// only argument is a code snippet, the snippet runs in a sandbox, its output
// is appended to the conversation, and the model is asked again until it
// stops calling tools or the round budget is spent.
//
// An Agent is immutable once built and may serve concurrent runs.
type Agent struct {
	provider       Provider
	runner         CodeRunner
	registry       *Registry
	toolRounds     int
	sandboxTimeout time.Duration
	tracer         Tracer
	logger         *slog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithRegistry sets the actions offered to the model.
func WithRegistry(r *Registry) AgentOption {
	return func(a *Agent) { a.registry = r }
}

// WithToolRounds sets the maximum number of rounds per run. Default: 3.
func WithToolRounds(n int) AgentOption {
	return func(a *Agent) {
		if n > 0 {
			a.toolRounds = n
		}
	}
}

// WithSandboxTimeout sets the wall-clock limit passed to the runner for each
// snippet. Default: 10s.
func WithSandboxTimeout(d time.Duration) AgentOption {
	return func(a *Agent) {
		if d > 0 {
			a.sandboxTimeout = d
		}
	}
}

// WithTracer enables span creation for runs, rounds and tool calls.
func WithTracer(t Tracer) AgentOption {
	return func(a *Agent) { a.tracer = t }
}

// WithLogger sets the structured logger. Default: no output.
func WithLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates an Agent that streams from p and executes snippets with runner.
func NewAgent(p Provider, runner CodeRunner, opts ...AgentOption) *Agent {
	a := &Agent{
		provider:       p,
		runner:         runner,
		toolRounds:     DefaultToolRounds,
		sandboxTimeout: DefaultSandboxTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.registry == nil {
		a.registry, _ = NewRegistry()
	}
	if a.logger == nil {
		a.logger = nopLogger
	}
	return a
}

// Registry returns the agent's action table.
func (a *Agent) Registry() *Registry { return a.registry }

// runState is the per-run bookkeeping of Agent.Run.
type runState struct {
	conv      []Message
	toolRound int
	emit      func(Event)
}

// Run executes one conversation turn. messages is not modified; the returned
// slice is messages plus everything the run appended, and is returned even
// when the run fails so the caller can persist partial progress.
//
// Every failure is also delivered to sink as a single error event. After ctx
// is cancelled, events other than that final error are dropped; a snippet
// already executing is left to finish or hit its own timeout.
func (a *Agent) Run(ctx context.Context, messages []Message, sink Sink) (conv []Message, err error) {
	if sink == nil {
		sink = func(Event) {}
	}
	st := &runState{
		conv:      slices.Clone(messages),
		toolRound: 1,
		emit: func(ev Event) {
			if ctx.Err() != nil {
				return
			}
			sink(ev)
		},
	}

	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "agent.run",
			StringAttr("provider", a.provider.Name()),
			IntAttr("actions", a.registry.Len()),
			IntAttr("max_rounds", a.toolRounds))
		defer func() {
			span.SetAttr(IntAttr("rounds", st.toolRound), IntAttr("messages", len(st.conv)))
			if err != nil {
				span.Error(err)
			}
			span.End()
		}()
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			a.logger.Error("agent run panicked", "error", err, "round", st.toolRound)
			sink(Event{Type: EventError, Kind: "Panic", Message: err.Error()})
			conv = st.conv
		}
	}()

	start := time.Now()
	err = a.run(ctx, st)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ErrAborted) {
			err = fmt.Errorf("%w: %w", ErrAborted, err)
		}
		a.logger.Warn("agent run failed",
			"round", st.toolRound,
			"kind", ErrorKind(err),
			"error", err)
		sink(Event{Type: EventError, Kind: ErrorKind(err), Message: err.Error()})
		return st.conv, err
	}
	a.logger.Info("agent run finished",
		"rounds", st.toolRound,
		"messages", len(st.conv),
		"duration", time.Since(start))
	return st.conv, nil
}

func (a *Agent) run(ctx context.Context, st *runState) error {
	if ctx.Err() != nil {
		return ErrAborted
	}
	if len(st.conv) == 0 {
		return ErrNoMessages
	}
	st.emit(Event{Type: EventInit, Message: "INIT"})

	tools := a.registry.Tools()
	for {
		if ctx.Err() != nil {
			return ErrAborted
		}
		finished, err := a.round(ctx, st, tools)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ErrAborted
		}
		if finished {
			st.emit(Event{Type: EventDone, Message: "END"})
			return nil
		}
		st.toolRound++
	}
}

// round streams one model response and dispatches its function calls.
// It reports whether the run is complete.
func (a *Agent) round(ctx context.Context, st *runState, tools []ToolSpec) (bool, error) {
	if a.tracer != nil {
		var span Span
		ctx, span = a.tracer.Start(ctx, "agent.round", IntAttr("round", st.toolRound))
		defer span.End()
	}
	a.logger.Debug("round started", "round", st.toolRound, "messages", len(st.conv))

	resp, text, err := a.stream(ctx, st, tools)
	if err != nil {
		return false, err
	}
	if resp.ID == "" {
		return false, &ErrProtocol{Message: "Missing response.completed"}
	}

	calls := 0
	for _, item := range resp.Output {
		if item.Type != TypeFunctionCall {
			st.conv = append(st.conv, item)
			continue
		}
		if ctx.Err() != nil {
			return false, ErrAborted
		}
		if err := a.dispatch(ctx, st, item); err != nil {
			return false, err
		}
		calls++
	}

	st.emit(Event{Type: EventTextEnd, ResponseID: resp.ID, FullText: text})
	a.logger.Debug("round finished", "round", st.toolRound, "response_id", resp.ID, "tool_calls", calls)

	// Reaching the round budget ends the run quietly with done.
	return calls == 0 || st.toolRound >= a.toolRounds, nil
}

// stream consumes one provider stream, re-emitting its deltas, and returns the
// terminal response plus the accumulated assistant text.
func (a *Agent) stream(ctx context.Context, st *runState, tools []ToolSpec) (Response, string, error) {
	type streamResult struct {
		resp Response
		err  error
	}
	events := make(chan ProviderEvent, 64)
	done := make(chan streamResult, 1)
	req := Request{Messages: slices.Clone(st.conv), Tools: tools}
	go func() {
		var r streamResult
		defer func() {
			if p := recover(); p != nil {
				r = streamResult{err: fmt.Errorf("provider %s panic: %v", a.provider.Name(), p)}
			}
			done <- r
		}()
		r.resp, r.err = a.provider.Stream(ctx, req, events)
	}()

	var text strings.Builder
	forward := func(ev ProviderEvent) {
		switch ev.Type {
		case ProviderTextDelta:
			text.WriteString(ev.Delta)
			st.emit(Event{Type: EventTextDelta, Delta: ev.Delta, ID: ev.ItemID})
		case ProviderArgumentsDelta:
			st.emit(Event{Type: EventArgumentsDelta, ToolRound: st.toolRound, Delta: ev.Delta, ID: ev.ItemID})
		case ProviderItemAdded:
			if ev.Item != nil && ev.Item.Type == TypeFunctionCall {
				st.emit(Event{
					Type:      EventItemAdded,
					ToolRound: st.toolRound,
					ID:        ev.Item.ID,
					CallID:    ev.Item.CallID,
					Name:      ev.Item.Name,
				})
			}
		case ProviderError:
			a.logger.Warn("provider reported stream error", "provider", a.provider.Name(), "message", ev.Message)
			st.emit(Event{Type: EventError, Kind: "ProviderError", Message: ev.Message})
		}
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			forward(ev)
		case r := <-done:
			for drained := false; !drained && events != nil; {
				select {
				case ev, ok := <-events:
					if !ok {
						drained = true
						continue
					}
					forward(ev)
				default:
					drained = true
				}
			}
			if r.err != nil {
				if ctx.Err() != nil {
					return Response{}, text.String(), ErrAborted
				}
				return Response{}, text.String(), r.err
			}
			return r.resp, text.String(), nil
		}
	}
}

// dispatch runs one function call and appends the call/output pair.
func (a *Agent) dispatch(ctx context.Context, st *runState, item Message) error {
	args, err := ParseCodeArgs(item.Arguments)
	if err != nil {
		return fmt.Errorf("%s: %w", item.Name, err)
	}
	if _, ok := a.registry.Lookup(item.Name); !ok {
		return &ErrInput{Message: "unknown action: " + item.Name}
	}

	st.conv = append(st.conv, FunctionCallMessage(item.ID, item.CallID, item.Name, item.Arguments))
	parsed, _ := json.Marshal(args)
	st.emit(Event{
		Type:      EventToolStart,
		ToolRound: st.toolRound,
		CallID:    item.CallID,
		Name:      item.Name,
		Args:      string(parsed),
		ArgsID:    item.ID,
	})

	toolCtx := ctx
	var span Span
	if a.tracer != nil {
		toolCtx, span = a.tracer.Start(ctx, "agent.tool",
			StringAttr("action", item.Name),
			StringAttr("call_id", item.CallID),
			IntAttr("round", st.toolRound))
	}
	start := time.Now()

	var stdout string
	if feedback, ok := a.registry.Preflight(item.Name, args.Code); !ok {
		stdout = feedback
	} else {
		// Cancelling the run must not kill a snippet that already started.
		stdout = a.runner.Run(context.WithoutCancel(toolCtx), CodeRequest{
			Code:     args.Code,
			Action:   item.Name,
			Registry: a.registry,
			Timeout:  a.sandboxTimeout,
		}).Stdout
	}

	if span != nil {
		span.SetAttr(IntAttr("output_bytes", len(stdout)))
		span.End()
	}
	a.logger.Info("tool executed",
		"action", item.Name,
		"call_id", item.CallID,
		"round", st.toolRound,
		"output_bytes", len(stdout),
		"duration", time.Since(start))

	st.conv = append(st.conv, FunctionCallOutputMessage(item.CallID, stdout))
	st.emit(Event{
		Type:          EventToolResult,
		ToolRound:     st.toolRound,
		CallID:        item.CallID,
		Name:          item.Name,
		OutputPreview: truncateStr(stdout, maxPreviewLen),
	})
	return nil
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
