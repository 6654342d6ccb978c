package code

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/evanw/esbuild/pkg/api"

	codeact "github.com/nevindra/codeact"
)

// InProcessRunner transpiles TypeScript with esbuild and runs it in a fresh
// goja runtime per request. The runtime sees only console, the active
// Free-form action's globals, the api namespace when the active action is a
// Defined one, timers, and stubs for fetch and require that always throw.
// Implements codeact.CodeRunner.
type InProcessRunner struct {
	cfg runnerConfig
}

var _ codeact.CodeRunner = (*InProcessRunner)(nil)

// NewInProcessRunner creates an InProcessRunner.
func NewInProcessRunner(opts ...Option) *InProcessRunner {
	return &InProcessRunner{cfg: newConfig(opts)}
}

const (
	noOutputFeedback = "[SANDBOX_FEEDBACK] MUST print the final result using console.log(...)."
	sandboxError     = "[SANDBOX_ERROR]:"
)

// sandboxPrelude replaces ambient capabilities with stubs.
const sandboxPrelude = `
globalThis.fetch = function () { throw new Error("[SANDBOX_ERROR]: Network is disabled."); };
globalThis.require = function () { throw new Error("[SANDBOX_ERROR]: Imports are disabled."); };
`

var (
	errTimeout   = errors.New("timeout")
	errOutputCap = errors.New("output cap")
)

// Run executes req.Code. Failures are reported in the returned text.
func (r *InProcessRunner) Run(ctx context.Context, req codeact.CodeRequest) codeact.CodeResult {
	reg := req.Registry
	if reg == nil {
		reg, _ = codeact.NewRegistry()
	}
	action, ok := reg.Lookup(req.Action)
	if !ok {
		return codeact.CodeResult{Stdout: sandboxError + " unknown action: " + req.Action}
	}

	js, err := transpile(req.Code)
	if err != nil {
		return codeact.CodeResult{Stdout: sandboxError + " " + err.Error()}
	}

	timeout := r.cfg.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s := newSession(ctx, reg, r.cfg.maxOutput)
	if err := s.install(action); err != nil {
		return codeact.CodeResult{Stdout: sandboxError + " " + err.Error()}
	}

	start := time.Now()
	watchdog := time.AfterFunc(timeout, func() { s.vm.Interrupt(errTimeout) })
	defer watchdog.Stop()

	_, err = s.vm.RunScript("snippet.ts", js)
	if err == nil {
		err = s.runTimers(start.Add(timeout))
	}
	s.finish(err, timeout)

	r.cfg.logger.Debug("snippet finished",
		"action", req.Action,
		"duration", time.Since(start),
		"bytes", s.bytes,
		"error", err)
	return codeact.CodeResult{Stdout: s.output()}
}

// transpile wraps code in an async IIFE and lowers TypeScript to JavaScript.
func transpile(code string) (string, error) {
	wrapped := "(async () => {\n" + code + "\n})().catch(e => console.log('" + sandboxError + "', String(e)));"
	res := api.Transform(wrapped, api.TransformOptions{
		Loader:     api.LoaderTS,
		Target:     api.ES2017,
		Sourcefile: "snippet.ts",
	})
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, m := range res.Errors {
			if m.Location != nil {
				// Line numbers are shifted by the wrapper's first line.
				msgs = append(msgs, fmt.Sprintf("%d:%d: %s", m.Location.Line-1, m.Location.Column, m.Text))
				continue
			}
			msgs = append(msgs, m.Text)
		}
		return "", fmt.Errorf("SyntaxError: %s", strings.Join(msgs, "; "))
	}
	return string(res.Code), nil
}

// session is the state of one snippet execution. It is confined to the
// goroutine calling Run; only vm.Interrupt is used from other goroutines.
type session struct {
	ctx       context.Context
	vm        *goja.Runtime
	reg       *codeact.Registry
	limit     int
	lines     []string
	bytes     int
	truncated bool

	stringify goja.Callable
	newError  goja.Constructor

	timers  map[int64]*timer
	timerID int64
}

type timer struct {
	id       int64
	due      time.Time
	interval time.Duration
	fn       goja.Callable
	args     []goja.Value
}

func newSession(ctx context.Context, reg *codeact.Registry, limit int) *session {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	s := &session{
		ctx:    ctx,
		vm:     vm,
		reg:    reg,
		limit:  limit,
		timers: make(map[int64]*timer),
	}
	s.stringify, _ = goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	s.newError, _ = goja.AssertConstructor(vm.Get("Error"))
	return s
}

// install binds the capabilities granted to action.
func (s *session) install(action codeact.Action) error {
	console := s.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, s.consoleLog); err != nil {
			return err
		}
	}
	if err := s.vm.Set("console", console); err != nil {
		return err
	}
	if _, err := s.vm.RunString(sandboxPrelude); err != nil {
		return err
	}
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":    s.setTimer(false),
		"setInterval":   s.setTimer(true),
		"clearTimeout":  s.clearTimer,
		"clearInterval": s.clearTimer,
	} {
		if err := s.vm.Set(name, fn); err != nil {
			return err
		}
	}

	switch a := action.(type) {
	case *codeact.FreeformAction:
		globals := a.Globals()
		names := make([]string, 0, len(globals))
		for n := range globals {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if err := s.vm.Set(n, globals[n]); err != nil {
				return fmt.Errorf("global %s: %w", n, err)
			}
		}
	case *codeact.DefinedAction:
		sdk := s.vm.NewObject()
		for _, d := range s.reg.Defined() {
			entry := s.vm.NewObject()
			if err := entry.Set("description", d.Description()); err != nil {
				return err
			}
			if err := entry.Set(codeact.CallName, s.callAction(d.Name())); err != nil {
				return err
			}
			if err := sdk.Set(d.Name(), entry); err != nil {
				return err
			}
		}
		if err := s.vm.Set(codeact.SDKName, sdk); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) consoleLog(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, v := range call.Arguments {
		parts[i] = s.format(v)
	}
	s.append(strings.Join(parts, " "))
	return goja.Undefined()
}

// format renders a console argument the way JSON-based loggers do: strings
// verbatim, everything else through JSON.stringify.
func (s *session) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if str, ok := v.Export().(string); ok {
		return str
	}
	if s.stringify != nil {
		if out, err := s.stringify(goja.Undefined(), v); err == nil && !goja.IsUndefined(out) {
			return out.String()
		}
	}
	return v.String()
}

// append records one console line within the output budget. Past the budget
// the snippet is interrupted.
func (s *session) append(line string) {
	if s.truncated {
		return
	}
	line = strings.TrimLeft(line, " \t\r\n")
	need := len(line)
	if len(s.lines) > 0 {
		need++
	}
	if s.bytes+need > s.limit {
		room := s.limit - s.bytes
		if len(s.lines) > 0 {
			room--
		}
		if room > 0 {
			s.lines = append(s.lines, truncateUTF8(line, room))
		}
		s.bytes = s.limit
		s.truncated = true
		s.vm.Interrupt(errOutputCap)
		return
	}
	s.lines = append(s.lines, line)
	s.bytes += need
}

// callAction returns the JavaScript function behind api.<name>.call. The
// handler runs synchronously; the result is delivered as a settled promise.
func (s *session) callAction(name string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		promise, resolve, reject := s.vm.NewPromise()
		out, err := s.invoke(name, call.Argument(0))
		if err != nil {
			reject(s.jsError(err.Error()))
		} else {
			resolve(out)
		}
		return s.vm.ToValue(promise)
	}
}

func (s *session) invoke(name string, arg goja.Value) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("action %s panicked: %v", name, p)
		}
	}()
	raw := json.RawMessage(`{}`)
	if arg != nil && !goja.IsUndefined(arg) && !goja.IsNull(arg) {
		v, err := s.stringify(goja.Undefined(), arg)
		if err != nil {
			return "", err
		}
		if !goja.IsUndefined(v) {
			raw = json.RawMessage(v.String())
		}
	}
	return s.reg.Invoke(s.ctx, name, raw)
}

func (s *session) jsError(msg string) goja.Value {
	if s.newError != nil {
		if obj, err := s.newError(nil, s.vm.ToValue(msg)); err == nil {
			return obj
		}
	}
	return s.vm.ToValue(msg)
}

func (s *session) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(s.vm.NewTypeError("callback must be a function"))
		}
		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < 0 {
			delay = 0
		}
		s.timerID++
		t := &timer{id: s.timerID, due: time.Now().Add(delay), fn: fn}
		if repeat {
			t.interval = max(delay, time.Millisecond)
		}
		if len(call.Arguments) > 2 {
			t.args = append([]goja.Value(nil), call.Arguments[2:]...)
		}
		s.timers[t.id] = t
		return s.vm.ToValue(t.id)
	}
}

func (s *session) clearTimer(call goja.FunctionCall) goja.Value {
	delete(s.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

// runTimers fires pending timers in due order until none remain or the
// deadline passes.
func (s *session) runTimers(deadline time.Time) error {
	for len(s.timers) > 0 {
		var next *timer
		for _, t := range s.timers {
			if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.id < next.id) {
				next = t
			}
		}
		if next.due.After(deadline) {
			return errTimeout
		}
		if wait := time.Until(next.due); wait > 0 {
			select {
			case <-time.After(wait):
			case <-s.ctx.Done():
				return errTimeout
			}
		}
		if next.interval > 0 {
			next.due = next.due.Add(next.interval)
		} else {
			delete(s.timers, next.id)
		}
		if _, err := next.fn(goja.Undefined(), next.args...); err != nil {
			return err
		}
	}
	return nil
}

// finish records how the script ended.
func (s *session) finish(err error, timeout time.Duration) {
	if err == nil {
		return
	}
	var interrupted *goja.InterruptedError
	var exception *goja.Exception
	switch {
	case errors.As(err, &interrupted) && interrupted.Value() == errOutputCap:
	case errors.As(err, &interrupted), errors.Is(err, errTimeout):
		s.forceAppend(fmt.Sprintf("%s Script execution timed out after %dms", sandboxError, timeout.Milliseconds()))
	case errors.As(err, &exception):
		s.forceAppend(sandboxError + " " + exception.Value().String())
	default:
		s.forceAppend(sandboxError + " " + err.Error())
	}
}

// forceAppend adds a diagnostic line even when the output budget is spent.
func (s *session) forceAppend(line string) {
	s.lines = append(s.lines, line)
}

func (s *session) output() string {
	if s.truncated {
		s.lines = append(s.lines, fmt.Sprintf("[TRUNCATED] Output exceeded %d bytes", s.limit))
	}
	if len(s.lines) == 0 {
		return noOutputFeedback
	}
	return strings.Join(s.lines, "\n")
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && n < len(s) && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}
