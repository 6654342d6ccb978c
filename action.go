package codeact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	schemagen "github.com/google/jsonschema-go/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Action is a named capability offered to the model. The set is closed:
// every Action is either a *DefinedAction or a *FreeformAction.
type Action interface {
	Name() string
	Description() string
	isAction()
}

// FreeformAction asks the model to write its own logic. It carries no schema
// and no handler, only an optional set of globals visible inside the sandbox.
type FreeformAction struct {
	name        string
	description string
	globals     map[string]any
}

// Freeform creates a FreeformAction. globals is copied; later changes to the
// caller's map are not observed.
func Freeform(name, description string, globals map[string]any) *FreeformAction {
	return &FreeformAction{name: name, description: description, globals: maps.Clone(globals)}
}

func (a *FreeformAction) Name() string        { return a.name }
func (a *FreeformAction) Description() string { return a.description }
func (*FreeformAction) isAction()             {}

// Globals returns a copy of the names and values injected into the sandbox.
func (a *FreeformAction) Globals() map[string]any { return maps.Clone(a.globals) }

// GlobalNames returns the injected global names in sorted order.
func (a *FreeformAction) GlobalNames() []string {
	return slices.Sorted(maps.Keys(a.globals))
}

// Handler executes a Defined action with arguments that already passed
// schema validation.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// DefinedAction is a schema-validated action backed by a Go handler. Code in
// the sandbox reaches it through api.<name>.call(args).
type DefinedAction struct {
	name        string
	description string
	schema      json.RawMessage
	compiled    *jsonschema.Schema
	handler     Handler
}

// defaultArgsSchema accepts any object, mirroring a record of unknown values.
var defaultArgsSchema = json.RawMessage(`{"type":"object","additionalProperties":{}}`)

// NewDefinedAction creates a DefinedAction from a raw JSON Schema. A nil
// schema accepts any JSON object.
func NewDefinedAction(name, description string, schema json.RawMessage, h Handler) (*DefinedAction, error) {
	if name == "" {
		return nil, errors.New("action name is required")
	}
	if h == nil {
		return nil, fmt.Errorf("action %q: handler is required", name)
	}
	if len(schema) == 0 {
		schema = defaultArgsSchema
	}
	compiled, err := compileSchema(name, schema)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", name, err)
	}
	return &DefinedAction{
		name:        name,
		description: description,
		schema:      schema,
		compiled:    compiled,
		handler:     h,
	}, nil
}

// Define creates a DefinedAction whose argument schema is inferred from T.
// Validated arguments are decoded into T before fn is called.
//
//	price, err := codeact.Define("get_crypto", "Current price of a coin.",
//		func(ctx context.Context, in PriceArgs) (string, error) { ... })
func Define[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) (*DefinedAction, error) {
	s, err := schemagen.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("action %q: infer schema: %w", name, err)
	}
	schema, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("action %q: encode schema: %w", name, err)
	}
	return NewDefinedAction(name, description, schema, func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("decode arguments: %w", err)
			}
		}
		return fn(ctx, args)
	})
}

// MustDefine is like Define but panics on error. Intended for package-level
// action tables whose argument types are known to be valid.
func MustDefine[T any](name, description string, fn func(ctx context.Context, args T) (string, error)) *DefinedAction {
	a, err := Define(name, description, fn)
	if err != nil {
		panic(err)
	}
	return a
}

func (a *DefinedAction) Name() string        { return a.name }
func (a *DefinedAction) Description() string { return a.description }
func (*DefinedAction) isAction()             {}

// Schema returns the JSON Schema the arguments are validated against.
func (a *DefinedAction) Schema() json.RawMessage { return a.schema }

// Call validates raw against the action's schema and runs the handler.
// Validation failures are returned as feedback text with a nil error and the
// handler is not invoked.
func (a *DefinedAction) Call(ctx context.Context, raw json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if violations := a.Validate(raw); len(violations) > 0 {
		return argumentFeedback(violations), nil
	}
	return a.handler(ctx, raw)
}

// Violation is one schema failure: the dotted instance path and a message.
type Violation struct {
	Path    string
	Message string
}

// Validate returns every schema violation in raw, sorted by path.
func (a *DefinedAction) Validate(raw json.RawMessage) []Violation {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []Violation{{Path: rootPath, Message: "invalid JSON: " + err.Error()}}
	}
	err = a.compiled.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{Path: rootPath, Message: err.Error()}}
	}
	p := message.NewPrinter(language.English)
	var out []Violation
	collectViolations(ve, p, &out)
	slices.SortStableFunc(out, func(x, y Violation) int { return strings.Compare(x.Path, y.Path) })
	return out
}

const rootPath = "(root)"

func collectViolations(ve *jsonschema.ValidationError, p *message.Printer, out *[]Violation) {
	if len(ve.Causes) > 0 {
		for _, c := range ve.Causes {
			collectViolations(c, p, out)
		}
		return
	}
	if req, ok := ve.ErrorKind.(*kind.Required); ok {
		for _, prop := range req.Missing {
			*out = append(*out, Violation{
				Path:    joinPath(append(slices.Clone(ve.InstanceLocation), prop)),
				Message: "missing property",
			})
		}
		return
	}
	*out = append(*out, Violation{
		Path:    joinPath(ve.InstanceLocation),
		Message: ve.ErrorKind.LocalizedString(p),
	})
}

func joinPath(loc []string) string {
	if len(loc) == 0 {
		return rootPath
	}
	return strings.Join(loc, ".")
}

func argumentFeedback(vs []Violation) string {
	var b strings.Builder
	b.WriteString("[SANDBOX_FEEDBACK] Invalid arguments for action:")
	for _, v := range vs {
		fmt.Fprintf(&b, "\n- %s: %s", v.Path, v.Message)
	}
	return b.String()
}

func compileSchema(name string, schema json.RawMessage) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schema))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	loc := "https://codeact.invalid/actions/" + url.PathEscape(name) + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
