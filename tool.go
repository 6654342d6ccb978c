package codeact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// SDKName is the sandbox global exposing Defined actions.
	SDKName = "api"
	// CallName is the method invoked on each Defined action entry.
	CallName = "call"

	maxCodeLen = 10_000
)

// CallPattern returns the literal text a snippet must contain to invoke the
// Defined action name, e.g. "await api.get_crypto.call".
func CallPattern(name string) string {
	return "await " + SDKName + "." + name + "." + CallName
}

// CatalogueEntry is the model-facing description of one Action.
type CatalogueEntry struct {
	Name        string
	Description string
	// Template is the usage guidance embedded in the tool's code parameter.
	Template string
	// Schema is the argument schema of a Defined action, nil for Free-form.
	Schema json.RawMessage
}

// Defined reports whether the entry describes a Defined action.
func (e CatalogueEntry) Defined() bool { return e.Schema != nil }

// ToolSpec is a tool advertised to the provider.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Strict      bool            `json:"strict"`
}

// Registry holds the actions of one agent. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	actions []Action
	byName  map[string]Action
	entries map[string]CatalogueEntry
}

// NewRegistry builds a registry. Action names must be non-empty and unique.
func NewRegistry(actions ...Action) (*Registry, error) {
	r := &Registry{
		byName:  make(map[string]Action, len(actions)),
		entries: make(map[string]CatalogueEntry, len(actions)),
	}
	for _, a := range actions {
		if a == nil {
			continue
		}
		name := a.Name()
		if name == "" {
			return nil, &ErrInput{Message: "action name is required"}
		}
		if _, dup := r.byName[name]; dup {
			return nil, &ErrInput{Message: "duplicate action: " + name}
		}
		r.actions = append(r.actions, a)
		r.byName[name] = a
		r.entries[name] = catalogueEntry(a)
	}
	return r, nil
}

// Len returns the number of registered actions.
func (r *Registry) Len() int { return len(r.actions) }

// Lookup returns the action registered under name.
func (r *Registry) Lookup(name string) (Action, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Entry returns the catalogue entry for name.
func (r *Registry) Entry(name string) (CatalogueEntry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Catalogue returns the entries in registration order.
func (r *Registry) Catalogue() []CatalogueEntry {
	out := make([]CatalogueEntry, 0, len(r.actions))
	for _, a := range r.actions {
		out = append(out, r.entries[a.Name()])
	}
	return out
}

// Defined returns the Defined actions in registration order.
func (r *Registry) Defined() []*DefinedAction {
	var out []*DefinedAction
	for _, a := range r.actions {
		if d, ok := a.(*DefinedAction); ok {
			out = append(out, d)
		}
	}
	return out
}

// Preflight checks that code for a Defined action contains its required call
// pattern. When it does not, the returned feedback repeats the usage template
// and no code should run. Free-form actions always pass.
func (r *Registry) Preflight(name, code string) (feedback string, ok bool) {
	a, found := r.byName[name]
	if !found {
		return "", false
	}
	if _, defined := a.(*DefinedAction); !defined {
		return "", true
	}
	if strings.Contains(code, CallPattern(name)) {
		return "", true
	}
	return strings.Join([]string{
		fmt.Sprintf("[SANDBOX_FEEDBACK] Invalid call pattern for '%s'.", name),
		"",
		r.entries[name].Template,
		"",
		"Fix the code and try again.",
	}, "\n"), false
}

// Invoke validates raw and calls the Defined action registered under name.
// Schema violations come back as feedback text with a nil error.
func (r *Registry) Invoke(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	a, ok := r.byName[name]
	if !ok {
		return "", fmt.Errorf("unknown action: %s", name)
	}
	d, ok := a.(*DefinedAction)
	if !ok {
		return "", fmt.Errorf("action %s has no handler", name)
	}
	return d.Call(ctx, raw)
}

// Tools returns the provider-facing tool list. Every tool takes a single
// code argument whose description carries the action's usage template.
func (r *Registry) Tools() []ToolSpec {
	out := make([]ToolSpec, 0, len(r.actions))
	for _, e := range r.Catalogue() {
		out = append(out, ToolSpec{
			Name:        e.Name,
			Description: strings.TrimSpace(e.Description),
			Parameters:  codeParameters(e.Template + "\nNO imports, NO fetch, NO network."),
			Strict:      true,
		})
	}
	return out
}

func codeParameters(description string) json.RawMessage {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"minLength":   1,
				"maxLength":   maxCodeLen,
				"description": description,
			},
		},
		"required":             []string{"code"},
		"additionalProperties": false,
	}
	data, _ := json.Marshal(params)
	return data
}

// CodeArgs is the argument object of every advertised tool.
type CodeArgs struct {
	Code string `json:"code"`
}

// ParseCodeArgs decodes and checks the arguments of a function call.
func ParseCodeArgs(arguments string) (CodeArgs, error) {
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	var args CodeArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return CodeArgs{}, &ErrInput{Message: "malformed tool arguments: " + err.Error()}
	}
	switch n := len([]rune(args.Code)); {
	case n == 0:
		return CodeArgs{}, &ErrInput{Message: "code: must not be empty"}
	case n > maxCodeLen:
		return CodeArgs{}, &ErrInput{Message: "code: Code is too large"}
	}
	return args, nil
}

func catalogueEntry(a Action) CatalogueEntry {
	switch a := a.(type) {
	case *DefinedAction:
		return CatalogueEntry{
			Name:        a.Name(),
			Description: a.Description(),
			Template:    definedTemplate(a),
			Schema:      a.Schema(),
		}
	case *FreeformAction:
		return CatalogueEntry{
			Name:        a.Name(),
			Description: a.Description(),
			Template:    freeformTemplate(a),
		}
	}
	return CatalogueEntry{Name: a.Name(), Description: a.Description()}
}

func definedTemplate(a *DefinedAction) string {
	var schema bytes.Buffer
	if err := json.Indent(&schema, a.Schema(), "", "  "); err != nil {
		schema.Reset()
		schema.Write(a.Schema())
	}
	return strings.Join([]string{
		fmt.Sprintf("Inside the TypeScript sandbox, always call this tool via global `%s` object.", SDKName),
		"",
		"You **MUST** use this exact template when calling this tool:",
		"```ts",
		fmt.Sprintf("const res = %s(args); console.log(res)", CallPattern(a.Name())),
		"```",
		"",
		"Arguments must match this schema:",
		"```json",
		schema.String(),
		"```",
	}, "\n")
}

func freeformTemplate(a *FreeformAction) string {
	lines := []string{
		"Inside the TypeScript sandbox, write a compact TypeScript snippet to complete this action.",
		"",
	}
	if names := a.GlobalNames(); len(names) > 0 {
		lines = append(lines, "You have direct access to these globals:", "")
		for _, n := range names {
			lines = append(lines, "- `"+n+"`")
		}
		lines = append(lines, "", "Use them directly in your TypeScript code (no imports needed).")
	}
	lines = append(lines, "Always return result via console.log")
	return strings.Join(lines, "\n")
}
