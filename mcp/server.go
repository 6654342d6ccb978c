// Package mcp connects codeact actions to the Model Context Protocol: a
// server that exposes Defined actions as MCP tools, and a client whose
// listMcpTools/callMcpTool actions let sandboxed code discover and call the
// tools of a remote server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	codeact "github.com/nevindra/codeact"
)

// Resource is a readable text document exposed via resources/list and
// resources/read.
type Resource struct {
	URI         string
	Name        string
	Description string
	MIMEType    string
	// Read returns the resource content. Called on each resources/read request.
	Read func(ctx context.Context) (string, error)
}

// NewServer creates an MCP server exposing each action as a tool. Arguments
// are validated against the action's schema before the handler runs, and
// validation feedback is returned as the tool's text output.
func NewServer(name, version string, actions []*codeact.DefinedAction, resources ...Resource) *gomcp.Server {
	s := gomcp.NewServer(&gomcp.Implementation{Name: name, Version: version}, nil)
	for _, a := range actions {
		s.AddTool(&gomcp.Tool{
			Name:        a.Name(),
			Title:       a.Name(),
			Description: a.Description(),
			InputSchema: a.Schema(),
		}, toolHandler(a))
	}
	for _, r := range resources {
		s.AddResource(&gomcp.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		}, resourceHandler(r))
	}
	return s
}

func toolHandler(a *codeact.DefinedAction) gomcp.ToolHandler {
	return func(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		out, err := a.Call(ctx, args)
		if err != nil {
			return ErrorResult(err.Error()), nil
		}
		return TextResult(out), nil
	}
}

func resourceHandler(r Resource) gomcp.ResourceHandler {
	return func(ctx context.Context, req *gomcp.ReadResourceRequest) (*gomcp.ReadResourceResult, error) {
		text, err := r.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", r.URI, err)
		}
		return &gomcp.ReadResourceResult{
			Contents: []*gomcp.ResourceContents{{URI: r.URI, MIMEType: r.MIMEType, Text: text}},
		}, nil
	}
}

// Serve runs s over stdin/stdout until the client disconnects or ctx is
// cancelled.
func Serve(ctx context.Context, s *gomcp.Server) error {
	return s.Run(ctx, &gomcp.StdioTransport{})
}

// TextResult creates a successful tool result with text content.
func TextResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{Content: []gomcp.Content{&gomcp.TextContent{Text: text}}}
}

// ErrorResult creates an error tool result.
func ErrorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
