package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	codeact "github.com/nevindra/codeact"
)

// Action names of the client actions.
const (
	ListToolsAction = "listMcpTools"
	CallToolAction  = "callMcpTool"
)

// Client is a connected MCP client session.
type Client struct {
	session *gomcp.ClientSession
}

// Connect opens a session over t.
func Connect(ctx context.Context, name, version string, t gomcp.Transport) (*Client, error) {
	c := gomcp.NewClient(&gomcp.Implementation{Name: name, Version: version}, nil)
	session, err := c.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect: %w", err)
	}
	return &Client{session: session}, nil
}

// ConnectCommand starts command as an MCP server subprocess and connects to
// it over its stdin/stdout.
func ConnectCommand(ctx context.Context, name, version, command string, args ...string) (*Client, error) {
	return Connect(ctx, name, version, &gomcp.CommandTransport{Command: exec.Command(command, args...)})
}

// Close ends the session.
func (c *Client) Close() error { return c.session.Close() }

// ToolInfo describes a remote tool the way the model sees it.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Args        any    `json:"args,omitempty"`
}

// ListTools returns every tool of the server, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var out []ToolInfo
	params := &gomcp.ListToolsParams{}
	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("mcp: list tools: %w", err)
		}
		for _, t := range res.Tools {
			out = append(out, ToolInfo{Name: t.Name, Description: t.Description, Args: t.InputSchema})
		}
		if res.NextCursor == "" {
			return out, nil
		}
		params = &gomcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// CallTool invokes a remote tool and flattens its content to text: text
// parts verbatim, any other part as JSON, one part per line. A result the
// server marks as an error is prefixed with [ERROR].
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.session.CallTool(ctx, &gomcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("mcp: call %s: %w", name, err)
	}
	if res.IsError {
		return "[ERROR] " + Flatten(res.Content), nil
	}
	return Flatten(res.Content), nil
}

// Flatten renders tool content as text.
func Flatten(content []gomcp.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if t, ok := c.(*gomcp.TextContent); ok {
			parts = append(parts, t.Text)
			continue
		}
		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		parts = append(parts, string(data))
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

type callArgs struct {
	Name string         `json:"name" jsonschema:"Name of an existing MCP tool"`
	Args map[string]any `json:"args,omitempty" jsonschema:"Arguments matching the tool's input schema"`
}

// Actions returns the listMcpTools and callMcpTool Defined actions.
func (c *Client) Actions() ([]*codeact.DefinedAction, error) {
	list, err := codeact.NewDefinedAction(ListToolsAction,
		"Return a list of available tools from MCP server including names, descriptions and input schemas.",
		nil,
		func(ctx context.Context, _ json.RawMessage) (string, error) {
			tools, err := c.ListTools(ctx)
			if err != nil {
				return "", err
			}
			data, err := json.MarshalIndent(tools, "", "  ")
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
	if err != nil {
		return nil, err
	}

	call, err := codeact.Define(CallToolAction,
		strings.Join([]string{
			"Call an existing MCP tool by name.",
			"",
			"IMPORTANT RULES:",
			"- You MUST NOT implement your own logic inside code when using this tool.",
			"- You MUST ONLY call tools that exist on the MCP server.",
			"- Never invent tool names.",
		}, "\n"),
		func(ctx context.Context, in callArgs) (string, error) {
			return c.CallTool(ctx, in.Name, in.Args)
		})
	if err != nil {
		return nil, err
	}
	return []*codeact.DefinedAction{list, call}, nil
}
