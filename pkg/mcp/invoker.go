package mcp

import "context"

// ToolInvoker issues named tool invocations against a remote server.
// *Client is the production implementation; tests substitute fakes.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, name string, args any) (*ToolResult, error)
}

var _ ToolInvoker = (*Client)(nil)
