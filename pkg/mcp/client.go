package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// DefaultCallTimeout bounds every request, including a lazy initialize.
const DefaultCallTimeout = 30 * time.Second

// WarmupPolicy controls the tools/list call issued before each tool call.
//
// The known server intermittently answers "unknown tool" for a listed tool
// right after a session starts unless the tool list has been fetched first.
type WarmupPolicy string

const (
	WarmupBeforeCall WarmupPolicy = "before_call"
	WarmupNever      WarmupPolicy = "never"
)

// Client issues JSON-RPC calls over a Session.
type Client struct {
	transport *transport
	session   *Session
	timeout   time.Duration
	warmup    WarmupPolicy

	mu      sync.Mutex
	pending map[string]string
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	timeout    time.Duration
	warmup     WarmupPolicy
	httpClient *http.Client
	info       Implementation
	chain      []TokenExtractor
}

// WithCallTimeout overrides DefaultCallTimeout.
func WithCallTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithWarmup sets the tool warm-up policy.
func WithWarmup(p WarmupPolicy) Option {
	return func(o *clientOptions) { o.warmup = p }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithClientInfo sets the name and version sent on initialize.
func WithClientInfo(name, version string) Option {
	return func(o *clientOptions) { o.info = Implementation{Name: name, Version: version} }
}

// WithTokenChain replaces the session token extraction order.
func WithTokenChain(chain ...TokenExtractor) Option {
	return func(o *clientOptions) { o.chain = chain }
}

// New creates a Client for the given endpoint URL (usually ending in /mcp).
func New(endpoint string, opts ...Option) *Client {
	o := &clientOptions{
		timeout: DefaultCallTimeout,
		warmup:  WarmupBeforeCall,
		info:    Implementation{Name: "healthchat", Version: "1.0.0"},
		chain:   DefaultTokenChain(),
	}
	for _, opt := range opts {
		opt(o)
	}

	t := newTransport(endpoint, o.httpClient)
	return &Client{
		transport: t,
		session:   newSession(t, o.info, o.chain),
		timeout:   o.timeout,
		warmup:    o.warmup,
		pending:   make(map[string]string),
	}
}

// Session exposes the underlying session, mainly for Reset on logout.
func (c *Client) Session() *Session {
	return c.session
}

// Pending returns the number of requests awaiting a response.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) track(id, method string) {
	c.mu.Lock()
	c.pending[id] = method
	c.mu.Unlock()
}

func (c *Client) untrack(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Call invokes a remote method and returns its raw result. The session is
// initialized first when needed. Calls are never retried here.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.session.Initialize(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Method: "initialize", After: c.timeout}
		}
		return nil, err
	}

	token := c.session.Token()
	if token == "" {
		c.session.Reset()
		return nil, &SessionError{Op: method, Err: ErrMissingToken}
	}

	if params == nil {
		params = map[string]any{}
	}
	id := c.session.nextID()
	c.track(id, method)
	defer c.untrack(id)

	resp, err := c.transport.post(ctx, Request{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}, token)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Method: method, ID: id, After: c.timeout}
		}
		return nil, err
	}

	if resp.Status == http.StatusNotFound {
		// The server dropped our session; start over on the next call.
		c.session.Reset()
		return nil, &SessionError{Op: method, Err: fmt.Errorf("session expired (status %d)", resp.Status)}
	}

	match, ok := matchResponse(decodeResponses(resp.Body), id)
	if !ok {
		if resp.Status >= 400 {
			return nil, &RemoteError{Method: method, Code: resp.Status, Message: snippet(resp.Body)}
		}
		return nil, &RemoteError{Method: method, Err: ErrNoMatchingResponse}
	}
	if match.Error != nil {
		return nil, &RemoteError{Method: method, Code: match.Error.Code, Message: match.Error.Message}
	}
	return match.Result, nil
}

// ListTools returns the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.Call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var result listToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parsing tools/list result: %w", err)
	}
	return result.Tools, nil
}

// InvokeTool calls a named tool. Under WarmupBeforeCall the tool list is
// fetched first; a failed warm-up is logged and the call proceeds.
func (c *Client) InvokeTool(ctx context.Context, name string, args any) (*ToolResult, error) {
	if c.warmup == WarmupBeforeCall {
		if _, err := c.ListTools(ctx); err != nil {
			slog.Warn("tool warm-up failed", "tool", name, "error", err)
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	raw, err := c.Call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}

	var result ToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parsing tools/call result: %w", err)
	}
	if result.IsError {
		return nil, &RemoteError{Method: "tools/call " + name, Message: result.Text()}
	}
	return &result, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
