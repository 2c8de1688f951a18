package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// State is the initialization state of a Session.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Session owns the server-issued session token. One Session lives for the
// lifetime of a client until Reset.
type Session struct {
	transport  *transport
	clientInfo Implementation
	chain      []TokenExtractor

	mu    sync.RWMutex
	token string
	state State

	group  singleflight.Group
	prefix string
	seq    atomic.Uint64
}

func newSession(t *transport, info Implementation, chain []TokenExtractor) *Session {
	return &Session{
		transport:  t,
		clientInfo: info,
		chain:      chain,
		prefix:     uuid.New().String()[:8],
	}
}

// nextID returns a correlation id unique within this client.
func (s *Session) nextID() string {
	return s.prefix + "-" + strconv.FormatUint(s.seq.Add(1), 10)
}

// Token returns the current session token, or "" when not ready.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return ""
	}
	return s.token
}

// State returns the current initialization state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Ready reports whether a token is held.
func (s *Session) Ready() bool {
	return s.State() == StateReady
}

// Reset drops the token. The next request initializes a new session.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.state = StateUninitialized
}

func (s *Session) setState(state State, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.token = token
}

// Initialize establishes a session token. It is a no-op when the session is
// already ready; concurrent callers share one in-flight attempt.
func (s *Session) Initialize(ctx context.Context) error {
	if s.Ready() {
		return nil
	}
	_, err, _ := s.group.Do("initialize", func() (any, error) {
		if s.Ready() {
			return nil, nil
		}
		return nil, s.initialize(ctx)
	})
	return err
}

func (s *Session) initialize(ctx context.Context) error {
	s.setState(StateInitializing, "")

	env := Request{
		JSONRPC: JSONRPCVersion,
		ID:      s.nextID(),
		Method:  "initialize",
		Params: initializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    map[string]any{},
			ClientInfo:      s.clientInfo,
		},
	}

	resp, err := s.transport.post(ctx, env, "")
	if err != nil {
		s.setState(StateFailed, "")
		return &SessionError{Op: "initialize", Err: err}
	}
	if resp.Status >= 400 {
		s.setState(StateFailed, "")
		return &SessionError{Op: "initialize", Err: fmt.Errorf("unexpected status %d", resp.Status)}
	}
	if match, ok := matchResponse(decodeResponses(resp.Body), env.ID); ok && match.Error != nil {
		s.setState(StateFailed, "")
		return &SessionError{Op: "initialize", Err: &RemoteError{
			Method:  env.Method,
			Code:    match.Error.Code,
			Message: match.Error.Message,
		}}
	}

	token, source, ok := resolveToken(s.chain, resp.Header, resp.Body)
	if !ok {
		s.setState(StateFailed, "")
		return &SessionError{Op: "initialize", Err: ErrMissingToken}
	}
	s.setState(StateReady, token)
	slog.Debug("mcp session initialized", "token_source", source)

	s.notifyInitialized(ctx, token)
	return nil
}

// notifyInitialized sends the initialized notification. It never fails the
// session; the server accepts requests without it in practice.
func (s *Session) notifyInitialized(ctx context.Context, token string) {
	env := Request{
		JSONRPC: JSONRPCVersion,
		Method:  "notifications/initialized",
	}
	resp, err := s.transport.post(ctx, env, token)
	if err != nil {
		slog.Warn("initialized notification failed", "error", err)
		return
	}
	if resp.Status >= 400 {
		slog.Warn("initialized notification rejected", "status", resp.Status)
	}
}
