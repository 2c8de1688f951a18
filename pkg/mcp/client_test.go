package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestInitializeTokenFromHeader(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	client := New(srv.URL)

	if err := client.Session().Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.Session().Token() != "sess-123" {
		t.Errorf("expected token sess-123, got %q", client.Session().Token())
	}
	notes := f.callsFor("notifications/initialized")
	if len(notes) != 1 {
		t.Fatalf("expected 1 initialized notification, got %d", len(notes))
	}
	if notes[0].Session != "sess-123" {
		t.Errorf("notification missing session header, got %q", notes[0].Session)
	}
	if notes[0].ID != "" {
		t.Errorf("notification must not carry an id, got %q", notes[0].ID)
	}
}

func TestInitializeTokenFromBody(t *testing.T) {
	_, srv := newFakeServer(t, tokenInBody)
	client := New(srv.URL)

	if err := client.Session().Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.Session().Token() != "sess-123" {
		t.Errorf("expected token from body, got %q", client.Session().Token())
	}
}

func TestInitializeTokenFromFrameThenHeaderOnCalls(t *testing.T) {
	f, srv := newFakeServer(t, tokenInFrame)
	client := New(srv.URL)
	ctx := context.Background()

	if err := client.Session().Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if client.Session().State() != StateReady {
		t.Fatalf("expected ready, got %s", client.Session().State())
	}

	for i := 0; i < 2; i++ {
		if _, err := client.Call(ctx, "echo", map[string]any{"n": i}); err != nil {
			t.Fatal(err)
		}
	}

	calls := f.callsFor("echo")
	if len(calls) != 2 {
		t.Fatalf("expected 2 echo calls, got %d", len(calls))
	}
	for _, c := range calls {
		if c.Session != "sess-123" {
			t.Errorf("expected session header on %s, got %q", c.Method, c.Session)
		}
	}
}

func TestInitializeMissingToken(t *testing.T) {
	f, srv := newFakeServer(t, tokenNowhere)
	client := New(srv.URL)

	err := client.Session().Initialize(context.Background())
	var sessErr *SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected SessionError, got %v", err)
	}
	if !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
	if client.Session().State() != StateFailed {
		t.Errorf("expected failed state, got %s", client.Session().State())
	}
	if n := len(f.callsFor("notifications/initialized")); n != 0 {
		t.Errorf("expected no notification without a token, got %d", n)
	}

	// A later call tries again once the server starts issuing tokens.
	f.set(func(f *fakeServer) { f.mode = tokenInHeader })
	if _, err := client.Call(context.Background(), "echo", nil); err != nil {
		t.Fatalf("expected recovery after reinitialize, got %v", err)
	}
	if n := len(f.callsFor("initialize")); n != 2 {
		t.Errorf("expected 2 initialize attempts, got %d", n)
	}
}

func TestInitializeIdempotent(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	client := New(srv.URL)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Session().Initialize(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if err := client.Session().Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	if n := len(f.callsFor("initialize")); n != 1 {
		t.Errorf("expected exactly 1 initialize request, got %d", n)
	}
}

func TestNotificationFailureIsNotFatal(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) { f.notifyStatus = http.StatusInternalServerError })
	client := New(srv.URL)

	if err := client.Session().Initialize(context.Background()); err != nil {
		t.Fatalf("notification failure must not fail initialize: %v", err)
	}
	if !client.Session().Ready() {
		t.Error("expected ready session")
	}
}

func TestCallLazilyInitializes(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	client := New(srv.URL)

	raw, err := client.Call(context.Background(), "echo", map[string]any{"hello": "world"})
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["hello"] != "world" {
		t.Errorf("expected echo of params, got %v", got)
	}

	methods := f.methods()
	want := []string{"initialize", "notifications/initialized", "echo"}
	if strings.Join(methods, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, methods)
	}
}

func TestCallStreamedResponse(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) { f.streamed = true })
	client := New(srv.URL)

	raw, err := client.Call(context.Background(), "echo", map[string]any{"x": "y"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"x":"y"`) {
		t.Errorf("unexpected result %s", raw)
	}
}

func TestCallMatchesCorrelationID(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) {
		f.raw["multi"] = func(id string) string {
			return "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n" +
				"data: {\"jsonrpc\":\"2.0\",\"id\":\"other-1\",\"result\":{\"which\":\"other\"}}\n\n" +
				fmt.Sprintf("data: {\"jsonrpc\":\"2.0\",\"id\":%q,\"result\":{\"which\":\"mine\"}}\n\n", id)
		}
	})
	client := New(srv.URL)

	raw, err := client.Call(context.Background(), "multi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "mine") {
		t.Errorf("expected the frame with our id, got %s", raw)
	}
}

func TestCallFallsBackToFirstFrameWithID(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) {
		f.raw["rewritten"] = func(string) string {
			return "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/message\"}\n\n" +
				"data: {\"jsonrpc\":\"2.0\",\"id\":7,\"result\":{\"which\":\"first\"}}\n\n" +
				"data: {\"jsonrpc\":\"2.0\",\"id\":8,\"result\":{\"which\":\"second\"}}\n\n"
		}
	})
	client := New(srv.URL)

	raw, err := client.Call(context.Background(), "rewritten", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "first") {
		t.Errorf("expected first frame with an id, got %s", raw)
	}
}

func TestCallNoMatchingResponse(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) {
		f.raw["silent"] = func(string) string {
			return "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/message\"}\n\n"
		}
	})
	client := New(srv.URL)

	_, err := client.Call(context.Background(), "silent", nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !errors.Is(err, ErrNoMatchingResponse) {
		t.Errorf("expected ErrNoMatchingResponse, got %v", err)
	}
}

func TestCallRemoteError(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) { f.errors["broken"] = &ErrorObject{Code: -32000, Message: "database unavailable"} })
	client := New(srv.URL)

	_, err := client.Call(context.Background(), "broken", nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Message != "database unavailable" || remote.Code != -32000 {
		t.Errorf("unexpected remote error %+v", remote)
	}
	if IsTransient(err) {
		t.Error("remote errors must not be transient")
	}
}

func TestCallTimeout(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) { f.blocking["slow"] = true })
	client := New(srv.URL, WithCallTimeout(100*time.Millisecond))

	if err := client.Session().Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := client.Call(context.Background(), "slow", nil)
	var timeout *TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeout.Method != "slow" {
		t.Errorf("expected method slow, got %s", timeout.Method)
	}
	if timeout.After != 100*time.Millisecond {
		t.Errorf("expected deadline 100ms recorded, got %s", timeout.After)
	}
	var netErr interface{ Timeout() bool }
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Error("expected TimeoutError to report Timeout() == true")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected TimeoutError to unwrap to DeadlineExceeded")
	}
	if client.Pending() != 0 {
		t.Errorf("expected pending entry discarded, got %d", client.Pending())
	}
	if n := len(f.callsFor("slow")); n != 1 {
		t.Errorf("expected no automatic retry, got %d attempts", n)
	}
}

func TestCallSessionExpired(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	client := New(srv.URL)
	ctx := context.Background()

	if err := client.Session().Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	client.Session().setState(StateReady, "stale-token")

	_, err := client.Call(ctx, "echo", nil)
	var sessErr *SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected SessionError, got %v", err)
	}
	if client.Session().State() != StateUninitialized {
		t.Errorf("expected session reset, got %s", client.Session().State())
	}

	if _, err := client.Call(ctx, "echo", nil); err != nil {
		t.Fatalf("expected reinitialized call to succeed, got %v", err)
	}
	if n := len(f.callsFor("initialize")); n != 2 {
		t.Errorf("expected 2 initialize requests, got %d", n)
	}
}

func TestInvokeToolWarmup(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	client := New(srv.URL)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := client.InvokeTool(ctx, "fhir_request", map[string]any{"request": map[string]any{"method": "GET"}})
		if err != nil {
			t.Fatal(err)
		}
		if result.Text() != "called fhir_request" {
			t.Errorf("unexpected tool text %q", result.Text())
		}
	}

	var seq []string
	for _, m := range f.methods() {
		if m == "tools/list" || m == "tools/call" {
			seq = append(seq, m)
		}
	}
	want := "tools/list,tools/call,tools/list,tools/call"
	if strings.Join(seq, ",") != want {
		t.Errorf("expected %s, got %v", want, seq)
	}
}

func TestInvokeToolWarmupDisabled(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	client := New(srv.URL, WithWarmup(WarmupNever))

	if _, err := client.InvokeTool(context.Background(), "fhir_request", nil); err != nil {
		t.Fatal(err)
	}
	if n := len(f.callsFor("tools/list")); n != 0 {
		t.Errorf("expected no warm-up call, got %d", n)
	}
}

func TestInvokeToolIsError(t *testing.T) {
	f, srv := newFakeServer(t, tokenInHeader)
	f.set(func(f *fakeServer) {
		f.results["tools/call"] = func(map[string]any) any {
			return map[string]any{
				"isError": true,
				"content": []map[string]any{{"type": "text", "text": "unknown tool"}},
			}
		}
	})
	client := New(srv.URL)

	_, err := client.InvokeTool(context.Background(), "missing", nil)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if !strings.Contains(remote.Message, "unknown tool") {
		t.Errorf("expected server message, got %q", remote.Message)
	}
}
