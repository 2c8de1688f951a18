package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

type tokenMode int

const (
	tokenInHeader tokenMode = iota
	tokenInBody
	tokenInFrame
	tokenNowhere
)

type recordedCall struct {
	Method  string
	Session string
	ID      string
}

// fakeServer is a minimal stateful MCP endpoint for client tests.
type fakeServer struct {
	mode         tokenMode
	token        string
	streamed     bool
	notifyStatus int

	mu       sync.Mutex
	calls    []recordedCall
	results  map[string]func(params map[string]any) any
	errors   map[string]*ErrorObject
	raw      map[string]func(id string) string
	blocking map[string]bool
}

func newFakeServer(t *testing.T, mode tokenMode) (*fakeServer, *httptest.Server) {
	t.Helper()
	f := &fakeServer{
		mode:         mode,
		token:        "sess-123",
		notifyStatus: http.StatusAccepted,
		results: map[string]func(map[string]any) any{
			"tools/list": func(map[string]any) any {
				return map[string]any{"tools": []map[string]any{{"name": "fhir_request"}}}
			},
			"tools/call": func(params map[string]any) any {
				return map[string]any{"content": []map[string]any{{"type": "text", "text": fmt.Sprintf("called %v", params["name"])}}}
			},
			"echo": func(params map[string]any) any { return params },
		},
		errors:   map[string]*ErrorObject{},
		raw:      map[string]func(string) string{},
		blocking: map[string]bool{},
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeServer) callsFor(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeServer) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string         `json:"id"`
		Method string         `json:"method"`
		Params map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: req.Method, Session: r.Header.Get(SessionHeader), ID: req.ID})
	mode, token, notifyStatus, streamed := f.mode, f.token, f.notifyStatus, f.streamed
	rawFn, hasRaw := f.raw[req.Method]
	rpcErr, hasErr := f.errors[req.Method]
	resultFn, hasResult := f.results[req.Method]
	blocking := f.blocking[req.Method]
	f.mu.Unlock()

	switch req.Method {
	case "initialize":
		result := map[string]any{"protocolVersion": ProtocolVersion, "serverInfo": map[string]any{"name": "fake"}}
		switch mode {
		case tokenInHeader:
			w.Header().Set(SessionHeader, token)
			f.write(w, req.ID, result, nil, false)
		case tokenInBody:
			result["sessionId"] = token
			f.write(w, req.ID, result, nil, false)
		case tokenInFrame:
			result["sessionId"] = token
			f.write(w, req.ID, result, nil, true)
		default:
			f.write(w, req.ID, result, nil, false)
		}
		return
	case "notifications/initialized":
		w.WriteHeader(notifyStatus)
		return
	}

	switch got := r.Header.Get(SessionHeader); {
	case got == "":
		http.Error(w, "missing session", http.StatusBadRequest)
		return
	case got != token:
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if blocking {
		<-r.Context().Done()
		return
	}
	if hasRaw {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, rawFn(req.ID))
		return
	}
	if hasErr {
		f.write(w, req.ID, nil, rpcErr, streamed)
		return
	}
	if !hasResult {
		f.write(w, req.ID, nil, &ErrorObject{Code: -32601, Message: "method not found"}, streamed)
		return
	}
	f.write(w, req.ID, resultFn(req.Params), nil, streamed)
}

// set mutates server behaviour under the lock.
func (f *fakeServer) set(fn func(f *fakeServer)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeServer) write(w http.ResponseWriter, id string, result any, rpcErr *ErrorObject, streamed bool) {
	env := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		env["error"] = rpcErr
	} else {
		env["result"] = result
	}
	data, _ := json.Marshal(env)
	if streamed {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
