package mcp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
)

// TokenExtractor tries to find the session token in an initialize response.
type TokenExtractor interface {
	Name() string
	Extract(header http.Header, body []byte) (string, bool)
}

// DefaultTokenChain is the resolution order for the session token: response
// header, then structured JSON body, then a scan of event-stream frames.
func DefaultTokenChain() []TokenExtractor {
	return []TokenExtractor{headerToken{}, bodyToken{}, frameToken{}}
}

// resolveToken walks the chain and returns the first token found along with
// the name of the extractor that produced it.
func resolveToken(chain []TokenExtractor, header http.Header, body []byte) (string, string, bool) {
	for _, ex := range chain {
		if token, ok := ex.Extract(header, body); ok {
			return token, ex.Name(), true
		}
	}
	return "", "", false
}

type headerToken struct{}

func (headerToken) Name() string { return "header" }

func (headerToken) Extract(header http.Header, _ []byte) (string, bool) {
	for key, values := range header {
		if !strings.EqualFold(key, SessionHeader) {
			continue
		}
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

type bodyToken struct{}

func (bodyToken) Name() string { return "body" }

func (bodyToken) Extract(_ http.Header, body []byte) (string, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	return tokenFromJSON(trimmed)
}

type frameToken struct{}

func (frameToken) Name() string { return "frames" }

func (frameToken) Extract(_ http.Header, body []byte) (string, bool) {
	for _, frame := range dataFrames(body) {
		if token, ok := tokenFromJSON(frame); ok {
			return token, true
		}
	}
	return "", false
}

// tokenFromJSON looks for a session id at the top level of an envelope or
// inside its result member.
func tokenFromJSON(data []byte) (string, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", false
	}
	if token, ok := sessionField(doc); ok {
		return token, true
	}
	if raw, ok := doc["result"]; ok {
		var result map[string]json.RawMessage
		if err := json.Unmarshal(raw, &result); err == nil {
			return sessionField(result)
		}
	}
	return "", false
}

func sessionField(doc map[string]json.RawMessage) (string, bool) {
	for _, key := range []string{"sessionId", "session_id", "mcpSessionId"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var token string
		if err := json.Unmarshal(raw, &token); err == nil && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), true
		}
	}
	return "", false
}
