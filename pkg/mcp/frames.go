package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
)

// dataFrames returns the payload of every "data:" event in an event-stream
// body. Multi-line events are joined; when the joined payload is not valid
// JSON each line is returned on its own, since some servers omit the blank
// line between events.
func dataFrames(body []byte) [][]byte {
	var frames [][]byte
	var event []string

	flush := func() {
		if len(event) == 0 {
			return
		}
		joined := strings.Join(event, "\n")
		if json.Valid([]byte(joined)) || len(event) == 1 {
			frames = append(frames, []byte(joined))
		} else {
			for _, line := range event {
				frames = append(frames, []byte(line))
			}
		}
		event = event[:0]
	}

	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "data:"):
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload != "" {
				event = append(event, payload)
			}
		}
	}
	flush()
	return frames
}

// decodeResponses parses a body that is either a bare JSON envelope, a JSON
// batch, or an event stream of envelopes. Frames that do not decode are skipped.
func decodeResponses(body []byte) []Response {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '{':
		var resp Response
		if err := json.Unmarshal(trimmed, &resp); err == nil {
			return []Response{resp}
		}
	case '[':
		var batch []Response
		if err := json.Unmarshal(trimmed, &batch); err == nil {
			return batch
		}
	}

	var out []Response
	for _, frame := range dataFrames(trimmed) {
		var resp Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			continue
		}
		out = append(out, resp)
	}
	return out
}

// responseID normalizes a raw id to its string form. Null and absent ids are "".
func responseID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// matchResponse picks the envelope whose id equals want. If none matches, the
// first envelope carrying any id is used: the server has been seen echoing
// rewritten ids on streamed responses.
func matchResponse(responses []Response, want string) (*Response, bool) {
	var fallback *Response
	for i := range responses {
		id := responseID(responses[i].ID)
		if id == "" {
			continue
		}
		if id == want {
			return &responses[i], true
		}
		if fallback == nil {
			fallback = &responses[i]
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}
