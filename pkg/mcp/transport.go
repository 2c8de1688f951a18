package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// rawResponse is what the transport hands back before any envelope parsing.
type rawResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// transport posts JSON-RPC envelopes to the single endpoint.
type transport struct {
	http     *resty.Client
	endpoint string
}

func newTransport(endpoint string, hc *http.Client) *transport {
	var client *resty.Client
	if hc != nil {
		client = resty.NewWithClient(hc)
	} else {
		client = resty.New()
	}
	client.
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json, text/event-stream").
		SetRetryCount(0)
	return &transport{http: client, endpoint: endpoint}
}

// post sends one envelope. token is attached as the session header when set.
func (t *transport) post(ctx context.Context, env Request, token string) (*rawResponse, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", env.Method, err)
	}

	req := t.http.R().
		SetContext(ctx).
		SetBody(body)
	if token != "" {
		req.SetHeader(SessionHeader, token)
	}

	resp, err := req.Post(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("posting %s: %w", env.Method, err)
	}

	return &rawResponse{
		Status: resp.StatusCode(),
		Header: resp.Header(),
		Body:   resp.Body(),
	}, nil
}
