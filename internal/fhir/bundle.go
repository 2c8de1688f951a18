// Package fhir holds the small slice of FHIR R4 the client needs: bundle
// shapes, response unwrapping, search paths and field lookups.
package fhir

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/healthchat/internal/types"
	"github.com/user/healthchat/pkg/mcp"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// Resource is a decoded resource body.
type Resource = map[string]any

// ResourcesFromToolResult extracts every resource carried by a tool result.
// Structured content wins over text blocks when both are present.
func ResourcesFromToolResult(res *mcp.ToolResult) ([]Resource, error) {
	if res == nil {
		return nil, nil
	}
	if len(res.StructuredContent) > 0 {
		return ExtractResources(res.StructuredContent)
	}

	var out []Resource
	for _, c := range res.Content {
		if c.Type != "text" && c.Type != "" {
			continue
		}
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		found, err := ExtractResources([]byte(text))
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}
	return out, nil
}

// ExtractResources unwraps a response payload. It accepts a Bundle, a bare
// resource, an array of either, or an HTTP-shaped wrapper {"status", "body"}
// whose body may itself be a JSON string.
func ExtractResources(data []byte) ([]Resource, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse response payload: %w", err)
	}
	return unwrap(v)
}

func unwrap(v any) ([]Resource, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		trimmed := strings.TrimSpace(t)
		if trimmed == "" {
			return nil, nil
		}
		return ExtractResources([]byte(trimmed))
	case []any:
		var out []Resource
		for _, item := range t {
			found, err := unwrap(item)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return out, nil
	case map[string]any:
		return unwrapObject(t)
	default:
		return nil, fmt.Errorf("unexpected payload of type %T", v)
	}
}

func unwrapObject(m map[string]any) ([]Resource, error) {
	rt, _ := m["resourceType"].(string)
	switch {
	case rt == "Bundle":
		return bundleResources(m)
	case rt == "OperationOutcome":
		if msg, failed := outcomeError(m); failed {
			return nil, fmt.Errorf("server outcome: %s", msg)
		}
		return nil, nil
	case rt != "":
		return []Resource{m}, nil
	}

	if status, ok := m["status"].(float64); ok && status >= 400 {
		return nil, fmt.Errorf("fhir request failed with status %d", int(status))
	}
	if body, ok := m["body"]; ok {
		return unwrap(body)
	}
	if _, ok := m["entry"]; ok {
		return bundleResources(m)
	}
	if inner, ok := m["resource"]; ok {
		return unwrap(inner)
	}
	return nil, nil
}

func bundleResources(m map[string]any) ([]Resource, error) {
	entries, _ := m["entry"].([]any)
	out := make([]Resource, 0, len(entries))
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		res, ok := entry["resource"].(map[string]any)
		if !ok {
			continue
		}
		if rt, _ := res["resourceType"].(string); rt == "OperationOutcome" {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

func outcomeError(m map[string]any) (string, bool) {
	issues, _ := m["issue"].([]any)
	for _, i := range issues {
		issue, ok := i.(map[string]any)
		if !ok {
			continue
		}
		severity, _ := issue["severity"].(string)
		if severity != "error" && severity != "fatal" {
			continue
		}
		if msg, _ := issue["diagnostics"].(string); msg != "" {
			return msg, true
		}
		if details := Text(issue, "details"); details != "" {
			return details, true
		}
		return severity, true
	}
	return "", false
}

// ToRecords converts decoded resources into records owned by subject.
// Resources without an id or with an unknown type are skipped.
func ToRecords(subject types.SubjectID, resources []Resource) []types.Record {
	now := time.Now()
	out := make([]types.Record, 0, len(resources))
	for _, res := range resources {
		rtName, _ := res["resourceType"].(string)
		rt, ok := types.ParseResourceType(rtName)
		if !ok {
			slog.Debug("skipping unsupported resource", "resource_type", rtName)
			continue
		}
		id, _ := res["id"].(string)
		if id == "" {
			slog.Warn("skipping resource without id", "resource_type", rtName)
			continue
		}
		out = append(out, types.Record{
			Subject:      subject,
			ResourceType: rt,
			ID:           types.RecordID(id),
			Payload:      res,
			UpdatedAt:    now,
		})
	}
	return out
}
