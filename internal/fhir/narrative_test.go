package fhir

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNarrativeFromDiv(t *testing.T) {
	res := map[string]any{"text": map[string]any{
		"div": `<div xmlns="http://www.w3.org/1999/xhtml"><p><b>Chest pain</b> resolved</p></div>`,
	}}
	got := Narrative(res)
	if !strings.Contains(got, "**Chest pain**") {
		t.Errorf("Narrative = %q, want bold markdown", got)
	}
}

func TestNarrativeFromPresentedForm(t *testing.T) {
	html := base64.StdEncoding.EncodeToString([]byte("<h1>Report</h1><p>Normal</p>"))
	res := map[string]any{"presentedForm": []any{
		map[string]any{"contentType": "application/pdf", "data": "AAAA"},
		map[string]any{"contentType": "text/html", "data": html},
	}}
	got := Narrative(res)
	if !strings.Contains(got, "# Report") || !strings.Contains(got, "Normal") {
		t.Errorf("Narrative = %q", got)
	}
}

func TestNarrativeEmpty(t *testing.T) {
	if got := Narrative(map[string]any{}); got != "" {
		t.Errorf("Narrative = %q, want empty", got)
	}
}
