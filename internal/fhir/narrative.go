package fhir

import (
	"encoding/base64"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const maxNarrativeChars = 2000

// Narrative returns the human-readable narrative of a resource as markdown.
// It reads text.div first and falls back to an inline HTML presentedForm
// attachment, as DiagnosticReports often carry their body there.
func Narrative(m map[string]any) string {
	html := String(m, "text.div")
	if html == "" {
		html = presentedHTML(m)
	}
	if html == "" {
		return ""
	}

	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		slog.Debug("narrative conversion failed", "error", err)
		return ""
	}
	md = strings.TrimSpace(md)
	if len(md) > maxNarrativeChars {
		md = md[:maxNarrativeChars] + "\n\n[Narrative truncated]"
	}
	return md
}

func presentedHTML(m map[string]any) string {
	forms, _ := m["presentedForm"].([]any)
	for _, f := range forms {
		form, ok := f.(map[string]any)
		if !ok {
			continue
		}
		contentType, _ := form["contentType"].(string)
		if !strings.HasPrefix(contentType, "text/html") {
			continue
		}
		data, _ := form["data"].(string)
		if data == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			continue
		}
		return string(decoded)
	}
	return ""
}
