package fhir

import (
	"strings"
	"time"
)

// Lookup walks a dotted path through nested objects. When an array is met
// part-way, the walk continues into its first element.
func Lookup(m map[string]any, path string) (any, bool) {
	var cur any = m
	for _, seg := range strings.Split(path, ".") {
		if arr, ok := cur.([]any); ok {
			if len(arr) == 0 {
				return nil, false
			}
			cur = arr[0]
		}
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "".
func String(m map[string]any, path string) string {
	v, ok := Lookup(m, path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Strings collects every string reachable at path, fanning out over arrays.
func Strings(m map[string]any, path string) []string {
	var out []string
	collect(m, strings.Split(path, "."), &out)
	return out
}

func collect(v any, segs []string, out *[]string) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			collect(item, segs, out)
		}
	case map[string]any:
		if len(segs) == 0 {
			return
		}
		collect(t[segs[0]], segs[1:], out)
	case string:
		if len(segs) == 0 && t != "" {
			*out = append(*out, t)
		}
	}
}

// Text returns the readable text of a CodeableConcept at path: its text
// member, else the first coding display.
func Text(m map[string]any, path string) string {
	if s := String(m, path+".text"); s != "" {
		return s
	}
	if displays := Strings(m, path+".coding.display"); len(displays) > 0 {
		return displays[0]
	}
	return ""
}

// Status returns the status of a resource. Condition and AllergyIntolerance
// keep it in clinicalStatus rather than a plain status field.
func Status(m map[string]any) string {
	if s := String(m, "status"); s != "" {
		return s
	}
	if codes := Strings(m, "clinicalStatus.coding.code"); len(codes) > 0 {
		return codes[0]
	}
	return String(m, "clinicalStatus.text")
}

// DateFields is the priority list of date-like fields used for sorting and
// display. The first populated one wins.
var DateFields = []string{
	"effectiveDateTime",
	"effectivePeriod.start",
	"period.start",
	"issued",
	"authoredOn",
	"occurrenceDateTime",
	"performedDateTime",
	"performedPeriod.start",
	"onsetDateTime",
	"recordedDate",
	"date",
	"birthDate",
	"meta.lastUpdated",
}

// RecordDate returns the first populated date-like field of a resource.
func RecordDate(m map[string]any) (string, bool) {
	for _, path := range DateFields {
		if s := String(m, path); s != "" {
			return s, true
		}
	}
	return "", false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate parses the FHIR date and dateTime forms.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
