package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/healthchat/internal/fhir"
	"github.com/user/healthchat/internal/types"
	"github.com/user/healthchat/pkg/mcp"
)

// FormatRecords renders records as a short conversational reply.
func FormatRecords(plan *types.Plan, records []types.Record) string {
	label := plan.ResourceType.Label()
	if len(records) == 0 {
		if plan.RecordIndex != nil {
			return fmt.Sprintf("I couldn't find %s number %d.", singular(plan.ResourceType), *plan.RecordIndex+1)
		}
		return fmt.Sprintf("I couldn't find any %s.", label)
	}

	if plan.RecordIndex != nil {
		return formatDetail(records[0])
	}

	var b strings.Builder
	switch {
	case plan.Filters.Sort != nil && plan.Filters.Sort.Descending:
		fmt.Fprintf(&b, "Here are your %d most recent %s:\n", len(records), label)
	default:
		fmt.Fprintf(&b, "I found %d %s:\n", len(records), label)
	}
	for i, rec := range records {
		fmt.Fprintf(&b, "%d. %s\n", i+1, Summarize(rec))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatDetail(rec types.Record) string {
	line := Summarize(rec)
	if narrative := fhir.Narrative(rec.Payload); narrative != "" {
		return line + "\n\n" + narrative
	}
	return line
}

func singular(rt types.ResourceType) string {
	switch rt {
	case types.Encounter:
		return "visit"
	case types.MedicationRequest:
		return "medication"
	case types.AllergyIntolerance:
		return "allergy"
	case types.DiagnosticReport:
		return "test result"
	case types.FamilyMemberHistory:
		return "family history entry"
	}
	return strings.TrimSuffix(rt.Label(), "s")
}

// Summarize renders one record as a single line.
func Summarize(rec types.Record) string {
	p := rec.Payload
	var parts []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}

	switch rec.ResourceType {
	case types.Patient:
		add(patientName(p))
		add(fhir.String(p, "birthDate"))
	case types.Encounter:
		add(firstNonEmpty(fhir.Text(p, "type"), fhir.String(p, "class.display"), "Visit"))
		add(fhir.String(p, "serviceProvider.display"))
	case types.Observation:
		add(observationLine(p))
	case types.MedicationRequest:
		add(firstNonEmpty(fhir.Text(p, "medicationCodeableConcept"), fhir.String(p, "medicationReference.display"), "Medication"))
		add(fhir.String(p, "dosageInstruction.text"))
	case types.Condition:
		add(firstNonEmpty(fhir.Text(p, "code"), "Condition"))
	case types.AllergyIntolerance:
		add(firstNonEmpty(fhir.Text(p, "code"), "Allergy"))
		if reactions := fhir.Strings(p, "reaction.manifestation.coding.display"); len(reactions) > 0 {
			add("reaction: " + strings.Join(reactions, ", "))
		}
		add(fhir.String(p, "criticality"))
	case types.Immunization:
		add(firstNonEmpty(fhir.Text(p, "vaccineCode"), "Immunization"))
	case types.DiagnosticReport:
		add(firstNonEmpty(fhir.Text(p, "code"), "Report"))
		add(fhir.String(p, "conclusion"))
	case types.DocumentReference:
		add(firstNonEmpty(fhir.String(p, "description"), fhir.Text(p, "type"), "Document"))
	case types.FamilyMemberHistory:
		add(firstNonEmpty(fhir.Text(p, "relationship"), "Relative"))
		if conds := fhir.Strings(p, "condition.code.text"); len(conds) > 0 {
			add(strings.Join(conds, ", "))
		}
	case types.Procedure:
		add(firstNonEmpty(fhir.Text(p, "code"), "Procedure"))
	default:
		add(string(rec.ResourceType) + " " + string(rec.ID))
	}

	line := strings.Join(parts, ", ")
	if status := fhir.Status(p); status != "" && rec.ResourceType != types.Patient {
		line += " (" + status + ")"
	}
	if rec.ResourceType != types.Patient {
		if date, ok := fhir.RecordDate(p); ok {
			line = displayDate(date) + ": " + line
		}
	}
	return line
}

func observationLine(p map[string]any) string {
	name := firstNonEmpty(fhir.Text(p, "code"), "Observation")
	if v := quantity(p, "valueQuantity"); v != "" {
		return name + " " + v
	}
	if s := fhir.String(p, "valueString"); s != "" {
		return name + " " + s
	}
	if s := fhir.Text(p, "valueCodeableConcept"); s != "" {
		return name + " " + s
	}
	// Blood pressure and similar panels carry their values in components.
	comps, _ := p["component"].([]any)
	var values []string
	unit := ""
	for _, c := range comps {
		comp, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := fhir.Lookup(comp, "valueQuantity.value"); ok {
			values = append(values, number(v))
			if unit == "" {
				unit = fhir.String(comp, "valueQuantity.unit")
			}
		}
	}
	if len(values) > 0 {
		return strings.TrimSpace(name + " " + strings.Join(values, "/") + " " + unit)
	}
	return name
}

func quantity(p map[string]any, path string) string {
	v, ok := fhir.Lookup(p, path+".value")
	if !ok {
		return ""
	}
	unit := firstNonEmpty(fhir.String(p, path+".unit"), fhir.String(p, path+".code"))
	return strings.TrimSpace(number(v) + " " + unit)
}

func number(v any) string {
	switch n := v.(type) {
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", n), "0"), ".")
	default:
		return fmt.Sprint(v)
	}
}

func patientName(p map[string]any) string {
	names, _ := p["name"].([]any)
	if len(names) == 0 {
		return ""
	}
	first, ok := names[0].(map[string]any)
	if !ok {
		return ""
	}
	if text := fhir.String(first, "text"); text != "" {
		return text
	}
	parts := append(fhir.Strings(first, "given"), fhir.String(first, "family"))
	return strings.TrimSpace(strings.Join(parts, " "))
}

func displayDate(raw string) string {
	t, ok := fhir.ParseDate(raw)
	if !ok {
		return raw
	}
	switch len(raw) {
	case 4:
		return t.Format("2006")
	case 7:
		return t.Format("Jan 2006")
	}
	return t.Format("Jan 2, 2006")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FormatClarification renders a clarification with its options.
func FormatClarification(c *types.Clarification) string {
	var b strings.Builder
	b.WriteString(c.Reason)
	b.WriteString(" You could try:")
	for _, opt := range c.Options {
		b.WriteString("\n- ")
		b.WriteString(opt)
	}
	return b.String()
}

// FormatFailure is the plain-language reply for a failed remote lookup.
func FormatFailure(rt types.ResourceType, err error) string {
	var (
		timeout *mcp.TimeoutError
		remote  *mcp.RemoteError
		session *mcp.SessionError
	)
	switch {
	case errors.Is(err, ErrNoSubject):
		return "I don't know whose records to look up yet. Set a subject and try again."
	case errors.As(err, &timeout):
		return fmt.Sprintf("The health record server took too long to answer about your %s. Please try again in a moment.", rt.Label())
	case errors.As(err, &session):
		return "I couldn't open a session with the health record server. Please try again."
	case errors.As(err, &remote):
		return fmt.Sprintf("The health record server couldn't look up your %s: %s", rt.Label(), remote.Message)
	default:
		return fmt.Sprintf("I couldn't reach the health record server to look up your %s.", rt.Label())
	}
}
