// internal/types/models.go
package types

import (
	"strings"
	"time"
)

// ResourceType is the FHIR resource type tag of a clinical record.
type ResourceType string

const (
	Patient             ResourceType = "Patient"
	Encounter           ResourceType = "Encounter"
	Observation         ResourceType = "Observation"
	MedicationRequest   ResourceType = "MedicationRequest"
	Condition           ResourceType = "Condition"
	AllergyIntolerance  ResourceType = "AllergyIntolerance"
	Immunization        ResourceType = "Immunization"
	DiagnosticReport    ResourceType = "DiagnosticReport"
	DocumentReference   ResourceType = "DocumentReference"
	FamilyMemberHistory ResourceType = "FamilyMemberHistory"
	Procedure           ResourceType = "Procedure"
)

// ResourceTypes lists every supported type, Patient first.
var ResourceTypes = []ResourceType{
	Patient,
	Encounter,
	Observation,
	MedicationRequest,
	Condition,
	AllergyIntolerance,
	Immunization,
	DiagnosticReport,
	DocumentReference,
	FamilyMemberHistory,
	Procedure,
}

// ParseResourceType matches a resource type name case-insensitively.
func ParseResourceType(s string) (ResourceType, bool) {
	for _, rt := range ResourceTypes {
		if strings.EqualFold(string(rt), strings.TrimSpace(s)) {
			return rt, true
		}
	}
	return "", false
}

// Label is the human wording used in answers.
func (rt ResourceType) Label() string {
	switch rt {
	case Encounter:
		return "visits"
	case Observation:
		return "observations"
	case MedicationRequest:
		return "medications"
	case Condition:
		return "conditions"
	case AllergyIntolerance:
		return "allergies"
	case Immunization:
		return "immunizations"
	case DiagnosticReport:
		return "test results"
	case DocumentReference:
		return "documents"
	case FamilyMemberHistory:
		return "family history entries"
	case Procedure:
		return "procedures"
	case Patient:
		return "patient details"
	default:
		return strings.ToLower(string(rt))
	}
}

// Record is a single clinical resource owned by a subject.
// (Subject, ResourceType, ID) is unique; a later write replaces the earlier one.
type Record struct {
	Subject      SubjectID      `json:"subject"`
	ResourceType ResourceType   `json:"resource_type"`
	ID           RecordID       `json:"id"`
	Payload      map[string]any `json:"payload"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Strategy selects where a plan is resolved.
type Strategy string

const (
	StrategyLocalWithFallback Strategy = "local_with_fallback"
	StrategyLocalOnly         Strategy = "local_only"
	StrategyRemoteOnly        Strategy = "remote_only"
)

// CodeSearch narrows records to a named code bucket.
type CodeSearch struct {
	Bucket string   `json:"bucket"`
	Codes  []string `json:"codes,omitempty"`
	Terms  []string `json:"terms,omitempty"`
}

// SortSpec orders records by their date-like field.
type SortSpec struct {
	Descending bool `json:"descending"`
}

type Filters struct {
	CodeSearch *CodeSearch `json:"code_search,omitempty"`
	Status     string      `json:"status,omitempty"`
	Sort       *SortSpec   `json:"sort,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

// Plan is the structured form of one user query. It is built per query,
// executed once and discarded.
type Plan struct {
	Text             string       `json:"text"`
	Subject          SubjectID    `json:"subject"`
	ResourceType     ResourceType `json:"resource_type"`
	Filters          Filters      `json:"filters"`
	RecordIndex      *int         `json:"record_index,omitempty"`
	Strategy         Strategy     `json:"strategy"`
	FallbackToRemote bool         `json:"fallback_to_remote"`
}

// Clarification is returned instead of a plan when the query is ambiguous.
type Clarification struct {
	Reason  string   `json:"reason"`
	Options []string `json:"options"`
}

// Turn is one entry of the conversation history.
type Turn struct {
	Text         string       `json:"text"`
	ResourceType ResourceType `json:"resource_type,omitempty"`
	Matches      int          `json:"matches"`
	At           time.Time    `json:"at"`
}

// FetchStatus is the per-type state of a sync run. Completed and Error are terminal.
type FetchStatus string

const (
	FetchPending    FetchStatus = "pending"
	FetchInProgress FetchStatus = "in_progress"
	FetchCompleted  FetchStatus = "completed"
	FetchError      FetchStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s FetchStatus) Terminal() bool {
	return s == FetchCompleted || s == FetchError
}

type FetchProgress struct {
	ResourceType ResourceType `json:"resource_type"`
	Status       FetchStatus  `json:"status"`
	Count        *int         `json:"count,omitempty"`
	Error        string       `json:"error,omitempty"`
	Progress     *float64     `json:"progress,omitempty"`
}

// ProgressFunc is invoked synchronously at every fetch state transition.
type ProgressFunc func(FetchProgress)

// Summary is the outcome of a sync run.
type Summary struct {
	Subject        SubjectID            `json:"subject"`
	TotalResources int                  `json:"total_resources"`
	Counts         map[ResourceType]int `json:"counts"`
	Stored         map[ResourceType]int `json:"stored"`
	Errors         []string             `json:"errors"`
	StoreErrors    []string             `json:"store_errors,omitempty"`
	StartedAt      time.Time            `json:"started_at"`
	FinishedAt     time.Time            `json:"finished_at"`
	Complete       bool                 `json:"complete"`
}

// Answer sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceNone   = "none"
)

// Answer is the reply to one question: rendered text plus the plan or
// clarification behind it and the records it was built from.
type Answer struct {
	ConversationID ConversationID `json:"conversation_id"`
	Text           string         `json:"text"`
	Plan           *Plan          `json:"plan,omitempty"`
	Clarification  *Clarification `json:"clarification,omitempty"`
	Records        []Record       `json:"records,omitempty"`
	Source         string         `json:"source"`
}
