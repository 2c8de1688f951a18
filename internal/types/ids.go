// internal/types/ids.go
package types

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// SubjectID identifies the patient a set of records belongs to.
type SubjectID string

type ConversationID string

// DefaultConversation collects questions asked without a conversation id.
const DefaultConversation ConversationID = "default"
type RecordID string

var conversationIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// Valid reports whether the id is safe to use as a single path element.
func (c ConversationID) Valid() bool {
	return conversationIDRe.MatchString(string(c))
}

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

// Reference returns the FHIR-style reference for the subject ("Patient/<id>").
func (s SubjectID) Reference() string {
	return "Patient/" + string(s)
}

// ParseSubject accepts either a bare id or a "Patient/<id>" reference.
func ParseSubject(s string) SubjectID {
	s = strings.TrimSpace(s)
	return SubjectID(strings.TrimPrefix(s, "Patient/"))
}
