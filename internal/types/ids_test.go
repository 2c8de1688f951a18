// internal/types/ids_test.go
package types

import (
	"strings"
	"testing"
)

func TestNewConversationID(t *testing.T) {
	id := NewConversationID()
	if id == "" {
		t.Error("expected non-empty ConversationID")
	}
	if len(string(id)) != 36 {
		t.Errorf("expected UUID format, got %s", id)
	}
}

func TestSubjectReference(t *testing.T) {
	subject := ParseSubject(" Patient/abc-123 ")
	if subject != "abc-123" {
		t.Errorf("expected abc-123, got %s", subject)
	}
	if subject.Reference() != "Patient/abc-123" {
		t.Errorf("expected Patient/abc-123, got %s", subject.Reference())
	}
}

func TestConversationIDValid(t *testing.T) {
	for _, id := range []ConversationID{NewConversationID(), "default", "cli", "conv_1-a"} {
		if !id.Valid() {
			t.Errorf("expected %q to be valid", id)
		}
	}
	for _, id := range []ConversationID{"", "..", "../x", "a/b", `a\b`, "a b", ConversationID(strings.Repeat("x", 129))} {
		if id.Valid() {
			t.Errorf("expected %q to be rejected", id)
		}
	}
}
