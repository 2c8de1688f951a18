// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// RecordStore is the local record store shared by the resolver and the sync
// orchestrator. Upserts are keyed by (subject, resource type, record id) and
// the last writer wins.
type RecordStore interface {
	GetRecords(ctx context.Context, subject SubjectID, resourceType ResourceType) ([]Record, error)
	UpsertRecord(ctx context.Context, subject SubjectID, record Record) error
	DeleteAllForSubject(ctx context.Context, subject SubjectID) error
	GetCounts(ctx context.Context, subject SubjectID) (map[ResourceType]int, error)
	Close() error
}

// HistoryEntry is one persisted question/answer exchange.
type HistoryEntry struct {
	Seq            int64          `json:"seq"`
	ConversationID ConversationID `json:"conversation_id"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	ResourceType   ResourceType   `json:"resource_type,omitempty"`
	Matches        int            `json:"matches"`
	Source         string         `json:"source,omitempty"`
	Clarification  bool           `json:"clarification,omitempty"`
	Error          string         `json:"error,omitempty"`
	At             time.Time      `json:"at"`
}

// HistoryStore is the append-only log of exchanges per conversation.
type HistoryStore interface {
	Append(ctx context.Context, entry *HistoryEntry) error
	Tail(ctx context.Context, id ConversationID, limit int) ([]*HistoryEntry, error)
	Count(ctx context.Context, id ConversationID) (int64, error)
}

// SummaryStore keeps the most recent sync summary per subject.
type SummaryStore interface {
	Save(ctx context.Context, summary *Summary) error
	Get(ctx context.Context, subject SubjectID) (*Summary, error)
	List(ctx context.Context) ([]*Summary, error)
}
