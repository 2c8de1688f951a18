package store

import (
	"context"
	"sync"

	"github.com/user/healthchat/internal/types"
)

type recordKey struct {
	rt types.ResourceType
	id types.RecordID
}

type subjectRecords struct {
	order map[types.ResourceType][]types.RecordID
	byKey map[recordKey]types.Record
}

// MemoryStore keeps records in process memory. Records of a type are
// returned in first-insert order.
type MemoryStore struct {
	mu       sync.RWMutex
	subjects map[types.SubjectID]*subjectRecords
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subjects: make(map[types.SubjectID]*subjectRecords)}
}

func (m *MemoryStore) GetRecords(_ context.Context, subject types.SubjectID, rt types.ResourceType) ([]types.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sr, ok := m.subjects[subject]
	if !ok {
		return []types.Record{}, nil
	}
	ids := sr.order[rt]
	out := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, sr.byKey[recordKey{rt, id}])
	}
	return out, nil
}

func (m *MemoryStore) UpsertRecord(_ context.Context, subject types.SubjectID, rec types.Record) error {
	if err := validate(subject, rec); err != nil {
		return err
	}
	rec.Subject = subject

	m.mu.Lock()
	defer m.mu.Unlock()
	sr, ok := m.subjects[subject]
	if !ok {
		sr = &subjectRecords{
			order: make(map[types.ResourceType][]types.RecordID),
			byKey: make(map[recordKey]types.Record),
		}
		m.subjects[subject] = sr
	}
	key := recordKey{rec.ResourceType, rec.ID}
	if _, exists := sr.byKey[key]; !exists {
		sr.order[rec.ResourceType] = append(sr.order[rec.ResourceType], rec.ID)
	}
	sr.byKey[key] = rec
	return nil
}

func (m *MemoryStore) DeleteAllForSubject(_ context.Context, subject types.SubjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subjects, subject)
	return nil
}

func (m *MemoryStore) GetCounts(_ context.Context, subject types.SubjectID) (map[types.ResourceType]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[types.ResourceType]int)
	if sr, ok := m.subjects[subject]; ok {
		for rt, ids := range sr.order {
			if len(ids) > 0 {
				counts[rt] = len(ids)
			}
		}
	}
	return counts, nil
}

func (m *MemoryStore) Close() error { return nil }
