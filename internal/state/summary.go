package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/user/healthchat/internal/types"
)

var ErrNoSummary = errors.New("no sync summary")

// SummaryStore keeps the latest sync summary per subject as
// summaries/<subject>.json, written atomically.
type SummaryStore struct {
	root string
	mu   sync.RWMutex
}

func NewSummaryStore(root string) *SummaryStore {
	return &SummaryStore{root: root}
}

func (s *SummaryStore) dir() string {
	return filepath.Join(s.root, "summaries")
}

func (s *SummaryStore) path(subject types.SubjectID) string {
	return filepath.Join(s.dir(), string(subject)+".json")
}

func (s *SummaryStore) Save(_ context.Context, summary *types.Summary) error {
	if summary.Subject == "" {
		return fmt.Errorf("save summary: missing subject")
	}
	if strings.ContainsAny(string(summary.Subject), `/\`) {
		return fmt.Errorf("save summary: invalid subject %q", summary.Subject)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return fmt.Errorf("create summaries dir: %w", err)
	}
	// Atomic write: write to temp file then rename
	tmp := s.path(summary.Subject) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp summary: %w", err)
	}
	if err := os.Rename(tmp, s.path(summary.Subject)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp summary: %w", err)
	}
	return nil
}

// Get returns the last summary for subject, or ErrNoSummary.
func (s *SummaryStore) Get(_ context.Context, subject types.SubjectID) (*types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(s.path(subject))
}

func (s *SummaryStore) read(path string) (*types.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSummary
		}
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var summary types.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &summary, nil
}

// List returns every stored summary ordered by subject.
func (s *SummaryStore) List(_ context.Context) ([]*types.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read summaries dir: %w", err)
	}
	var out []*types.Summary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		summary, err := s.read(filepath.Join(s.dir(), e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}
