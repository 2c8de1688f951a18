package state

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/healthchat/internal/types"
)

// ErrInvalidConversation rejects ids that are not a plain path element.
var ErrInvalidConversation = errors.New("invalid conversation id")

func checkConversation(id types.ConversationID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidConversation, id)
	}
	return nil
}

// HistoryLog is a JSONL-backed append-only conversation log, stored per
// conversation in conversations/<id>/history.jsonl.
type HistoryLog struct {
	root  string
	mu    sync.Mutex
	locks map[types.ConversationID]*sync.Mutex
}

func NewHistoryLog(root string) *HistoryLog {
	return &HistoryLog{
		root:  root,
		locks: make(map[types.ConversationID]*sync.Mutex),
	}
}

func (h *HistoryLog) getLock(id types.ConversationID) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()

	if lock, ok := h.locks[id]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	h.locks[id] = lock
	return lock
}

func (h *HistoryLog) path(id types.ConversationID) string {
	return filepath.Join(h.root, "conversations", string(id), "history.jsonl")
}

// count reads the log and counts lines. Caller must hold the conversation lock.
func (h *HistoryLog) count(id types.ConversationID) (int64, error) {
	f, err := os.Open(h.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var n int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("scan history file: %w", err)
	}
	return n, nil
}

// Append writes an entry, assigning the next sequence number.
func (h *HistoryLog) Append(_ context.Context, entry *types.HistoryEntry) error {
	if err := checkConversation(entry.ConversationID); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	lock := h.getLock(entry.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(h.path(entry.ConversationID)), 0o755); err != nil {
		return fmt.Errorf("create conversation dir: %w", err)
	}

	existing, err := h.count(entry.ConversationID)
	if err != nil {
		return err
	}
	entry.Seq = existing + 1
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}

	f, err := os.OpenFile(h.path(entry.ConversationID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write history entry: %w", err)
	}
	return nil
}

// Tail returns the last limit entries, oldest first.
func (h *HistoryLog) Tail(_ context.Context, id types.ConversationID, limit int) ([]*types.HistoryEntry, error) {
	if err := checkConversation(id); err != nil {
		return nil, fmt.Errorf("tail history: %w", err)
	}
	lock := h.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(h.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var entries []*types.HistoryEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e types.HistoryEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("unmarshal history entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan history file: %w", err)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (h *HistoryLog) Count(_ context.Context, id types.ConversationID) (int64, error) {
	if err := checkConversation(id); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	lock := h.getLock(id)
	lock.Lock()
	defer lock.Unlock()

	return h.count(id)
}

// Conversations lists the ids that have a history log.
func (h *HistoryLog) Conversations() ([]types.ConversationID, error) {
	dirs, err := os.ReadDir(filepath.Join(h.root, "conversations"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read conversations dir: %w", err)
	}
	var ids []types.ConversationID
	for _, d := range dirs {
		if d.IsDir() {
			ids = append(ids, types.ConversationID(d.Name()))
		}
	}
	return ids, nil
}
