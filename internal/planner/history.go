package planner

import (
	"sync"

	"github.com/user/healthchat/internal/types"
)

const DefaultHistorySize = 10

// History is a bounded ring of prior turns. When full, the oldest turn is
// evicted. It is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []types.Turn
	start int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &History{turns: make([]types.Turn, capacity)}
}

// Add records a turn.
func (h *History) Add(t types.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := len(h.turns)
	if h.size < c {
		h.turns[(h.start+h.size)%c] = t
		h.size++
		return
	}
	h.turns[h.start] = t
	h.start = (h.start + 1) % c
}

// Turns returns the retained turns, oldest first.
func (h *History) Turns() []types.Turn {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Turn, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.turns[(h.start+i)%len(h.turns)]
	}
	return out
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// LastResourceType is the type of the most recent turn that had one.
func (h *History) LastResourceType() (types.ResourceType, bool) {
	turns := h.Turns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].ResourceType != "" {
			return turns[i].ResourceType, true
		}
	}
	return "", false
}
