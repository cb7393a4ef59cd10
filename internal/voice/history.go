package voice

import (
	"sync"
	"time"

	"github.com/banglarag/banglarag/internal/rag"
)

// Turn is one question and answer exchange.
type Turn struct {
	Question  string
	Answer    string
	Citations []rag.Citation
	Language  string
	Timestamp time.Time
}

// History is the append-only, ordered record of a conversation session.
//
// Turns are only ever appended from the controller's processing step, which
// runs at most once at a time, so writes never race each other. The lock
// exists for readers: status surfaces (the web API, a CLI printer) may list
// turns from other goroutines mid-session.
type History struct {
	mu    sync.RWMutex
	turns []Turn
}

// Append adds a turn to the end of the history.
func (h *History) Append(t Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, t)
}

// Turns returns a copy of all turns in occurrence order.
func (h *History) Turns() []Turn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len returns the number of recorded turns.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}
