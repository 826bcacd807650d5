package monitor

import (
	"sync"

	"github.com/rewired-gh/sessionwatch/internal/models"
)

// Ledger records which alerts have already been delivered during the
// current session cycle. It is cleared in full on every session-boundary
// transition; there is no per-symbol or per-session partial clearing.
type Ledger struct {
	mu    sync.Mutex
	fired map[models.AlertKey]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{fired: make(map[models.AlertKey]struct{})}
}

// MarkIfNew inserts key and reports whether it was absent. Check and insert
// are one step, so concurrent evaluations of the same symbol cannot both
// claim a key.
func (l *Ledger) MarkIfNew(key models.AlertKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.fired[key]; seen {
		return false
	}
	l.fired[key] = struct{}{}
	return true
}

// Contains reports whether key has already fired this cycle.
func (l *Ledger) Contains(key models.AlertKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.fired[key]
	return seen
}

// Clear drops every entry, starting a fresh cycle.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fired = make(map[models.AlertKey]struct{})
}

// Len returns the number of keys fired this cycle.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fired)
}
