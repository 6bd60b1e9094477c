// Package custody implements the append-only chain-of-custody log.
// Each evidence item owns an ordered sequence of entries; every entry is
// hash-chained to its predecessor so any after-the-fact edit is detectable.
// Entries are never mutated or removed.
package custody

import (
	"fmt"
	"sync"
	"time"

	"github.com/docket-systems/custodia/pkg/canonicalize"
)

// genesisToken seeds every per-evidence chain.
const genesisToken = "genesis"

// Action tags the kind of handling recorded by an entry.
type Action string

const (
	ActionSubmitted      Action = "submitted"
	ActionStatusUpdated  Action = "status-updated"
	ActionSealed         Action = "sealed"
	ActionIntegrityCheck Action = "integrity-checked"
	ActionChallenged     Action = "challenged"
	ActionAccepted       Action = "accepted"
)

// Entry is one immutable record in an evidence item's handling history.
// Token is the tamper-evidence digest chaining the entry to its predecessor.
type Entry struct {
	Sequence  uint64            `json:"sequence"`
	Handler   string            `json:"handler"`
	Action    Action            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Location  string            `json:"location,omitempty"`
	Note      string            `json:"note,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	PrevToken string            `json:"prev_token"`
	Token     string            `json:"token"`
}

// EntryHandler is called for every appended entry, e.g. to mirror the
// chain into an archival store.
type EntryHandler func(evidenceID uint64, entry Entry)

// Log holds the per-evidence custody chains.
type Log struct {
	mu       sync.RWMutex
	chains   map[uint64][]Entry
	handlers []EntryHandler
	clock    func() time.Time
}

// NewLog creates an empty custody log.
func NewLog() *Log {
	return &Log{
		chains: make(map[uint64][]Entry),
		clock:  time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// OnAppend registers a handler invoked synchronously for every new entry.
func (l *Log) OnAppend(h EntryHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

// Append adds an entry to the evidence item's chain and returns it.
func (l *Log) Append(evidenceID uint64, handler string, action Action, location, note string, context map[string]string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chain := l.chains[evidenceID]
	prev := genesisToken
	if n := len(chain); n > 0 {
		prev = chain[n-1].Token
	}

	entry := Entry{
		Sequence:  uint64(len(chain)) + 1,
		Handler:   handler,
		Action:    action,
		Timestamp: l.clock(),
		Location:  location,
		Note:      note,
		Context:   context,
		PrevToken: prev,
	}

	token, err := entryToken(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to compute custody token: %w", err)
	}
	entry.Token = token

	l.chains[evidenceID] = append(chain, entry)

	for _, h := range l.handlers {
		h(evidenceID, entry)
	}
	return entry, nil
}

// Entries returns the full ordered chain for an evidence id. The returned
// slice is a copy; the log itself cannot be mutated through it.
func (l *Log) Entries(evidenceID uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := l.chains[evidenceID]
	out := make([]Entry, len(chain))
	copy(out, chain)
	return out
}

// Length returns the number of entries for an evidence id.
func (l *Log) Length(evidenceID uint64) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chains[evidenceID])
}

// Verify walks the chain for an evidence id, recomputing every token.
// It returns false with a reason at the first broken link.
func (l *Log) Verify(evidenceID uint64) (bool, string) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prev := genesisToken
	for i, entry := range l.chains[evidenceID] {
		if entry.PrevToken != prev {
			return false, fmt.Sprintf("chain broken at entry %d: expected prev %s, got %s", i+1, prev, entry.PrevToken)
		}

		unsealed := entry
		unsealed.Token = ""
		token, err := entryToken(unsealed)
		if err != nil {
			return false, fmt.Sprintf("failed to recompute token for entry %d", i+1)
		}
		if token != entry.Token {
			return false, fmt.Sprintf("token mismatch at entry %d", i+1)
		}
		prev = entry.Token
	}
	return true, ""
}

// entryToken digests the canonical form of the entry minus its own token.
func entryToken(e Entry) (string, error) {
	hashable := struct {
		Sequence  uint64            `json:"sequence"`
		Handler   string            `json:"handler"`
		Action    Action            `json:"action"`
		Timestamp string            `json:"timestamp"`
		Location  string            `json:"location,omitempty"`
		Note      string            `json:"note,omitempty"`
		Context   map[string]string `json:"context,omitempty"`
		PrevToken string            `json:"prev_token"`
	}{
		Sequence:  e.Sequence,
		Handler:   e.Handler,
		Action:    e.Action,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Location:  e.Location,
		Note:      e.Note,
		Context:   e.Context,
		PrevToken: e.PrevToken,
	}
	return canonicalize.Digest(hashable)
}
