// Package events implements the system-wide event stream. Every mutating
// registry operation publishes exactly one event here; the stream is the
// durable, queryable record of what happened, complementing the
// evidence-scoped custody log.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type categorizes an event.
type Type string

const (
	EvidenceSubmitted     Type = "evidence.submitted"
	EvidenceStatusChanged Type = "evidence.status-changed"
	EvidenceSealed        Type = "evidence.sealed"
	EvidenceVerified      Type = "evidence.integrity-verified"
	AccessGranted         Type = "evidence.access-granted"
	AccessRevoked         Type = "evidence.access-revoked"

	CaseFiled         Type = "case.filed"
	CasePartyAdded    Type = "case.party-added"
	CaseEvidenceLink  Type = "case.evidence-linked"
	CaseStatusChanged Type = "case.status-changed"
	CaseJudgeAssigned Type = "case.judge-assigned"
	CaseOrderIssued   Type = "case.order-issued"
	CaseChallenged    Type = "case.evidence-challenged"
	CaseAccepted      Type = "case.evidence-accepted"
	CaseSettled       Type = "case.settled"
	CasePaused        Type = "case.paused"
	CaseResumed       Type = "case.resumed"
)

// Event is one immutable record in the stream. Fields carries the small
// set of before/after values relevant to the operation.
type Event struct {
	ID        string                 `json:"id"`
	Sequence  uint64                 `json:"sequence"`
	Type      Type                   `json:"type"`
	Subject   string                 `json:"subject"`
	Actor     string                 `json:"actor"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Handler is called synchronously for every published event.
type Handler func(Event)

// Bus is an append-only, totally ordered event stream with subscriber
// fan-out. Publication assigns a monotonically increasing sequence.
type Bus struct {
	mu       sync.RWMutex
	events   []Event
	sequence uint64
	handlers []Handler
	clock    func() time.Time
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (b *Bus) WithClock(clock func() time.Time) *Bus {
	b.clock = clock
	return b
}

// Subscribe registers a handler invoked for every subsequent event.
// Handlers run synchronously in subscription order while the publish
// lock is held; they must not call back into the bus.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish appends an event to the stream and fans it out to subscribers.
func (b *Bus) Publish(t Type, subject, actor string, fields map[string]interface{}) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sequence++
	ev := Event{
		ID:        uuid.New().String(),
		Sequence:  b.sequence,
		Type:      t,
		Subject:   subject,
		Actor:     actor,
		Timestamp: b.clock(),
		Fields:    fields,
	}
	b.events = append(b.events, ev)

	for _, h := range b.handlers {
		h(ev)
	}
	return ev
}

// ListSince returns all events with sequence strictly greater than seq,
// in publication order. Intended for external indexers to replay.
func (b *Bus) ListSince(seq uint64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if seq >= b.sequence {
		return nil
	}
	out := make([]Event, b.sequence-seq)
	copy(out, b.events[seq:])
	return out
}

// Len returns the number of published events.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
