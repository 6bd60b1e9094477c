package casefile

import (
	"errors"
	"time"

	"github.com/docket-systems/custodia/pkg/evidence"
)

var (
	// ErrValidation marks malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks a uniqueness violation on the case number or an
	// existing (case, evidence) link.
	ErrDuplicate = errors.New("duplicate")
	// ErrUnauthorized marks a failed capability check on a mutation.
	ErrUnauthorized = errors.New("not authorized")
	// ErrAccessDenied marks a failed case-access check on a read.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound marks a reference to a case id that does not exist.
	ErrNotFound = errors.New("case not found")
	// ErrUnverified marks an identity precondition that was not met.
	ErrUnverified = errors.New("principal not verified")
)

// ID is the dense, monotonically increasing case identifier.
type ID uint64

// Status is the case lifecycle state.
type Status string

const (
	StatusFiled        Status = "filed"
	StatusUnderReview  Status = "under-review"
	StatusHearing      Status = "hearing"
	StatusDeliberation Status = "deliberation"
	StatusSettled      Status = "settled"
	StatusDismissed    Status = "dismissed"
	StatusClosed       Status = "closed"
)

// Valid reports whether s is a known case status.
func (s Status) Valid() bool {
	switch s {
	case StatusFiled, StatusUnderReview, StatusHearing, StatusDeliberation,
		StatusSettled, StatusDismissed, StatusClosed:
		return true
	}
	return false
}

// Priority orders cases for court scheduling.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// PartyRole tags a participant's role in a case.
type PartyRole string

const (
	RoleFiler         PartyRole = "filer"
	RolePlaintiff     PartyRole = "plaintiff"
	RoleDefendant     PartyRole = "defendant"
	RoleWitness       PartyRole = "witness"
	RoleExpertWitness PartyRole = "expert-witness"
	RoleCounsel       PartyRole = "counsel"
	RoleProsecutor    PartyRole = "prosecutor"
	RoleVictim        PartyRole = "victim"
	RoleWhistleblower PartyRole = "whistleblower"
)

// Valid reports whether r is a known party role.
func (r PartyRole) Valid() bool {
	switch r {
	case RoleFiler, RolePlaintiff, RoleDefendant, RoleWitness, RoleExpertWitness,
		RoleCounsel, RoleProsecutor, RoleVictim, RoleWhistleblower:
		return true
	}
	return false
}

// Case is one filed proceeding.
type Case struct {
	ID            ID        `json:"id"`
	Number        string    `json:"number"`
	Title         string    `json:"title"`
	Type          string    `json:"type"`
	Status        Status    `json:"status"`
	Priority      Priority  `json:"priority"`
	Creator       string    `json:"creator"`
	FiledAt       time.Time `json:"filed_at"`
	LastUpdated   time.Time `json:"last_updated"`
	Jurisdiction  string    `json:"jurisdiction,omitempty"`
	Judge         string    `json:"judge,omitempty"` // assigned at most once
	CourtLocation string    `json:"court_location,omitempty"`
	Public        bool      `json:"public"`
	Active        bool      `json:"active"`
	EvidenceCount int       `json:"evidence_count"`
}

// Party is one participant in a case. The party list is append-only;
// role and active flag are mutable in place.
type Party struct {
	Principal      string    `json:"principal"`
	Role           PartyRole `json:"role"`
	Representative string    `json:"representative,omitempty"`
	Anonymous      bool      `json:"anonymous"`
	Active         bool      `json:"active"`
	JoinedAt       time.Time `json:"joined_at"`
}

// EvidenceLink ties a registered evidence item to a case. At most one
// link exists per (case, evidence) pair. The challenge sub-state moves
// unchallenged → challenged → accepted-by-judge.
type EvidenceLink struct {
	CaseID       ID            `json:"case_id"`
	EvidenceID   evidence.ID   `json:"evidence_id"`
	SubmittedBy  string        `json:"submitted_by"`
	Type         evidence.Type `json:"type"` // as perceived by the case
	Relevance    string        `json:"relevance,omitempty"`
	Weight       int           `json:"weight"` // 1..100
	LinkedAt     time.Time     `json:"linked_at"`
	Challenged   bool          `json:"challenged"`
	ChallengedBy string        `json:"challenged_by,omitempty"`
	ChallengedAt time.Time     `json:"challenged_at,omitzero"`
	Accepted     bool          `json:"accepted"`
	AcceptedBy   string        `json:"accepted_by,omitempty"`
	AcceptedAt   time.Time     `json:"accepted_at,omitzero"`
}

// Order is a court order attached to a case. Orders are append-only.
type Order struct {
	ID          uint64    `json:"id"`
	CaseID      ID        `json:"case_id"`
	Issuer      string    `json:"issuer"`
	Type        string    `json:"type"`
	Detail      string    `json:"detail,omitempty"`
	IssuedAt    time.Time `json:"issued_at"`
	EffectiveAt time.Time `json:"effective_at"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Active      bool      `json:"active"`
	Compliance  string    `json:"compliance"`
}

// TimelineEntry is one row in a case's activity timeline.
type TimelineEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// Statistics are system-wide aggregate counts. Aggregates are not
// access-gated.
type Statistics struct {
	TotalCases    int            `json:"total_cases"`
	ByStatus      map[Status]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	EvidenceLinks int            `json:"evidence_links"`
	ActiveOrders  int            `json:"active_orders"`
}

// Filing carries the caller-supplied fields for a new case.
type Filing struct {
	Number        string
	Title         string
	Type          string
	Priority      Priority
	Jurisdiction  string
	CourtLocation string
	Public        bool
}
