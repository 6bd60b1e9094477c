package evidence

import (
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrValidation marks malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate marks a uniqueness violation on the content hash.
	ErrDuplicate = errors.New("duplicate content hash")
	// ErrUnauthorized marks a failed capability check on a mutation.
	ErrUnauthorized = errors.New("not authorized")
	// ErrAccessDenied marks a failed access-resolver check on a read.
	ErrAccessDenied = errors.New("access denied")
	// ErrSealed marks a mutation blocked by an active seal window.
	ErrSealed = errors.New("evidence is sealed")
	// ErrNotFound marks a reference to an evidence id that does not exist.
	ErrNotFound = errors.New("evidence not found")
)

// ID is the dense, monotonically increasing evidence identifier.
// Ids start at 1 and are never reused.
type ID uint64

// ContentHash is the fixed-size digest uniquely identifying evidence
// content. It is the dedup key: one hash maps to exactly one evidence id
// for the lifetime of the system.
type ContentHash [32]byte

// IsZero reports whether the hash is the all-zero value.
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

func (h ContentHash) String() string {
	return hex.EncodeToString(h[:])
}

// Type is the closed enumeration of evidence kinds.
type Type string

const (
	TypeDocument            Type = "document"
	TypePhoto               Type = "photo"
	TypeVideo               Type = "video"
	TypeAudio               Type = "audio"
	TypeDigitalFile         Type = "digital-file"
	TypePhysicalDescription Type = "physical-description"
	TypeTestimony           Type = "testimony"
	TypeExpertAnalysis      Type = "expert-analysis"
	TypeChainOfCustody      Type = "chain-of-custody"
	TypeForensicReport      Type = "forensic-report"
)

// Valid reports whether t is a known evidence type.
func (t Type) Valid() bool {
	switch t {
	case TypeDocument, TypePhoto, TypeVideo, TypeAudio, TypeDigitalFile,
		TypePhysicalDescription, TypeTestimony, TypeExpertAnalysis,
		TypeChainOfCustody, TypeForensicReport:
		return true
	}
	return false
}

// Status is the evidence lifecycle state. The machine is deliberately
// permissive: any state may jump directly to Sealed or Archived by an
// authorized actor, since court processes are not always linear.
type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under-review"
	StatusVerified    Status = "verified"
	StatusChallenged  Status = "challenged"
	StatusRejected    Status = "rejected"
	StatusAccepted    Status = "accepted"
	StatusSealed      Status = "sealed"
	StatusArchived    Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusVerified, StatusChallenged,
		StatusRejected, StatusAccepted, StatusSealed, StatusArchived:
		return true
	}
	return false
}

// Classification is the ordered sensitivity level of an evidence item.
type Classification int

const (
	ClassPublic Classification = iota
	ClassRestricted
	ClassConfidential
	ClassSecret
	ClassTopSecret
)

func (c Classification) String() string {
	switch c {
	case ClassPublic:
		return "public"
	case ClassRestricted:
		return "restricted"
	case ClassConfidential:
		return "confidential"
	case ClassSecret:
		return "secret"
	case ClassTopSecret:
		return "top-secret"
	default:
		return "unknown"
	}
}

// Valid reports whether c is a defined classification level.
func (c Classification) Valid() bool {
	return c >= ClassPublic && c <= ClassTopSecret
}

// AccessLevel tags what an explicit grant permits.
type AccessLevel string

const (
	AccessRead  AccessLevel = "read"
	AccessWrite AccessLevel = "write"
	AccessAdmin AccessLevel = "admin"
)

// Record is one registered evidence item. The raw content lives in an
// external content-addressed store; StorageRef and MetadataRef are opaque
// references the engine stores and returns unchanged.
type Record struct {
	ID             ID             `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Submitter      string         `json:"submitter"`
	SubmittedAt    time.Time      `json:"submitted_at"`
	Type           Type           `json:"type"`
	Status         Status         `json:"status"`
	Classification Classification `json:"classification"`
	StorageRef     string         `json:"storage_ref"`
	MetadataRef    string         `json:"metadata_ref,omitempty"`
	ContentHash    ContentHash    `json:"-"`
	Encrypted      bool           `json:"encrypted"`
	Sealed         bool           `json:"sealed"`
	SealExpiry     time.Time      `json:"seal_expiry,omitzero"`
	LastModified   time.Time      `json:"last_modified"`
}

// Grant is an explicit access grant keyed by (evidence id, principal).
// A grant with Active=false, or with a non-zero expiry in the past, is
// equivalent to no grant. Re-granting the same pair overwrites; revoking
// flips Active and never deletes history.
type Grant struct {
	EvidenceID ID          `json:"evidence_id"`
	Principal  string      `json:"principal"`
	Level      AccessLevel `json:"level"`
	GrantedBy  string      `json:"granted_by"`
	GrantedAt  time.Time   `json:"granted_at"`
	Expiry     time.Time   `json:"expiry,omitzero"` // zero = never expires
	Active     bool        `json:"active"`
}

// Live reports whether the grant confers access at the given instant.
func (g *Grant) Live(now time.Time) bool {
	if g == nil || !g.Active {
		return false
	}
	return g.Expiry.IsZero() || g.Expiry.After(now)
}

// Submission carries the caller-supplied fields for a new evidence item.
type Submission struct {
	Title          string
	Description    string
	Type           Type
	Classification Classification
	StorageRef     string
	MetadataRef    string
	ContentHash    ContentHash
	Encrypted      bool
}
