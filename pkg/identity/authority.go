// Package identity defines the external Identity Authority boundary.
// The engine never verifies identities itself; it asks the Authority
// whether a principal has been verified and at what level.
package identity

import "sync"

// Level is the ordered verification level assigned to a principal.
type Level int

const (
	LevelNone Level = iota
	LevelBasic
	LevelProfessional
	LevelJudicial
)

func (l Level) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelProfessional:
		return "professional"
	case LevelJudicial:
		return "judicial"
	default:
		return "none"
	}
}

// ParseLevel maps a level name to its Level. Unknown names map to LevelNone.
func ParseLevel(s string) Level {
	switch s {
	case "basic":
		return LevelBasic
	case "professional":
		return LevelProfessional
	case "judicial":
		return LevelJudicial
	default:
		return LevelNone
	}
}

// Authority is the interface to the external identity/verification service.
type Authority interface {
	// IsVerified reports whether the principal has any verification on file.
	IsVerified(principal string) bool
	// VerificationLevel returns the principal's verification level.
	VerificationLevel(principal string) Level
}

// StaticAuthority is an in-memory Authority for embedding and tests.
type StaticAuthority struct {
	mu     sync.RWMutex
	levels map[string]Level
}

func NewStaticAuthority() *StaticAuthority {
	return &StaticAuthority{levels: make(map[string]Level)}
}

// Register records a verification level for a principal. Registering
// LevelNone removes any prior verification.
func (a *StaticAuthority) Register(principal string, level Level) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if level == LevelNone {
		delete(a.levels, principal)
		return
	}
	a.levels[principal] = level
}

func (a *StaticAuthority) IsVerified(principal string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.levels[principal]
	return ok
}

func (a *StaticAuthority) VerificationLevel(principal string) Level {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.levels[principal]
}
