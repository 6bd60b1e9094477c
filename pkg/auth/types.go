package auth

// Capability is a named authorization tag a principal may hold,
// independent of any specific evidence item or case.
type Capability string

const (
	// CapAdministrator grants unconditional access to every registry operation.
	CapAdministrator Capability = "administrator"
	// CapLegalAuthority marks court officials who may seal evidence and
	// mutate records inside an active seal window.
	CapLegalAuthority Capability = "legal-authority"
	// CapJudge marks principals eligible for case assignment.
	CapJudge Capability = "judge"
	// CapCourtClerk marks clerks who may file and maintain cases.
	CapCourtClerk Capability = "court-clerk"
)

// Principal is the interface for any entity invoking an engine operation
// (user, service account, system).
type Principal interface {
	GetID() string
	GetCapabilities() []Capability
	// HasCapability reports whether the principal holds the named capability.
	HasCapability(cap Capability) bool
}

// BasePrincipal is a simple implementation of Principal.
type BasePrincipal struct {
	ID           string
	Capabilities []Capability
}

func (b *BasePrincipal) GetID() string {
	return b.ID
}

func (b *BasePrincipal) GetCapabilities() []Capability {
	return b.Capabilities
}

func (b *BasePrincipal) HasCapability(cap Capability) bool {
	for _, c := range b.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
