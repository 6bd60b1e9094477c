package evidence

import (
	"github.com/docket-systems/custodia/pkg/auth"
)

// The access resolver is a single ordered decision over registry state,
// the actor's capability set, and explicit grants. First match wins:
//
//  1. administrator or legal-authority capability
//  2. the evidence's submitter
//  3. a live explicit grant (active, and unexpired or never expiring)
//  4. deny
//
// Every evidence field returned to a caller passes through this check.
// Sealing does not affect reads.

// CanAccess reports whether the principal may view the evidence item.
// Unknown ids resolve to false.
func (r *Registry) CanAccess(p auth.Principal, id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(id)
	if err != nil {
		return false
	}
	return r.canAccessLocked(p, rec)
}

// HasAccess is the externally exposed name for CanAccess.
func (r *Registry) HasAccess(p auth.Principal, id ID) bool {
	return r.CanAccess(p, id)
}

func (r *Registry) canAccessLocked(p auth.Principal, rec *Record) bool {
	if p.HasCapability(auth.CapAdministrator) || p.HasCapability(auth.CapLegalAuthority) {
		return true
	}
	if rec.Submitter == p.GetID() {
		return true
	}
	return r.grants[rec.ID][p.GetID()].Live(r.clock())
}

// canMutate gates status mutation: administrator, legal authority, or the
// original submitter.
func canMutate(rec *Record, actor auth.Principal) bool {
	return actor.HasCapability(auth.CapAdministrator) ||
		actor.HasCapability(auth.CapLegalAuthority) ||
		rec.Submitter == actor.GetID()
}

// canAdminister gates grant issuance and revocation: the submitter or an
// admin/legal-authority capability holder.
func canAdminister(rec *Record, actor auth.Principal) bool {
	return canMutate(rec, actor)
}
