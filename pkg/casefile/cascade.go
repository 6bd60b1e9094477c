package casefile

// The authorization cascade propagates read grants from case membership
// to linked evidence. It is fan-out, not subscription: it runs once per
// successful link, covering the parties active at that moment, their
// legal representatives, and the assigned judge. Parties added later get
// nothing retroactively, and deactivating a party revokes nothing.

import "github.com/docket-systems/custodia/pkg/evidence"

// cascadeLocked issues read grants for the given evidence item to every
// currently active party, each party's representative, and the assigned
// judge. Grants go through the Evidence Registry's idempotent cascade
// API, so re-running over an already-granted pair is a no-op. Returns the
// number of new grants written. Caller holds r.mu.
func (r *Registry) cascadeLocked(c *Case, evidenceID evidence.ID) int {
	grantedBy := subjectOf(c.ID)
	granted := 0

	grant := func(principal string) {
		if principal == "" {
			return
		}
		created, err := r.evidence.CascadeGrant(evidenceID, principal, grantedBy)
		if err != nil {
			// The link itself already validated evidence existence; a
			// grant failure here means the item vanished mid-call, which
			// the serialization contract rules out.
			return
		}
		if created {
			granted++
		}
	}

	for _, p := range r.parties[c.ID] {
		if !p.Active {
			continue
		}
		grant(p.Principal)
		grant(p.Representative)
	}
	grant(c.Judge)

	return granted
}
