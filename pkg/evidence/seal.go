package evidence

import (
	"fmt"
	"time"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
)

// Sealing is a two-state machine per evidence item: Unsealed, or
// Sealed(until). The transition back to Unsealed is implicit once the
// expiry passes; there is no explicit unseal operation. Re-sealing
// overwrites the expiry, it does not stack durations. While the window is
// active, mutation by anyone without legal-authority capability fails
// with ErrSealed; reads are governed solely by the access resolver.

// Seal places the evidence item under a seal window of the given
// duration. Requires legal-authority capability and a positive duration.
func (r *Registry) Seal(id ID, duration time.Duration, actor auth.Principal) error {
	if duration <= 0 {
		return fmt.Errorf("%w: seal duration must be positive", ErrValidation)
	}
	if !actor.HasCapability(auth.CapLegalAuthority) {
		return fmt.Errorf("%w: sealing requires legal-authority capability", ErrUnauthorized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(id)
	if err != nil {
		return err
	}

	now := r.clock()
	rec.Sealed = true
	rec.SealExpiry = now.Add(duration)
	rec.LastModified = now

	if _, err := r.log.Append(uint64(id), actor.GetID(), custody.ActionSealed, "", "", map[string]string{
		"until": rec.SealExpiry.UTC().Format(time.RFC3339),
	}); err != nil {
		return err
	}

	r.bus.Publish(events.EvidenceSealed, subjectOf(id), actor.GetID(), map[string]interface{}{
		"evidence_id": uint64(id),
		"until":       rec.SealExpiry,
	})
	return nil
}

// SealActive reports whether the item is inside an active seal window.
func (r *Registry) SealActive(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(id)
	if err != nil {
		return false
	}
	return sealActive(rec, r.clock())
}

func sealActive(rec *Record, now time.Time) bool {
	return rec.Sealed && now.Before(rec.SealExpiry)
}

// sealGate blocks mutation inside an active seal window unless the actor
// holds legal-authority capability.
func (r *Registry) sealGate(rec *Record, actor auth.Principal) error {
	if !sealActive(rec, r.clock()) {
		return nil
	}
	if actor.HasCapability(auth.CapLegalAuthority) {
		return nil
	}
	return fmt.Errorf("%w: evidence %d is sealed until %s", ErrSealed, rec.ID, rec.SealExpiry.UTC().Format(time.RFC3339))
}
