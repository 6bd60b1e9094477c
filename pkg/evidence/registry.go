// Package evidence implements the Evidence Registry — the engine that
// records digital evidence items, enforces who may view or mutate each
// item, and tracks every handling action in the custody log.
//
// The registry is a single lock domain: every mutating operation is
// atomic end-to-end, and no caller ever observes a partially applied
// mutation (an id in two status indexes, a record without its custody
// entry, and so on).
package evidence

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
)

// index is an index-of-index structure: the position map makes removal a
// swap-remove, so membership changes are O(1). Index order is not
// meaningful and is not preserved.
type index struct {
	ids []ID
	pos map[ID]int
}

func newIndex() *index {
	return &index{pos: make(map[ID]int)}
}

func (ix *index) add(id ID) {
	if _, ok := ix.pos[id]; ok {
		return
	}
	ix.pos[id] = len(ix.ids)
	ix.ids = append(ix.ids, id)
}

func (ix *index) remove(id ID) {
	p, ok := ix.pos[id]
	if !ok {
		return
	}
	last := len(ix.ids) - 1
	moved := ix.ids[last]
	ix.ids[p] = moved
	ix.pos[moved] = p
	ix.ids = ix.ids[:last]
	delete(ix.pos, id)
}

func (ix *index) list() []ID {
	out := make([]ID, len(ix.ids))
	copy(out, ix.ids)
	return out
}

// Registry owns evidence records, the content-hash index, the secondary
// status/type indexes, access grants, and the custody log.
type Registry struct {
	mu       sync.RWMutex
	records  []*Record // arena; id N lives at records[N-1]
	byHash   map[ContentHash]ID
	byType   map[Type]*index
	byStatus map[Status]*index
	grants   map[ID]map[string]*Grant
	log      *custody.Log
	bus      *events.Bus
	clock    func() time.Time
}

// NewRegistry creates an empty registry writing custody entries to log
// and publishing events to bus.
func NewRegistry(log *custody.Log, bus *events.Bus) *Registry {
	return &Registry{
		byHash:   make(map[ContentHash]ID),
		byType:   make(map[Type]*index),
		byStatus: make(map[Status]*index),
		grants:   make(map[ID]map[string]*Grant),
		log:      log,
		bus:      bus,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// Submit registers a new evidence item. On success the submitter receives
// an admin-level grant, a "submitted" custody entry is appended, and a
// submission event is published.
func (r *Registry) Submit(sub Submission, submitter auth.Principal) (ID, error) {
	if sub.Title == "" {
		return 0, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if sub.StorageRef == "" {
		return 0, fmt.Errorf("%w: storage reference is required", ErrValidation)
	}
	if sub.ContentHash.IsZero() {
		return 0, fmt.Errorf("%w: content hash is required", ErrValidation)
	}
	if !sub.Type.Valid() {
		return 0, fmt.Errorf("%w: unknown evidence type %q", ErrValidation, sub.Type)
	}
	if !sub.Classification.Valid() {
		return 0, fmt.Errorf("%w: unknown classification %d", ErrValidation, sub.Classification)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byHash[sub.ContentHash]; ok {
		return 0, fmt.Errorf("%w: content already registered as evidence %d", ErrDuplicate, existing)
	}

	now := r.clock()
	id := ID(len(r.records)) + 1
	rec := &Record{
		ID:             id,
		Title:          sub.Title,
		Description:    sub.Description,
		Submitter:      submitter.GetID(),
		SubmittedAt:    now,
		Type:           sub.Type,
		Status:         StatusSubmitted,
		Classification: sub.Classification,
		StorageRef:     sub.StorageRef,
		MetadataRef:    sub.MetadataRef,
		ContentHash:    sub.ContentHash,
		Encrypted:      sub.Encrypted,
		LastModified:   now,
	}

	r.records = append(r.records, rec)
	r.byHash[sub.ContentHash] = id
	r.typeIndex(sub.Type).add(id)
	r.statusIndex(StatusSubmitted).add(id)

	r.grants[id] = map[string]*Grant{
		submitter.GetID(): {
			EvidenceID: id,
			Principal:  submitter.GetID(),
			Level:      AccessAdmin,
			GrantedBy:  submitter.GetID(),
			GrantedAt:  now,
			Active:     true,
		},
	}

	if _, err := r.log.Append(uint64(id), submitter.GetID(), custody.ActionSubmitted, "", "evidence submitted", map[string]string{
		"type":  string(sub.Type),
		"title": sub.Title,
	}); err != nil {
		return 0, err
	}

	r.bus.Publish(events.EvidenceSubmitted, subjectOf(id), submitter.GetID(), map[string]interface{}{
		"evidence_id": uint64(id),
		"type":        string(sub.Type),
		"title":       sub.Title,
		"submitted":   now,
	})
	return id, nil
}

// UpdateStatus moves the evidence item to a new status. The actor must be
// an administrator, a legal authority, or the original submitter, and the
// item must not be inside an active seal window unless the actor holds
// legal-authority capability.
func (r *Registry) UpdateStatus(id ID, newStatus Status, actor auth.Principal) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, newStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !canMutate(rec, actor) {
		return fmt.Errorf("%w: %s may not update evidence %d", ErrUnauthorized, actor.GetID(), id)
	}
	if err := r.sealGate(rec, actor); err != nil {
		return err
	}

	old := rec.Status
	if old != newStatus {
		r.statusIndex(old).remove(id)
		r.statusIndex(newStatus).add(id)
		rec.Status = newStatus
	}
	rec.LastModified = r.clock()

	if _, err := r.log.Append(uint64(id), actor.GetID(), custody.ActionStatusUpdated, "", "", map[string]string{
		"from": string(old),
		"to":   string(newStatus),
	}); err != nil {
		return err
	}

	r.bus.Publish(events.EvidenceStatusChanged, subjectOf(id), actor.GetID(), map[string]interface{}{
		"evidence_id": uint64(id),
		"from":        string(old),
		"to":          string(newStatus),
	})
	return nil
}

// VerifyIntegrity compares the provided hash against the stored content
// hash. A mismatch is a normal false result, not an error; either outcome
// is recorded in the custody log.
func (r *Registry) VerifyIntegrity(id ID, provided ContentHash, actor auth.Principal) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	if !r.canAccessLocked(actor, rec) {
		return false, fmt.Errorf("%w: %s may not verify evidence %d", ErrAccessDenied, actor.GetID(), id)
	}

	match := subtle.ConstantTimeCompare(rec.ContentHash[:], provided[:]) == 1

	if _, err := r.log.Append(uint64(id), actor.GetID(), custody.ActionIntegrityCheck, "", "", map[string]string{
		"match": fmt.Sprintf("%t", match),
	}); err != nil {
		return false, err
	}

	r.bus.Publish(events.EvidenceVerified, subjectOf(id), actor.GetID(), map[string]interface{}{
		"evidence_id": uint64(id),
		"match":       match,
	})
	return match, nil
}

// GrantAccess creates or overwrites the explicit grant for (id, principal).
// The actor must be the submitter or hold admin/legal-authority capability.
func (r *Registry) GrantAccess(id ID, principal string, level AccessLevel, expiry time.Time, actor auth.Principal) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrValidation)
	}
	switch level {
	case AccessRead, AccessWrite, AccessAdmin:
	default:
		return fmt.Errorf("%w: unknown access level %q", ErrValidation, level)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !canAdminister(rec, actor) {
		return fmt.Errorf("%w: %s may not grant access to evidence %d", ErrUnauthorized, actor.GetID(), id)
	}

	r.grants[id][principal] = &Grant{
		EvidenceID: id,
		Principal:  principal,
		Level:      level,
		GrantedBy:  actor.GetID(),
		GrantedAt:  r.clock(),
		Expiry:     expiry,
		Active:     true,
	}

	r.bus.Publish(events.AccessGranted, subjectOf(id), actor.GetID(), map[string]interface{}{
		"evidence_id": uint64(id),
		"principal":   principal,
		"level":       string(level),
	})
	return nil
}

// RevokeAccess deactivates the grant for (id, principal). The grant record
// is kept: revocation never deletes history.
func (r *Registry) RevokeAccess(id ID, principal string, actor auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(id)
	if err != nil {
		return err
	}
	if !canAdminister(rec, actor) {
		return fmt.Errorf("%w: %s may not revoke access to evidence %d", ErrUnauthorized, actor.GetID(), id)
	}

	grant, ok := r.grants[id][principal]
	if !ok {
		return fmt.Errorf("%w: no grant for %s on evidence %d", ErrNotFound, principal, id)
	}
	grant.Active = false

	r.bus.Publish(events.AccessRevoked, subjectOf(id), actor.GetID(), map[string]interface{}{
		"evidence_id": uint64(id),
		"principal":   principal,
	})
	return nil
}

// CascadeGrant issues an idempotent read-level grant on behalf of the
// authorization cascade. It is the only grant path that bypasses the
// actor capability check: the case registry has already authorized the
// link that triggered it. Returns true when a new grant was written,
// false when a live grant already covered the pair.
func (r *Registry) CascadeGrant(id ID, principal, grantedBy string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(id); err != nil {
		return false, err
	}

	if existing := r.grants[id][principal]; existing.Live(r.clock()) {
		return false, nil
	}

	r.grants[id][principal] = &Grant{
		EvidenceID: id,
		Principal:  principal,
		Level:      AccessRead,
		GrantedBy:  grantedBy,
		GrantedAt:  r.clock(),
		Active:     true,
	}

	r.bus.Publish(events.AccessGranted, subjectOf(id), grantedBy, map[string]interface{}{
		"evidence_id": uint64(id),
		"principal":   principal,
		"level":       string(AccessRead),
		"cascade":     true,
	})
	return true, nil
}

// RecordHandling appends a custody entry for a handling action decided
// outside this registry, such as a challenge or acceptance recorded by
// the case registry. The caller is responsible for having authorized the
// action; the entry itself is attributed to handler.
func (r *Registry) RecordHandling(id ID, handler string, action custody.Action, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.lookup(id); err != nil {
		return err
	}
	_, err := r.log.Append(uint64(id), handler, action, "", note, nil)
	return err
}

// Get returns a copy of the record, gated by the access resolver.
// Visibility is all-or-nothing: a failed check returns ErrAccessDenied,
// never a redacted record.
func (r *Registry) Get(id ID, actor auth.Principal) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(id)
	if err != nil {
		return Record{}, err
	}
	if !r.canAccessLocked(actor, rec) {
		return Record{}, fmt.Errorf("%w: %s may not view evidence %d", ErrAccessDenied, actor.GetID(), id)
	}
	return *rec, nil
}

// ListByType returns copies of the records of the given type that the
// actor may access. Items the actor cannot access are omitted entirely.
func (r *Registry) ListByType(t Type, actor auth.Principal) ([]Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown evidence type %q", ErrValidation, t)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.typeIndex(t).list(), actor), nil
}

// ListByStatus returns copies of the records in the given status that the
// actor may access.
func (r *Registry) ListByStatus(s Status, actor auth.Principal) ([]Record, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.statusIndex(s).list(), actor), nil
}

// TotalCount returns the number of registered evidence items. Aggregate
// counts are not access-gated.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Exists reports whether the evidence id is registered.
func (r *Registry) Exists(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := r.lookup(id)
	return err == nil
}

// CustodyChain returns the full ordered custody sequence for the item,
// gated by the access resolver.
func (r *Registry) CustodyChain(id ID, actor auth.Principal) ([]custody.Entry, error) {
	r.mu.RLock()
	rec, err := r.lookup(id)
	if err != nil {
		r.mu.RUnlock()
		return nil, err
	}
	if !r.canAccessLocked(actor, rec) {
		r.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s may not view custody of evidence %d", ErrAccessDenied, actor.GetID(), id)
	}
	r.mu.RUnlock()
	return r.log.Entries(uint64(id)), nil
}

// VerifyCustody recomputes the item's custody chain tokens, gated by the
// access resolver. Returns false with a reason at the first broken link.
func (r *Registry) VerifyCustody(id ID, actor auth.Principal) (bool, string, error) {
	r.mu.RLock()
	rec, err := r.lookup(id)
	if err != nil {
		r.mu.RUnlock()
		return false, "", err
	}
	if !r.canAccessLocked(actor, rec) {
		r.mu.RUnlock()
		return false, "", fmt.Errorf("%w: %s may not verify custody of evidence %d", ErrAccessDenied, actor.GetID(), id)
	}
	r.mu.RUnlock()
	ok, reason := r.log.Verify(uint64(id))
	return ok, reason, nil
}

// Grants returns copies of all grant records for the item, active or not,
// gated to administering actors. Preserved for audit.
func (r *Registry) Grants(id ID, actor auth.Principal) ([]Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	if !canAdminister(rec, actor) {
		return nil, fmt.Errorf("%w: %s may not list grants on evidence %d", ErrUnauthorized, actor.GetID(), id)
	}
	out := make([]Grant, 0, len(r.grants[id]))
	for _, g := range r.grants[id] {
		out = append(out, *g)
	}
	return out, nil
}

func (r *Registry) lookup(id ID) (*Record, error) {
	if id == 0 || int(id) > len(r.records) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r.records[id-1], nil
}

func (r *Registry) collect(ids []ID, actor auth.Principal) []Record {
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec := r.records[id-1]
		if r.canAccessLocked(actor, rec) {
			out = append(out, *rec)
		}
	}
	return out
}

func (r *Registry) typeIndex(t Type) *index {
	ix, ok := r.byType[t]
	if !ok {
		ix = newIndex()
		r.byType[t] = ix
	}
	return ix
}

func (r *Registry) statusIndex(s Status) *index {
	ix, ok := r.byStatus[s]
	if !ok {
		ix = newIndex()
		r.byStatus[s] = ix
	}
	return ix
}

func subjectOf(id ID) string {
	return fmt.Sprintf("evidence/%d", id)
}
