// Package casefile implements the Case Registry: cases, participants,
// court orders, and case-evidence links. Linking evidence triggers the
// authorization cascade, which propagates read grants into the Evidence
// Registry through its grant API — the two registries stay composable
// and independently testable.
package casefile

import (
	"fmt"
	"sync"
	"time"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
	"github.com/docket-systems/custodia/pkg/evidence"
	"github.com/docket-systems/custodia/pkg/identity"
)

// EvidenceDirectory is the narrow slice of the Evidence Registry the case
// registry depends on. *evidence.Registry satisfies it.
type EvidenceDirectory interface {
	Exists(id evidence.ID) bool
	CascadeGrant(id evidence.ID, principal, grantedBy string) (bool, error)
	RecordHandling(id evidence.ID, handler string, action custody.Action, note string) error
}

// Registry owns cases, parties, evidence links, and orders.
type Registry struct {
	mu       sync.RWMutex
	cases    []*Case // arena; id N lives at cases[N-1]
	byNumber map[string]ID
	parties  map[ID][]*Party
	links    map[ID]map[evidence.ID]*EvidenceLink
	orders   map[ID][]*Order
	timeline map[ID][]TimelineEntry
	grants   map[ID]map[string]bool // explicit case-access grants
	evidence EvidenceDirectory
	identity identity.Authority
	bus      *events.Bus
	clock    func() time.Time
}

// NewRegistry creates an empty case registry.
func NewRegistry(dir EvidenceDirectory, authority identity.Authority, bus *events.Bus) *Registry {
	return &Registry{
		byNumber: make(map[string]ID),
		parties:  make(map[ID][]*Party),
		links:    make(map[ID]map[evidence.ID]*EvidenceLink),
		orders:   make(map[ID][]*Order),
		timeline: make(map[ID][]TimelineEntry),
		grants:   make(map[ID]map[string]bool),
		evidence: dir,
		identity: authority,
		bus:      bus,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// FileCase creates a new case. The filer must be verified by the identity
// authority, and the case number must be unique. The filer becomes the
// creator, the first implicit party, and an explicit case grantee.
func (r *Registry) FileCase(f Filing, filer auth.Principal) (ID, error) {
	if f.Number == "" {
		return 0, fmt.Errorf("%w: case number is required", ErrValidation)
	}
	if f.Title == "" {
		return 0, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if !r.identity.IsVerified(filer.GetID()) {
		return 0, fmt.Errorf("%w: %s", ErrUnverified, filer.GetID())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byNumber[f.Number]; ok {
		return 0, fmt.Errorf("%w: case number %q already filed as case %d", ErrDuplicate, f.Number, existing)
	}

	now := r.clock()
	id := ID(len(r.cases)) + 1
	priority := f.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	c := &Case{
		ID:            id,
		Number:        f.Number,
		Title:         f.Title,
		Type:          f.Type,
		Status:        StatusFiled,
		Priority:      priority,
		Creator:       filer.GetID(),
		FiledAt:       now,
		LastUpdated:   now,
		Jurisdiction:  f.Jurisdiction,
		CourtLocation: f.CourtLocation,
		Public:        f.Public,
		Active:        true,
	}

	r.cases = append(r.cases, c)
	r.byNumber[f.Number] = id
	r.links[id] = make(map[evidence.ID]*EvidenceLink)
	r.grants[id] = map[string]bool{filer.GetID(): true}
	r.parties[id] = []*Party{{
		Principal: filer.GetID(),
		Role:      RoleFiler,
		Active:    true,
		JoinedAt:  now,
	}}
	r.appendTimeline(id, filer.GetID(), "filed", fmt.Sprintf("case %s filed", f.Number))

	r.bus.Publish(events.CaseFiled, subjectOf(id), filer.GetID(), map[string]interface{}{
		"case_id": uint64(id),
		"number":  f.Number,
		"title":   f.Title,
	})
	return id, nil
}

// AddParty appends a participant. The actor must pass the case-access
// predicate; the party must be identity-verified unless flagged anonymous.
func (r *Registry) AddParty(caseID ID, principal string, role PartyRole, representative string, anonymous bool, actor auth.Principal) error {
	if principal == "" {
		return fmt.Errorf("%w: principal is required", ErrValidation)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: unknown party role %q", ErrValidation, role)
	}
	if !anonymous && !r.identity.IsVerified(principal) {
		return fmt.Errorf("%w: %s", ErrUnverified, principal)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.caseAccessLocked(c, actor) {
		return fmt.Errorf("%w: %s may not modify case %d", ErrAccessDenied, actor.GetID(), caseID)
	}

	r.parties[caseID] = append(r.parties[caseID], &Party{
		Principal:      principal,
		Role:           role,
		Representative: representative,
		Anonymous:      anonymous,
		Active:         true,
		JoinedAt:       r.clock(),
	})
	r.grants[caseID][principal] = true
	c.LastUpdated = r.clock()
	r.appendTimeline(caseID, actor.GetID(), "party-added", fmt.Sprintf("%s joined as %s", principal, role))

	r.bus.Publish(events.CasePartyAdded, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id":   uint64(caseID),
		"principal": principal,
		"role":      string(role),
	})
	return nil
}

// DeactivateParty clears the party's active flag. Previously cascaded
// evidence grants are deliberately left in place; see the package notes
// on cascade asymmetry.
func (r *Registry) DeactivateParty(caseID ID, principal string, actor auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.canAdministerLocked(c, actor) {
		return fmt.Errorf("%w: %s may not modify case %d", ErrUnauthorized, actor.GetID(), caseID)
	}

	for _, p := range r.parties[caseID] {
		if p.Principal == principal && p.Active {
			p.Active = false
			c.LastUpdated = r.clock()
			r.appendTimeline(caseID, actor.GetID(), "party-deactivated", principal)
			return nil
		}
	}
	return fmt.Errorf("%w: no active party %s in case %d", ErrNotFound, principal, caseID)
}

// LinkEvidence attaches a registered evidence item to the case and runs
// the authorization cascade. At most one link exists per (case, evidence)
// pair; weight must be in [1,100].
func (r *Registry) LinkEvidence(caseID ID, evidenceID evidence.ID, t evidence.Type, relevance string, weight int, actor auth.Principal) error {
	if weight < 1 || weight > 100 {
		return fmt.Errorf("%w: weight must be in [1,100], got %d", ErrValidation, weight)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.caseAccessLocked(c, actor) {
		return fmt.Errorf("%w: %s may not modify case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	if !r.evidence.Exists(evidenceID) {
		return fmt.Errorf("%w: evidence %d is not registered", ErrNotFound, evidenceID)
	}
	if _, ok := r.links[caseID][evidenceID]; ok {
		return fmt.Errorf("%w: evidence %d already linked to case %d", ErrDuplicate, evidenceID, caseID)
	}

	now := r.clock()
	r.links[caseID][evidenceID] = &EvidenceLink{
		CaseID:      caseID,
		EvidenceID:  evidenceID,
		SubmittedBy: actor.GetID(),
		Type:        t,
		Relevance:   relevance,
		Weight:      weight,
		LinkedAt:    now,
	}
	c.EvidenceCount++
	c.LastUpdated = now

	granted := r.cascadeLocked(c, evidenceID)

	r.appendTimeline(caseID, actor.GetID(), "evidence-linked", fmt.Sprintf("evidence %d linked, weight %d", evidenceID, weight))
	r.bus.Publish(events.CaseEvidenceLink, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id":        uint64(caseID),
		"evidence_id":    uint64(evidenceID),
		"weight":         weight,
		"cascade_grants": granted,
	})
	return nil
}

// UpdateStatus moves the case to a new status.
func (r *Registry) UpdateStatus(caseID ID, newStatus Status, actor auth.Principal) error {
	if !newStatus.Valid() {
		return fmt.Errorf("%w: unknown case status %q", ErrValidation, newStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.canAdministerLocked(c, actor) {
		return fmt.Errorf("%w: %s may not update case %d", ErrUnauthorized, actor.GetID(), caseID)
	}

	old := c.Status
	c.Status = newStatus
	c.LastUpdated = r.clock()
	r.appendTimeline(caseID, actor.GetID(), "status-updated", fmt.Sprintf("%s -> %s", old, newStatus))

	r.bus.Publish(events.CaseStatusChanged, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id": uint64(caseID),
		"from":    string(old),
		"to":      string(newStatus),
	})
	return nil
}

// AssignJudge sets the assigned judge, exactly once for the lifetime of
// the case. The judge receives case access.
func (r *Registry) AssignJudge(caseID ID, judge string, actor auth.Principal) error {
	if judge == "" {
		return fmt.Errorf("%w: judge is required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.canAdministerLocked(c, actor) {
		return fmt.Errorf("%w: %s may not assign a judge to case %d", ErrUnauthorized, actor.GetID(), caseID)
	}
	if c.Judge != "" {
		return fmt.Errorf("%w: case %d already has judge %s", ErrValidation, caseID, c.Judge)
	}

	c.Judge = judge
	c.LastUpdated = r.clock()
	r.grants[caseID][judge] = true
	r.appendTimeline(caseID, actor.GetID(), "judge-assigned", judge)

	r.bus.Publish(events.CaseJudgeAssigned, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id": uint64(caseID),
		"judge":   judge,
	})
	return nil
}

// IssueCourtOrder appends an order. Only the assigned judge may issue.
func (r *Registry) IssueCourtOrder(caseID ID, orderType, detail string, effective, expiry time.Time, actor auth.Principal) (uint64, error) {
	if orderType == "" {
		return 0, fmt.Errorf("%w: order type is required", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return 0, err
	}
	if c.Judge == "" || c.Judge != actor.GetID() {
		return 0, fmt.Errorf("%w: only the assigned judge may issue orders on case %d", ErrUnauthorized, caseID)
	}

	now := r.clock()
	if effective.IsZero() {
		effective = now
	}
	order := &Order{
		ID:          uint64(len(r.orders[caseID])) + 1,
		CaseID:      caseID,
		Issuer:      actor.GetID(),
		Type:        orderType,
		Detail:      detail,
		IssuedAt:    now,
		EffectiveAt: effective,
		ExpiresAt:   expiry,
		Active:      true,
		Compliance:  "pending",
	}
	r.orders[caseID] = append(r.orders[caseID], order)
	c.LastUpdated = now
	r.appendTimeline(caseID, actor.GetID(), "order-issued", orderType)

	r.bus.Publish(events.CaseOrderIssued, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id":  uint64(caseID),
		"order_id": order.ID,
		"type":     orderType,
	})
	return order.ID, nil
}

// ChallengeEvidence moves a link's sub-state to challenged and records the
// challenge on the evidence item's custody chain.
func (r *Registry) ChallengeEvidence(caseID ID, evidenceID evidence.ID, reason string, actor auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.caseAccessLocked(c, actor) {
		return fmt.Errorf("%w: %s may not modify case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	link, ok := r.links[caseID][evidenceID]
	if !ok {
		return fmt.Errorf("%w: evidence %d is not linked to case %d", ErrNotFound, evidenceID, caseID)
	}
	if link.Challenged {
		return fmt.Errorf("%w: evidence %d already challenged in case %d", ErrDuplicate, evidenceID, caseID)
	}

	now := r.clock()
	link.Challenged = true
	link.ChallengedBy = actor.GetID()
	link.ChallengedAt = now
	c.LastUpdated = now

	if err := r.evidence.RecordHandling(evidenceID, actor.GetID(), custody.ActionChallenged, reason); err != nil {
		return err
	}
	r.appendTimeline(caseID, actor.GetID(), "evidence-challenged", reason)

	r.bus.Publish(events.CaseChallenged, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id":     uint64(caseID),
		"evidence_id": uint64(evidenceID),
		"reason":      reason,
	})
	return nil
}

// AcceptEvidence resolves a challenged link; only the assigned judge may
// accept. The acceptance is recorded on the evidence custody chain.
func (r *Registry) AcceptEvidence(caseID ID, evidenceID evidence.ID, actor auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if c.Judge == "" || c.Judge != actor.GetID() {
		return fmt.Errorf("%w: only the assigned judge may accept evidence on case %d", ErrUnauthorized, caseID)
	}
	link, ok := r.links[caseID][evidenceID]
	if !ok {
		return fmt.Errorf("%w: evidence %d is not linked to case %d", ErrNotFound, evidenceID, caseID)
	}
	if !link.Challenged {
		return fmt.Errorf("%w: evidence %d has not been challenged in case %d", ErrValidation, evidenceID, caseID)
	}
	if link.Accepted {
		return fmt.Errorf("%w: evidence %d already accepted in case %d", ErrDuplicate, evidenceID, caseID)
	}

	now := r.clock()
	link.Accepted = true
	link.AcceptedBy = actor.GetID()
	link.AcceptedAt = now
	c.LastUpdated = now

	if err := r.evidence.RecordHandling(evidenceID, actor.GetID(), custody.ActionAccepted, ""); err != nil {
		return err
	}
	r.appendTimeline(caseID, actor.GetID(), "evidence-accepted", fmt.Sprintf("evidence %d", evidenceID))

	r.bus.Publish(events.CaseAccepted, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id":     uint64(caseID),
		"evidence_id": uint64(evidenceID),
	})
	return nil
}

// SettleCase moves the case to the terminal Settled status, recording the
// settlement terms. Any case may be settled except one already Closed.
func (r *Registry) SettleCase(caseID ID, terms string, actor auth.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.canAdministerLocked(c, actor) {
		return fmt.Errorf("%w: %s may not settle case %d", ErrUnauthorized, actor.GetID(), caseID)
	}
	if c.Status == StatusClosed {
		return fmt.Errorf("%w: case %d is closed", ErrValidation, caseID)
	}

	old := c.Status
	c.Status = StatusSettled
	c.LastUpdated = r.clock()
	r.appendTimeline(caseID, actor.GetID(), "settled", terms)

	r.bus.Publish(events.CaseSettled, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id": uint64(caseID),
		"from":    string(old),
		"terms":   terms,
	})
	return nil
}

// Pause clears the active flag without changing status.
func (r *Registry) Pause(caseID ID, actor auth.Principal) error {
	return r.setActive(caseID, actor, false, events.CasePaused, "paused")
}

// Resume restores the active flag.
func (r *Registry) Resume(caseID ID, actor auth.Principal) error {
	return r.setActive(caseID, actor, true, events.CaseResumed, "resumed")
}

func (r *Registry) setActive(caseID ID, actor auth.Principal, active bool, evType events.Type, action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return err
	}
	if !r.canAdministerLocked(c, actor) {
		return fmt.Errorf("%w: %s may not modify case %d", ErrUnauthorized, actor.GetID(), caseID)
	}

	c.Active = active
	c.LastUpdated = r.clock()
	r.appendTimeline(caseID, actor.GetID(), action, "")
	r.bus.Publish(evType, subjectOf(caseID), actor.GetID(), map[string]interface{}{
		"case_id": uint64(caseID),
	})
	return nil
}

// GetDetails returns a copy of the case, gated by the access predicate.
func (r *Registry) GetDetails(caseID ID, actor auth.Principal) (Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return Case{}, err
	}
	if !r.caseAccessLocked(c, actor) {
		return Case{}, fmt.Errorf("%w: %s may not view case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	return *c, nil
}

// GetParties returns the ordered party list.
func (r *Registry) GetParties(caseID ID, actor auth.Principal) ([]Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return nil, err
	}
	if !r.caseAccessLocked(c, actor) {
		return nil, fmt.Errorf("%w: %s may not view case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	out := make([]Party, 0, len(r.parties[caseID]))
	for _, p := range r.parties[caseID] {
		out = append(out, *p)
	}
	return out, nil
}

// GetEvidence returns the case's evidence links.
func (r *Registry) GetEvidence(caseID ID, actor auth.Principal) ([]EvidenceLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return nil, err
	}
	if !r.caseAccessLocked(c, actor) {
		return nil, fmt.Errorf("%w: %s may not view case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	out := make([]EvidenceLink, 0, len(r.links[caseID]))
	for _, l := range r.links[caseID] {
		out = append(out, *l)
	}
	return out, nil
}

// GetTimeline returns the case's activity timeline in append order.
func (r *Registry) GetTimeline(caseID ID, actor auth.Principal) ([]TimelineEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return nil, err
	}
	if !r.caseAccessLocked(c, actor) {
		return nil, fmt.Errorf("%w: %s may not view case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	out := make([]TimelineEntry, len(r.timeline[caseID]))
	copy(out, r.timeline[caseID])
	return out, nil
}

// GetOrders returns the case's court orders in issue order.
func (r *Registry) GetOrders(caseID ID, actor auth.Principal) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, err := r.lookup(caseID)
	if err != nil {
		return nil, err
	}
	if !r.caseAccessLocked(c, actor) {
		return nil, fmt.Errorf("%w: %s may not view case %d", ErrAccessDenied, actor.GetID(), caseID)
	}
	out := make([]Order, 0, len(r.orders[caseID]))
	for _, o := range r.orders[caseID] {
		out = append(out, *o)
	}
	return out, nil
}

// GetStatistics returns system-wide aggregates.
func (r *Registry) GetStatistics() Statistics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Statistics{
		TotalCases: len(r.cases),
		ByStatus:   make(map[Status]int),
		ByType:     make(map[string]int),
	}
	for _, c := range r.cases {
		stats.ByStatus[c.Status]++
		if c.Type != "" {
			stats.ByType[c.Type]++
		}
		stats.EvidenceLinks += c.EvidenceCount
	}
	for _, orders := range r.orders {
		for _, o := range orders {
			if o.Active {
				stats.ActiveOrders++
			}
		}
	}
	return stats
}

// TotalCount returns the number of filed cases.
func (r *Registry) TotalCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cases)
}

// caseAccessLocked mirrors the evidence resolver's structure with
// case-specific principals: public flag, explicit grant, creator,
// assigned judge, or administrator capability.
func (r *Registry) caseAccessLocked(c *Case, p auth.Principal) bool {
	if p.HasCapability(auth.CapAdministrator) {
		return true
	}
	if c.Public {
		return true
	}
	if c.Creator == p.GetID() {
		return true
	}
	if c.Judge != "" && c.Judge == p.GetID() {
		return true
	}
	return r.grants[c.ID][p.GetID()]
}

// canAdministerLocked gates status-level mutation: creator, assigned
// judge, or administrator capability.
func (r *Registry) canAdministerLocked(c *Case, p auth.Principal) bool {
	if p.HasCapability(auth.CapAdministrator) {
		return true
	}
	if c.Creator == p.GetID() {
		return true
	}
	return c.Judge != "" && c.Judge == p.GetID()
}

func (r *Registry) lookup(id ID) (*Case, error) {
	if id == 0 || int(id) > len(r.cases) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r.cases[id-1], nil
}

func (r *Registry) appendTimeline(id ID, actor, action, detail string) {
	r.timeline[id] = append(r.timeline[id], TimelineEntry{
		Timestamp: r.clock(),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
	})
}

func subjectOf(id ID) string {
	return fmt.Sprintf("case/%d", id)
}
