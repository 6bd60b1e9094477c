package casefile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
	"github.com/docket-systems/custodia/pkg/evidence"
	"github.com/docket-systems/custodia/pkg/identity"
)

var (
	filer    = &auth.BasePrincipal{ID: "counsel-1"}
	judgeP   = &auth.BasePrincipal{ID: "judge-1", Capabilities: []auth.Capability{auth.CapJudge}}
	adminP   = &auth.BasePrincipal{ID: "admin-1", Capabilities: []auth.Capability{auth.CapAdministrator}}
	outsider = &auth.BasePrincipal{ID: "outsider-1"}
)

type fixture struct {
	cases *Registry
	evr   *evidence.Registry
	log   *custody.Log
	bus   *events.Bus
	auth  *identity.StaticAuthority
	now   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	log := custody.NewLog().WithClock(clock)
	bus := events.NewBus().WithClock(clock)
	evr := evidence.NewRegistry(log, bus).WithClock(clock)

	authority := identity.NewStaticAuthority()
	authority.Register("counsel-1", identity.LevelProfessional)
	authority.Register("judge-1", identity.LevelJudicial)
	authority.Register("plaintiff-1", identity.LevelBasic)
	authority.Register("defendant-1", identity.LevelBasic)

	return &fixture{
		cases: NewRegistry(evr, authority, bus).WithClock(clock),
		evr:   evr,
		log:   log,
		bus:   bus,
		auth:  authority,
		now:   &now,
	}
}

func (f *fixture) fileCase(t *testing.T) ID {
	t.Helper()
	id, err := f.cases.FileCase(Filing{Number: "C-1", Title: "State v. Doe", Type: "criminal"}, filer)
	require.NoError(t, err)
	return id
}

func (f *fixture) submitEvidence(t *testing.T, b byte) evidence.ID {
	t.Helper()
	var h evidence.ContentHash
	h[0] = b
	id, err := f.evr.Submit(evidence.Submission{
		Title:          "exhibit",
		Type:           evidence.TypeDocument,
		Classification: evidence.ClassRestricted,
		StorageRef:     "ref://exhibit",
		ContentHash:    h,
	}, filer)
	require.NoError(t, err)
	return id
}

func TestFileCase(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	assert.Equal(t, ID(1), id)

	c, err := f.cases.GetDetails(id, filer)
	require.NoError(t, err)
	assert.Equal(t, StatusFiled, c.Status)
	assert.Equal(t, "counsel-1", c.Creator)
	assert.True(t, c.Active)

	parties, err := f.cases.GetParties(id, filer)
	require.NoError(t, err)
	require.Len(t, parties, 1, "the filer is the first implicit party")
	assert.Equal(t, RoleFiler, parties[0].Role)
}

func TestFileCaseDuplicateNumber(t *testing.T) {
	f := newFixture(t)
	f.fileCase(t)

	_, err := f.cases.FileCase(Filing{Number: "C-1", Title: "another"}, filer)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestFileCaseRequiresVerification(t *testing.T) {
	f := newFixture(t)
	_, err := f.cases.FileCase(Filing{Number: "C-2", Title: "t"}, outsider)
	require.ErrorIs(t, err, ErrUnverified)
}

func TestAddParty(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	require.NoError(t, f.cases.AddParty(id, "plaintiff-1", RolePlaintiff, "counsel-1", false, filer))

	parties, err := f.cases.GetParties(id, filer)
	require.NoError(t, err)
	require.Len(t, parties, 2)
	assert.Equal(t, RolePlaintiff, parties[1].Role)
	assert.Equal(t, "counsel-1", parties[1].Representative)

	// The new party gains case access.
	p := &auth.BasePrincipal{ID: "plaintiff-1"}
	_, err = f.cases.GetDetails(id, p)
	assert.NoError(t, err)
}

func TestAddPartyUnverifiedRejectedUnlessAnonymous(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	err := f.cases.AddParty(id, "anon-7", RoleWitness, "", false, filer)
	require.ErrorIs(t, err, ErrUnverified)

	// Anonymous parties skip the identity gate.
	require.NoError(t, f.cases.AddParty(id, "anon-7", RoleWhistleblower, "", true, filer))
}

func TestAddPartyRequiresCaseAccess(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	err := f.cases.AddParty(id, "plaintiff-1", RolePlaintiff, "", false, outsider)
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestPublicCaseIsReadableByAnyone(t *testing.T) {
	f := newFixture(t)
	id, err := f.cases.FileCase(Filing{Number: "C-9", Title: "open records", Public: true}, filer)
	require.NoError(t, err)

	_, err = f.cases.GetDetails(id, outsider)
	assert.NoError(t, err)
}

func TestLinkEvidence(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "murder weapon receipt", 50, filer))

	c, _ := f.cases.GetDetails(caseID, filer)
	assert.Equal(t, 1, c.EvidenceCount)

	links, err := f.cases.GetEvidence(caseID, filer)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 50, links[0].Weight)
	assert.False(t, links[0].Challenged)
}

func TestLinkEvidenceDuplicateRejected(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))
	err := f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 60, filer)
	require.ErrorIs(t, err, ErrDuplicate)

	c, _ := f.cases.GetDetails(caseID, filer)
	assert.Equal(t, 1, c.EvidenceCount, "failed link must not bump the count")
}

func TestLinkEvidenceValidation(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	assert.ErrorIs(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 0, filer), ErrValidation)
	assert.ErrorIs(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 101, filer), ErrValidation)
	assert.ErrorIs(t, f.cases.LinkEvidence(caseID, 99, evidence.TypeDocument, "", 50, filer), ErrNotFound,
		"a link referencing an unregistered evidence id is a missing-id error, not a bad argument")
}

func TestAssignJudgeExactlyOnce(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	require.NoError(t, f.cases.AssignJudge(id, "judge-1", filer))

	err := f.cases.AssignJudge(id, "judge-2", filer)
	require.ErrorIs(t, err, ErrValidation)

	c, _ := f.cases.GetDetails(id, filer)
	assert.Equal(t, "judge-1", c.Judge)

	// The judge now has case access.
	_, err = f.cases.GetDetails(id, judgeP)
	assert.NoError(t, err)
}

func TestIssueCourtOrderJudgeOnly(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	_, err := f.cases.IssueCourtOrder(id, "gag-order", "", time.Time{}, time.Time{}, filer)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.cases.AssignJudge(id, "judge-1", filer))
	orderID, err := f.cases.IssueCourtOrder(id, "gag-order", "no public statements", time.Time{}, time.Time{}, judgeP)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), orderID)

	orders, err := f.cases.GetOrders(id, judgeP)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Active)
	assert.Equal(t, "pending", orders[0].Compliance)
}

func TestChallengeAndAcceptEvidence(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)
	require.NoError(t, f.cases.AssignJudge(caseID, "judge-1", filer))
	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))

	// Accept before challenge is invalid.
	require.ErrorIs(t, f.cases.AcceptEvidence(caseID, evID, judgeP), ErrValidation)

	require.NoError(t, f.cases.ChallengeEvidence(caseID, evID, "chain gap alleged", filer))
	require.ErrorIs(t, f.cases.ChallengeEvidence(caseID, evID, "again", filer), ErrDuplicate)

	// Only the assigned judge may accept.
	require.ErrorIs(t, f.cases.AcceptEvidence(caseID, evID, filer), ErrUnauthorized)
	require.NoError(t, f.cases.AcceptEvidence(caseID, evID, judgeP))

	links, _ := f.cases.GetEvidence(caseID, filer)
	assert.True(t, links[0].Challenged)
	assert.True(t, links[0].Accepted)
	assert.Equal(t, "judge-1", links[0].AcceptedBy)

	// Both actions land on the evidence custody chain.
	chain := f.log.Entries(uint64(evID))
	actions := make([]custody.Action, 0, len(chain))
	for _, e := range chain {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, custody.ActionChallenged)
	assert.Contains(t, actions, custody.ActionAccepted)
}

func TestSettleCase(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	require.NoError(t, f.cases.SettleCase(id, "parties settled out of court", filer))

	c, _ := f.cases.GetDetails(id, filer)
	assert.Equal(t, StatusSettled, c.Status)

	// A closed case cannot be settled.
	id2, err := f.cases.FileCase(Filing{Number: "C-2", Title: "t"}, filer)
	require.NoError(t, err)
	require.NoError(t, f.cases.UpdateStatus(id2, StatusClosed, filer))
	require.ErrorIs(t, f.cases.SettleCase(id2, "", filer), ErrValidation)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)

	require.NoError(t, f.cases.UpdateStatus(id, StatusHearing, filer))
	require.NoError(t, f.cases.Pause(id, filer))

	c, _ := f.cases.GetDetails(id, filer)
	assert.False(t, c.Active)
	assert.Equal(t, StatusHearing, c.Status, "pause must not change status")

	require.NoError(t, f.cases.Resume(id, filer))
	c, _ = f.cases.GetDetails(id, filer)
	assert.True(t, c.Active)
}

func TestTimelineRecordsActions(t *testing.T) {
	f := newFixture(t)
	id := f.fileCase(t)
	require.NoError(t, f.cases.AddParty(id, "plaintiff-1", RolePlaintiff, "", false, filer))
	require.NoError(t, f.cases.UpdateStatus(id, StatusUnderReview, filer))

	timeline, err := f.cases.GetTimeline(id, filer)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.Equal(t, "filed", timeline[0].Action)
	assert.Equal(t, "party-added", timeline[1].Action)
	assert.Equal(t, "status-updated", timeline[2].Action)
}

func TestGetStatistics(t *testing.T) {
	f := newFixture(t)
	f.fileCase(t)
	id2, err := f.cases.FileCase(Filing{Number: "C-2", Title: "t2", Type: "civil"}, filer)
	require.NoError(t, err)
	require.NoError(t, f.cases.UpdateStatus(id2, StatusHearing, filer))

	evID := f.submitEvidence(t, 1)
	require.NoError(t, f.cases.LinkEvidence(id2, evID, evidence.TypeDocument, "", 10, filer))

	stats := f.cases.GetStatistics()
	assert.Equal(t, 2, stats.TotalCases)
	assert.Equal(t, 1, stats.ByStatus[StatusFiled])
	assert.Equal(t, 1, stats.ByStatus[StatusHearing])
	assert.Equal(t, 1, stats.ByType["civil"])
	assert.Equal(t, 1, stats.EvidenceLinks)
}

func TestUnknownCaseID(t *testing.T) {
	f := newFixture(t)
	_, err := f.cases.GetDetails(12, adminP)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, f.cases.UpdateStatus(12, StatusHearing, adminP), ErrNotFound)
}
