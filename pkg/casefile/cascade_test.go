package casefile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/evidence"
)

func principal(id string) *auth.BasePrincipal {
	return &auth.BasePrincipal{ID: id}
}

func TestCascadeGrantsActivePartiesAndJudge(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	require.NoError(t, f.cases.AddParty(caseID, "plaintiff-1", RolePlaintiff, "rep-1", false, filer))
	require.NoError(t, f.cases.AddParty(caseID, "defendant-1", RoleDefendant, "", false, filer))
	require.NoError(t, f.cases.AssignJudge(caseID, "judge-1", filer))

	// Nobody but the submitter can read the evidence yet.
	assert.False(t, f.evr.CanAccess(principal("plaintiff-1"), evID))
	assert.False(t, f.evr.CanAccess(principal("defendant-1"), evID))
	assert.False(t, f.evr.CanAccess(principal("rep-1"), evID))
	assert.False(t, f.evr.CanAccess(principal("judge-1"), evID))

	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))

	assert.True(t, f.evr.CanAccess(principal("plaintiff-1"), evID))
	assert.True(t, f.evr.CanAccess(principal("defendant-1"), evID))
	assert.True(t, f.evr.CanAccess(principal("rep-1"), evID), "representatives are covered by the cascade")
	assert.True(t, f.evr.CanAccess(principal("judge-1"), evID))
}

func TestCascadeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)
	require.NoError(t, f.cases.AddParty(caseID, "plaintiff-1", RolePlaintiff, "", false, filer))

	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))
	before := len(grantsFor(t, f, evID))

	// A duplicate link is rejected and must not re-run the cascade.
	require.ErrorIs(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer), ErrDuplicate)
	assert.Equal(t, before, len(grantsFor(t, f, evID)))

	// Linking the same evidence to a second case the same parties belong
	// to writes no duplicate grants either.
	case2, err := f.cases.FileCase(Filing{Number: "C-2", Title: "related matter"}, filer)
	require.NoError(t, err)
	require.NoError(t, f.cases.AddParty(case2, "plaintiff-1", RolePlaintiff, "", false, filer))
	require.NoError(t, f.cases.LinkEvidence(case2, evID, evidence.TypeDocument, "", 50, filer))
	assert.Equal(t, before, len(grantsFor(t, f, evID)))
}

func TestCascadeSkipsInactiveParties(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	require.NoError(t, f.cases.AddParty(caseID, "plaintiff-1", RolePlaintiff, "", false, filer))
	require.NoError(t, f.cases.AddParty(caseID, "defendant-1", RoleDefendant, "", false, filer))
	require.NoError(t, f.cases.DeactivateParty(caseID, "defendant-1", filer))

	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))

	assert.True(t, f.evr.CanAccess(principal("plaintiff-1"), evID))
	assert.False(t, f.evr.CanAccess(principal("defendant-1"), evID), "inactive at link time means no grant")
}

func TestCascadeDoesNotCoverLateJoiners(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))
	require.NoError(t, f.cases.AddParty(caseID, "plaintiff-1", RolePlaintiff, "", false, filer))

	assert.False(t, f.evr.CanAccess(principal("plaintiff-1"), evID),
		"the cascade runs at link time only, never retroactively")
}

func TestDeactivationDoesNotRevokeCascadedGrant(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)

	require.NoError(t, f.cases.AddParty(caseID, "plaintiff-1", RolePlaintiff, "", false, filer))
	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))
	require.True(t, f.evr.CanAccess(principal("plaintiff-1"), evID))

	require.NoError(t, f.cases.DeactivateParty(caseID, "plaintiff-1", filer))

	assert.True(t, f.evr.CanAccess(principal("plaintiff-1"), evID),
		"leaving a case does not revoke grants issued while a member")
}

func TestCascadeGrantAttribution(t *testing.T) {
	f := newFixture(t)
	caseID := f.fileCase(t)
	evID := f.submitEvidence(t, 1)
	require.NoError(t, f.cases.AddParty(caseID, "plaintiff-1", RolePlaintiff, "", false, filer))
	require.NoError(t, f.cases.LinkEvidence(caseID, evID, evidence.TypeDocument, "", 50, filer))

	for _, g := range grantsFor(t, f, evID) {
		if g.Principal == "plaintiff-1" {
			assert.Equal(t, "case/1", g.GrantedBy)
			assert.Equal(t, evidence.AccessRead, g.Level)
			return
		}
	}
	t.Fatal("no grant recorded for plaintiff-1")
}

func grantsFor(t *testing.T, f *fixture, id evidence.ID) []evidence.Grant {
	t.Helper()
	grants, err := f.evr.Grants(id, adminP)
	require.NoError(t, err)
	return grants
}
