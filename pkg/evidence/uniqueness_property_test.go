//go:build property
// +build property

// Property-based tests for the content-hash uniqueness invariant.
package evidence_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/custody"
	"github.com/docket-systems/custodia/pkg/events"
	"github.com/docket-systems/custodia/pkg/evidence"
)

func newRegistry() *evidence.Registry {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	return evidence.NewRegistry(
		custody.NewLog().WithClock(clock),
		events.NewBus().WithClock(clock),
	).WithClock(clock)
}

func submissionFor(b byte) evidence.Submission {
	var h evidence.ContentHash
	h[0] = b
	h[1] = b ^ 0x5a
	return evidence.Submission{
		Title:          "exhibit",
		Type:           evidence.TypeDigitalFile,
		Classification: evidence.ClassRestricted,
		StorageRef:     "ref://exhibit",
		ContentHash:    h,
	}
}

// TestContentHashUniqueness verifies that for any sequence of submissions,
// at most one id ever maps to a given content hash, and ids are assigned
// without gaps or reuse.
func TestContentHashUniqueness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	clerk := &auth.BasePrincipal{ID: "clerk-1"}

	properties.Property("one id per content hash, ids dense and never reused", prop.ForAll(
		func(hashes []byte) bool {
			reg := newRegistry()
			seen := make(map[byte]evidence.ID)
			var lastID evidence.ID

			for _, b := range hashes {
				id, err := reg.Submit(submissionFor(b), clerk)
				if prior, dup := seen[b]; dup {
					// Re-submission of identical content must fail and
					// must not disturb the original mapping.
					if err == nil {
						return false
					}
					if !reg.Exists(prior) {
						return false
					}
					continue
				}
				if err != nil {
					return false
				}
				if id != lastID+1 {
					return false // ids are dense and strictly increasing
				}
				lastID = id
				seen[b] = id
			}
			return reg.TotalCount() == len(seen)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

// TestResolverConsistency verifies the resolver's precedence holds for
// arbitrary grant/revoke interleavings: administrators and the submitter
// always pass regardless of explicit grant state.
func TestResolverConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	clerk := &auth.BasePrincipal{ID: "clerk-1"}
	admin := &auth.BasePrincipal{ID: "admin-1", Capabilities: []auth.Capability{auth.CapAdministrator}}

	properties.Property("capability and submitter access survive grant churn", prop.ForAll(
		func(revokes []bool) bool {
			reg := newRegistry()
			id, err := reg.Submit(submissionFor(1), clerk)
			if err != nil {
				return false
			}

			for _, revoke := range revokes {
				if revoke {
					_ = reg.RevokeAccess(id, clerk.GetID(), admin)
					_ = reg.RevokeAccess(id, admin.GetID(), admin)
				} else {
					_ = reg.GrantAccess(id, admin.GetID(), evidence.AccessRead, time.Time{}, admin)
				}
				if !reg.CanAccess(clerk, id) || !reg.CanAccess(admin, id) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
