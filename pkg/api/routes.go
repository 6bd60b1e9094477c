package api

import (
	"net/http"
	"strconv"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/events"
)

// Server aggregates the HTTP surface.
type Server struct {
	Evidence *EvidenceService
	Cases    *CaseService
	Bus      *events.Bus
}

// Routes builds the request mux. Authentication and rate limiting wrap
// the mux at the caller.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /evidence", s.Evidence.HandleSubmit)
	mux.HandleFunc("GET /evidence", s.Evidence.HandleList)
	mux.HandleFunc("GET /evidence/{id}", s.Evidence.HandleGet)
	mux.HandleFunc("POST /evidence/{id}/status", s.Evidence.HandleUpdateStatus)
	mux.HandleFunc("POST /evidence/{id}/seal", s.Evidence.HandleSeal)
	mux.HandleFunc("POST /evidence/{id}/verify", s.Evidence.HandleVerify)
	mux.HandleFunc("POST /evidence/{id}/grants", s.Evidence.HandleGrant)
	mux.HandleFunc("GET /evidence/{id}/grants", s.Evidence.HandleGrants)
	mux.HandleFunc("DELETE /evidence/{id}/grants/{principal}", s.Evidence.HandleRevoke)
	mux.HandleFunc("GET /evidence/{id}/custody", s.Evidence.HandleCustody)
	mux.HandleFunc("GET /evidence/{id}/custody/verify", s.Evidence.HandleCustodyVerify)

	mux.HandleFunc("POST /cases", s.Cases.HandleFile)
	mux.HandleFunc("GET /cases/{id}", s.Cases.HandleGet)
	mux.HandleFunc("POST /cases/{id}/parties", s.Cases.HandleAddParty)
	mux.HandleFunc("GET /cases/{id}/parties", s.Cases.HandleParties)
	mux.HandleFunc("DELETE /cases/{id}/parties/{principal}", s.Cases.HandleDeactivateParty)
	mux.HandleFunc("POST /cases/{id}/evidence", s.Cases.HandleLinkEvidence)
	mux.HandleFunc("GET /cases/{id}/evidence", s.Cases.HandleEvidence)
	mux.HandleFunc("POST /cases/{id}/evidence/{evidenceID}/challenge", s.Cases.HandleChallengeEvidence)
	mux.HandleFunc("POST /cases/{id}/evidence/{evidenceID}/accept", s.Cases.HandleAcceptEvidence)
	mux.HandleFunc("POST /cases/{id}/status", s.Cases.HandleUpdateStatus)
	mux.HandleFunc("POST /cases/{id}/judge", s.Cases.HandleAssignJudge)
	mux.HandleFunc("POST /cases/{id}/orders", s.Cases.HandleIssueOrder)
	mux.HandleFunc("GET /cases/{id}/orders", s.Cases.HandleOrders)
	mux.HandleFunc("GET /cases/{id}/timeline", s.Cases.HandleTimeline)
	mux.HandleFunc("POST /cases/{id}/settle", s.Cases.HandleSettle)
	mux.HandleFunc("POST /cases/{id}/pause", s.Cases.HandlePause)
	mux.HandleFunc("POST /cases/{id}/resume", s.Cases.HandleResume)

	mux.HandleFunc("GET /stats", s.Cases.HandleStatistics)
	mux.HandleFunc("GET /events", s.handleEvents)

	return mux
}

// handleEvents serves the event stream replay: GET /events?since=N
// returns every event with sequence greater than N. Replay is for
// external indexers and bypasses the per-evidence access resolver, so
// it is restricted to administrators.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	if !p.HasCapability(auth.CapAdministrator) {
		WriteForbidden(w, "Event replay requires the administrator capability")
		return
	}

	since := uint64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			WriteBadRequest(w, "since must be a non-negative integer")
			return
		}
		since = n
	}
	writeJSON(w, http.StatusOK, s.Bus.ListSince(since))
}
