package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/casefile"
	"github.com/docket-systems/custodia/pkg/evidence"
)

// CaseService exposes the Case Registry over HTTP.
type CaseService struct {
	registry *casefile.Registry
}

// NewCaseService wraps the registry.
func NewCaseService(registry *casefile.Registry) *CaseService {
	return &CaseService{registry: registry}
}

// FileRequest is the body for POST /cases.
type FileRequest struct {
	Number        string `json:"number"`
	Title         string `json:"title"`
	Type          string `json:"type,omitempty"`
	Priority      string `json:"priority,omitempty"`
	Jurisdiction  string `json:"jurisdiction,omitempty"`
	CourtLocation string `json:"court_location,omitempty"`
	Public        bool   `json:"public,omitempty"`
}

// FileResponse carries the assigned case id.
type FileResponse struct {
	ID casefile.ID `json:"id"`
}

func (s *CaseService) HandleFile(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req FileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	id, err := s.registry.FileCase(casefile.Filing{
		Number:        req.Number,
		Title:         req.Title,
		Type:          req.Type,
		Priority:      casefile.Priority(req.Priority),
		Jurisdiction:  req.Jurisdiction,
		CourtLocation: req.CourtLocation,
		Public:        req.Public,
	}, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, FileResponse{ID: id})
}

func (s *CaseService) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	c, err := s.registry.GetDetails(id, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// PartyRequest is the body for POST /cases/{id}/parties.
type PartyRequest struct {
	Principal      string `json:"principal"`
	Role           string `json:"role"`
	Representative string `json:"representative,omitempty"`
	Anonymous      bool   `json:"anonymous,omitempty"`
}

func (s *CaseService) HandleAddParty(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req PartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.AddParty(id, req.Principal, casefile.PartyRole(req.Role), req.Representative, req.Anonymous, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CaseService) HandleDeactivateParty(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	principal := r.PathValue("principal")
	if principal == "" {
		WriteBadRequest(w, "principal path segment is required")
		return
	}

	if err := s.registry.DeactivateParty(id, principal, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LinkRequest is the body for POST /cases/{id}/evidence.
type LinkRequest struct {
	EvidenceID uint64 `json:"evidence_id"`
	Type       string `json:"type"`
	Relevance  string `json:"relevance,omitempty"`
	Weight     int    `json:"weight"`
}

func (s *CaseService) HandleLinkEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	err := s.registry.LinkEvidence(id, evidence.ID(req.EvidenceID), evidence.Type(req.Type), req.Relevance, req.Weight, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CaseStatusRequest is the body for POST /cases/{id}/status.
type CaseStatusRequest struct {
	Status string `json:"status"`
}

func (s *CaseService) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req CaseStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.UpdateStatus(id, casefile.Status(req.Status), p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JudgeRequest is the body for POST /cases/{id}/judge.
type JudgeRequest struct {
	Judge string `json:"judge"`
}

func (s *CaseService) HandleAssignJudge(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req JudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.AssignJudge(id, req.Judge, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OrderRequest is the body for POST /cases/{id}/orders.
type OrderRequest struct {
	Type      string    `json:"type"`
	Detail    string    `json:"detail,omitempty"`
	Effective time.Time `json:"effective,omitzero"`
	Expiry    time.Time `json:"expiry,omitzero"`
}

// OrderResponse carries the per-case order id.
type OrderResponse struct {
	OrderID uint64 `json:"order_id"`
}

func (s *CaseService) HandleIssueOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	orderID, err := s.registry.IssueCourtOrder(id, req.Type, req.Detail, req.Effective, req.Expiry, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, OrderResponse{OrderID: orderID})
}

// ChallengeRequest is the body for POST /cases/{id}/evidence/{evidenceID}/challenge.
type ChallengeRequest struct {
	Reason string `json:"reason"`
}

func (s *CaseService) HandleChallengeEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	evID, ok := linkedEvidenceID(w, r)
	if !ok {
		return
	}

	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.ChallengeEvidence(id, evID, req.Reason, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CaseService) HandleAcceptEvidence(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	evID, ok := linkedEvidenceID(w, r)
	if !ok {
		return
	}

	if err := s.registry.AcceptEvidence(id, evID, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SettleRequest is the body for POST /cases/{id}/settle.
type SettleRequest struct {
	Terms string `json:"terms,omitempty"`
}

func (s *CaseService) HandleSettle(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.SettleCase(id, req.Terms, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CaseService) HandlePause(w http.ResponseWriter, r *http.Request) {
	s.handleActiveFlag(w, r, s.registry.Pause)
}

func (s *CaseService) HandleResume(w http.ResponseWriter, r *http.Request) {
	s.handleActiveFlag(w, r, s.registry.Resume)
}

func (s *CaseService) handleActiveFlag(w http.ResponseWriter, r *http.Request, op func(casefile.ID, auth.Principal) error) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	if err := op(id, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *CaseService) HandleParties(w http.ResponseWriter, r *http.Request) {
	s.handleSub(w, r, func(id casefile.ID, p auth.Principal) (interface{}, error) {
		return s.registry.GetParties(id, p)
	})
}

func (s *CaseService) HandleEvidence(w http.ResponseWriter, r *http.Request) {
	s.handleSub(w, r, func(id casefile.ID, p auth.Principal) (interface{}, error) {
		return s.registry.GetEvidence(id, p)
	})
}

func (s *CaseService) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	s.handleSub(w, r, func(id casefile.ID, p auth.Principal) (interface{}, error) {
		return s.registry.GetTimeline(id, p)
	})
}

func (s *CaseService) HandleOrders(w http.ResponseWriter, r *http.Request) {
	s.handleSub(w, r, func(id casefile.ID, p auth.Principal) (interface{}, error) {
		return s.registry.GetOrders(id, p)
	})
}

func (s *CaseService) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.GetStatistics())
}

func (s *CaseService) handleSub(w http.ResponseWriter, r *http.Request, get func(casefile.ID, auth.Principal) (interface{}, error)) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := caseID(w, r)
	if !ok {
		return
	}
	v, err := get(id, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func caseID(w http.ResponseWriter, r *http.Request) (casefile.ID, bool) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || n == 0 {
		WriteBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return casefile.ID(n), true
}

func linkedEvidenceID(w http.ResponseWriter, r *http.Request) (evidence.ID, bool) {
	n, err := strconv.ParseUint(r.PathValue("evidenceID"), 10, 64)
	if err != nil || n == 0 {
		WriteBadRequest(w, "evidenceID must be a positive integer")
		return 0, false
	}
	return evidence.ID(n), true
}
