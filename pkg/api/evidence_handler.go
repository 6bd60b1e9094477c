package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docket-systems/custodia/pkg/auth"
	"github.com/docket-systems/custodia/pkg/evidence"
)

// EvidenceService exposes the Evidence Registry over HTTP.
type EvidenceService struct {
	registry *evidence.Registry
}

// NewEvidenceService wraps the registry.
func NewEvidenceService(registry *evidence.Registry) *EvidenceService {
	return &EvidenceService{registry: registry}
}

// SubmitRequest is the body for POST /evidence.
type SubmitRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Type           string `json:"type"`
	Classification int    `json:"classification"`
	StorageRef     string `json:"storage_ref"`
	MetadataRef    string `json:"metadata_ref,omitempty"`
	ContentHash    string `json:"content_hash"` // 64 hex chars
	Encrypted      bool   `json:"encrypted,omitempty"`
}

// SubmitResponse carries the assigned id.
type SubmitResponse struct {
	ID evidence.ID `json:"id"`
}

func (s *EvidenceService) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	hash, err := parseContentHash(req.ContentHash)
	if err != nil {
		WriteBadRequest(w, "content_hash must be 64 hex characters")
		return
	}

	id, err := s.registry.Submit(evidence.Submission{
		Title:          req.Title,
		Description:    req.Description,
		Type:           evidence.Type(req.Type),
		Classification: evidence.Classification(req.Classification),
		StorageRef:     req.StorageRef,
		MetadataRef:    req.MetadataRef,
		ContentHash:    hash,
		Encrypted:      req.Encrypted,
	}, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SubmitResponse{ID: id})
}

func (s *EvidenceService) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	rec, err := s.registry.Get(id, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleList serves GET /evidence?type= or ?status=. Results exclude
// items the caller cannot access.
func (s *EvidenceService) HandleList(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}

	var (
		recs []evidence.Record
		err  error
	)
	switch {
	case r.URL.Query().Get("type") != "":
		recs, err = s.registry.ListByType(evidence.Type(r.URL.Query().Get("type")), p)
	case r.URL.Query().Get("status") != "":
		recs, err = s.registry.ListByStatus(evidence.Status(r.URL.Query().Get("status")), p)
	default:
		WriteBadRequest(w, "either type or status query parameter is required")
		return
	}
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// StatusRequest is the body for POST /evidence/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

func (s *EvidenceService) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.UpdateStatus(id, evidence.Status(req.Status), p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SealRequest is the body for POST /evidence/{id}/seal.
type SealRequest struct {
	Duration string `json:"duration"` // Go duration string, e.g. "72h"
}

func (s *EvidenceService) HandleSeal(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	var req SealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		WriteBadRequest(w, "duration must be a valid duration string")
		return
	}
	if err := s.registry.Seal(id, d, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// VerifyRequest is the body for POST /evidence/{id}/verify.
type VerifyRequest struct {
	ContentHash string `json:"content_hash"`
}

// VerifyResponse reports the integrity comparison outcome.
type VerifyResponse struct {
	Match bool `json:"match"`
}

func (s *EvidenceService) HandleVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	hash, err := parseContentHash(req.ContentHash)
	if err != nil {
		WriteBadRequest(w, "content_hash must be 64 hex characters")
		return
	}

	match, err := s.registry.VerifyIntegrity(id, hash, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Match: match})
}

// GrantRequest is the body for POST /evidence/{id}/grants.
type GrantRequest struct {
	Principal string    `json:"principal"`
	Level     string    `json:"level"`
	Expiry    time.Time `json:"expiry,omitzero"`
}

func (s *EvidenceService) HandleGrant(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	var req GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.registry.GrantAccess(id, req.Principal, evidence.AccessLevel(req.Level), req.Expiry, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *EvidenceService) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}
	principal := r.PathValue("principal")
	if principal == "" {
		WriteBadRequest(w, "principal path segment is required")
		return
	}

	if err := s.registry.RevokeAccess(id, principal, p); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *EvidenceService) HandleGrants(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	grants, err := s.registry.Grants(id, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (s *EvidenceService) HandleCustody(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	chain, err := s.registry.CustodyChain(id, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

// CustodyVerifyResponse reports a chain verification outcome.
type CustodyVerifyResponse struct {
	Intact bool   `json:"intact"`
	Detail string `json:"detail,omitempty"`
}

func (s *EvidenceService) HandleCustodyVerify(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	id, ok := evidenceID(w, r)
	if !ok {
		return
	}

	intact, detail, err := s.registry.VerifyCustody(id, p)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CustodyVerifyResponse{Intact: intact, Detail: detail})
}

func parseContentHash(s string) (evidence.ContentHash, error) {
	var h evidence.ContentHash
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "sha256:"))
	if err != nil || len(raw) != len(h) {
		return h, evidence.ErrValidation
	}
	copy(h[:], raw)
	return h, nil
}

func evidenceID(w http.ResponseWriter, r *http.Request) (evidence.ID, bool) {
	n, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || n == 0 {
		WriteBadRequest(w, "id must be a positive integer")
		return 0, false
	}
	return evidence.ID(n), true
}

func principalOf(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return nil, false
	}
	return p, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
