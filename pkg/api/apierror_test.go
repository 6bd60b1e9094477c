package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docket-systems/custodia/pkg/api"
	"github.com/docket-systems/custodia/pkg/casefile"
	"github.com/docket-systems/custodia/pkg/evidence"
)

func TestWriteError_ContentType(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteError(w, http.StatusBadRequest, "Bad Request", "field is missing")

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected Content-Type 'application/problem+json', got %q", ct)
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if problem.Status != 400 {
		t.Errorf("expected problem.status=400, got %d", problem.Status)
	}
	if problem.Title != "Bad Request" {
		t.Errorf("expected title 'Bad Request', got %q", problem.Title)
	}
	if problem.Detail != "field is missing" {
		t.Errorf("expected detail 'field is missing', got %q", problem.Detail)
	}
}

func TestWriteInternal_SanitizesError(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Must NOT contain internal error details
	if problem.Detail == "pq: connection refused to host=10.0.0.1" {
		t.Error("internal error details leaked to client")
	}
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500, got %d", w.Code)
	}
}

func TestWriteTooManyRequests_RetryAfterHeader(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteTooManyRequests(w, 30)

	if ra := w.Header().Get("Retry-After"); ra != "30" {
		t.Errorf("expected Retry-After '30', got %q", ra)
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", w.Code)
	}
}

func TestWriteUnauthorized_DefaultDetail(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteUnauthorized(w, "")

	var problem api.ProblemDetail
	if err := json.NewDecoder(w.Body).Decode(&problem); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if problem.Detail != "Authentication required" {
		t.Errorf("expected default detail, got %q", problem.Detail)
	}
}

func TestWriteDomainError_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: title is required", evidence.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: weight out of range", casefile.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: hash already registered", evidence.ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("%w: id 7", evidence.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: case 3", casefile.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: until 2026-06-01", evidence.ErrSealed), http.StatusLocked},
		{fmt.Errorf("%w: stranger-1", evidence.ErrAccessDenied), http.StatusForbidden},
		{fmt.Errorf("%w: seal requires legal authority", evidence.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("%w: anon-1", casefile.ErrUnverified), http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		api.WriteDomainError(w, tc.err)
		if w.Code != tc.want {
			t.Errorf("WriteDomainError(%v) = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}
