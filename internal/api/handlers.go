// ABOUTME: HTTP handlers for capability, studies, selection, submissions and receipts
// ABOUTME: Each handler decodes, calls the session and writes JSON

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/2389/healthledger/internal/session"
	"github.com/2389/healthledger/internal/store"
)

// IdempotencyHeader carries the client's key for POST /api/submissions.
const IdempotencyHeader = "Idempotency-Key"

// defaultReceiptLimit applies when GET /api/receipts has no limit.
const defaultReceiptLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCapability(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toCapability(s.svc.CapabilityStatus()))
}

// handleRetryCapability runs a fresh initialization and reports the result.
// A failed attempt is still a 200 with the failure in the body.
func (s *Server) handleRetryCapability(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RetryCapability(r.Context()); err != nil {
		s.logger.Warn("capability retry failed", "error", err)
	}
	writeJSON(w, http.StatusOK, toCapability(s.svc.CapabilityStatus()))
}

func (s *Server) handleListStudies(w http.ResponseWriter, r *http.Request) {
	if wantRefresh(r) {
		if _, err := s.svc.Refresh(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toStudyList(s.svc.Studies(), s.svc.RefreshedAt()))
}

func (s *Server) handleActiveStudies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStudyList(s.svc.ActiveStudies(), s.svc.RefreshedAt()))
}

func (s *Server) handleGetStudy(w http.ResponseWriter, r *http.Request) {
	id, ok := studyID(w, r)
	if !ok {
		return
	}
	st, err := s.svc.Study(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudy(st))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := studyID(w, r)
	if !ok {
		return
	}
	if _, err := s.svc.Study(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	view := s.svc.Stats(r.Context(), id, wantRefresh(r))
	writeJSON(w, http.StatusOK, toStats(id, view))
}

func (s *Server) handleCreateStudy(w http.ResponseWriter, r *http.Request) {
	var req CreateStudyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.svc.CreateStudy(r.Context(), req.Name, req.Description)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateStudyResponse{ID: id})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	id, ok := s.svc.Selected()
	if !ok {
		writeJSON(w, http.StatusOK, SelectionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, SelectionResponse{
		StudyID: &id,
		Stats:   toStats(id, s.svc.Stats(r.Context(), id, false)),
	})
}

func (s *Server) handlePutSelection(w http.ResponseWriter, r *http.Request) {
	var req SelectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := s.svc.Select(r.Context(), req.StudyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := SelectionResponse{StudyID: req.StudyID}
	if req.StudyID != nil {
		resp.Stats = toStats(*req.StudyID, view)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.svc.Submit(r.Context(), session.SubmitRequest{
		StudyID:        req.StudyID,
		Value:          req.Value,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyHeader)),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubmit(res))
}

func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ReceiptFilter{Kind: store.Kind(q.Get("kind")), Limit: defaultReceiptLimit}

	if raw := q.Get("study_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "study_id must be a non-negative integer")
			return
		}
		filter.StudyID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}
	switch filter.Kind {
	case "", store.KindSubmit, store.KindCreateStudy:
	default:
		writeError(w, http.StatusBadRequest, "kind must be submit or create_study")
		return
	}

	receipts, err := s.svc.Receipts(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	summary, err := s.svc.ReceiptSummary(r.Context(), filter.StudyID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListReceiptsResponse{
		Receipts: toReceipts(receipts),
		Summary:  toSummary(summary),
	})
}

func studyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "study id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

func wantRefresh(r *http.Request) bool {
	v := r.URL.Query().Get("refresh")
	return v == "1" || v == "true"
}
