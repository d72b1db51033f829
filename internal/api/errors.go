// ABOUTME: Maps session and pipeline errors to HTTP status codes
// ABOUTME: Unknown errors are logged and reported as 500

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/session"
	"github.com/2389/healthledger/internal/studycache"
	"github.com/2389/healthledger/internal/submission"
)

// statusFor picks the response status for err.
func statusFor(err error) int {
	var (
		invalid  *submission.InvalidValueError
		enc      *submission.EncryptionFailedError
		rejected *submission.SubmissionRejectedError
		total    *studycache.FetchTotalFailure
	)
	switch {
	case errors.Is(err, session.ErrUnknownStudy), errors.Is(err, ledger.ErrStudyNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalid),
		errors.Is(err, session.ErrInvalidStudy),
		errors.Is(err, session.ErrNoStudySelected):
		return http.StatusBadRequest
	case errors.Is(err, capability.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrDuplicateSubmission):
		return http.StatusConflict
	case errors.As(err, &enc), errors.As(err, &total):
		return http.StatusBadGateway
	case errors.As(err, &rejected), errors.Is(err, session.ErrStudyInactive), errors.Is(err, ledger.ErrReverted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNoJournal):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
