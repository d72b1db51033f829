// ABOUTME: chi router, middleware and lifecycle for the local HTTP API
// ABOUTME: Runs until its context is cancelled, then shuts down gracefully

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/session"
	"github.com/2389/healthledger/internal/store"
	"github.com/2389/healthledger/internal/studycache"
	"github.com/2389/healthledger/internal/submission"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Service is the session surface the API exposes. *session.Session satisfies it.
type Service interface {
	CapabilityStatus() capability.Status
	RetryCapability(ctx context.Context) error

	Studies() []ledger.Study
	ActiveStudies() []ledger.Study
	Study(ctx context.Context, id uint64) (ledger.Study, error)
	Refresh(ctx context.Context) (*studycache.Report, error)
	RefreshedAt() time.Time
	Stats(ctx context.Context, id uint64, refresh bool) studycache.StatsView
	CreateStudy(ctx context.Context, name, description string) (uint64, error)

	Select(ctx context.Context, id *uint64) (studycache.StatsView, error)
	Selected() (uint64, bool)
	Submit(ctx context.Context, req session.SubmitRequest) (*submission.Result, error)

	Receipts(ctx context.Context, filter store.ReceiptFilter) ([]*store.Receipt, error)
	ReceiptSummary(ctx context.Context, studyID *uint64) (*store.ReceiptSummary, error)
}

var _ Service = (*session.Session)(nil)

// Server is the HTTP API.
type Server struct {
	svc    Service
	logger *slog.Logger
	router chi.Router
	http   *http.Server
}

// New creates a server for svc.
func New(svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger.With("component", "api"),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/capability", s.handleCapability)
		r.Post("/capability/retry", s.handleRetryCapability)

		r.Get("/studies", s.handleListStudies)
		r.Post("/studies", s.handleCreateStudy)
		r.Get("/studies/active", s.handleActiveStudies)
		r.Get("/studies/{id}", s.handleGetStudy)
		r.Get("/studies/{id}/stats", s.handleStats)

		r.Get("/selection", s.handleGetSelection)
		r.Put("/selection", s.handlePutSelection)

		r.Post("/submissions", s.handleSubmit)
		r.Get("/receipts", s.handleListReceipts)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Serve runs on ln until ctx is cancelled or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", ln.Addr().String())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down HTTP API")
	case serveErr = <-errCh:
		if serveErr != nil {
			s.logger.Error("server error", "error", serveErr)
		}
	}

	// The serving context is already cancelled; shut down on a fresh one.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		return fmt.Errorf("shutting down HTTP API: %w", err)
	}
	return serveErr
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
