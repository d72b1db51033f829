// ABOUTME: Session ties capability, pipeline, study cache and journal together
// ABOUTME: Tracks the selected study and notifies on user-initiated outcomes

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/dedupe"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/notify"
	"github.com/2389/healthledger/internal/store"
	"github.com/2389/healthledger/internal/studycache"
	"github.com/2389/healthledger/internal/submission"
)

// notifyTimeout bounds each notification.
const notifyTimeout = 10 * time.Second

// StudyCreator registers new studies. *ledger.Client satisfies it.
type StudyCreator interface {
	CreateStudy(ctx context.Context, name, description string) (uint64, *ledger.Receipt, error)
}

// Options holds a Session's collaborators. Lifecycle, Pipeline and Cache are
// required; the rest are optional.
type Options struct {
	Submitter common.Address
	Lifecycle *capability.Lifecycle
	Pipeline  *submission.Pipeline
	Cache     *studycache.Cache
	Poller    *studycache.Poller
	Creator   StudyCreator
	Journal   store.Store
	Dedupe    *dedupe.Cache
	Notifier  notify.Notifier
	Logger    *slog.Logger
}

// SubmitRequest is one user submission. A nil StudyID uses the selection.
type SubmitRequest struct {
	StudyID        *uint64
	Value          string
	IdempotencyKey string
}

// Session is safe for concurrent use.
type Session struct {
	opts     Options
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	selected *uint64

	startOnce sync.Once
	cancel    context.CancelFunc // guarded by mu
	closed    bool               // guarded by mu
	wg        sync.WaitGroup
}

// New creates a session. Call Start to begin background work.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Discard{}
	}
	return &Session{
		opts:     opts,
		notifier: notifier,
		logger:   logger.With("component", "session"),
		now:      time.Now,
	}
}

// Start initializes the capability in the background and starts the poller.
// Only the first call has an effect, and none after Close.
func (s *Session) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		ctx, s.cancel = context.WithCancel(ctx)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_ = s.initCapability(ctx)
		}()

		if s.opts.Poller != nil {
			s.opts.Poller.Start(ctx)
		}
	})
}

// RetryCapability discards a failed or pending attempt and initializes again.
// A ready capability is kept.
func (s *Session) RetryCapability(ctx context.Context) error {
	switch s.opts.Lifecycle.State() {
	case capability.StateFailed, capability.StateInitializing:
		s.opts.Lifecycle.Reset()
	}
	return s.initCapability(ctx)
}

func (s *Session) initCapability(ctx context.Context) error {
	_, err := s.opts.Lifecycle.Initialize(ctx)
	switch {
	case err == nil:
		s.notify(ctx, notify.Notice{Level: notify.LevelSuccess, Action: notify.ActionInit, Title: "Encryption ready"})
	case errors.Is(err, capability.ErrReset), errors.Is(err, context.Canceled):
		// superseded or shutting down
	default:
		s.notify(ctx, notify.Notice{Level: notify.LevelError, Action: notify.ActionInit, Title: "Encryption unavailable", Message: err.Error()})
	}
	return err
}

// CapabilityStatus reports the capability state and last error.
func (s *Session) CapabilityStatus() capability.Status {
	return s.opts.Lifecycle.Status()
}

// Submitter is the address submissions are bound to.
func (s *Session) Submitter() common.Address {
	return s.opts.Submitter
}

// Select sets the selected study and loads its statistics. A nil id clears
// the selection and returns an absent view.
func (s *Session) Select(ctx context.Context, id *uint64) (studycache.StatsView, error) {
	if id == nil {
		s.mu.Lock()
		s.selected = nil
		s.mu.Unlock()
		return studycache.StatsView{State: studycache.StatsAbsent}, nil
	}

	if _, err := s.Study(ctx, *id); err != nil {
		return studycache.StatsView{}, err
	}

	sel := *id
	s.mu.Lock()
	s.selected = &sel
	s.mu.Unlock()

	return s.opts.Cache.RefreshStats(ctx, sel), nil
}

// Selected returns the selected study id.
func (s *Session) Selected() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return 0, false
	}
	return *s.selected, true
}

// Studies returns every cached study, newest first.
func (s *Session) Studies() []ledger.Study {
	return s.opts.Cache.All()
}

// ActiveStudies returns the cached active studies in id order.
func (s *Session) ActiveStudies() []ledger.Study {
	return s.opts.Cache.Active()
}

// Study returns one study. A cache miss triggers one full refresh before
// giving up with ErrUnknownStudy.
func (s *Session) Study(ctx context.Context, id uint64) (ledger.Study, error) {
	if st, ok := s.opts.Cache.Study(id); ok {
		return st, nil
	}
	if _, err := s.opts.Cache.RefreshAll(ctx); err != nil {
		return ledger.Study{}, err
	}
	if st, ok := s.opts.Cache.Study(id); ok {
		return st, nil
	}
	return ledger.Study{}, fmt.Errorf("%w: %d", ErrUnknownStudy, id)
}

// Stats returns the cached statistics view, fetching first when refresh is set.
func (s *Session) Stats(ctx context.Context, id uint64, refresh bool) studycache.StatsView {
	if refresh {
		return s.opts.Cache.RefreshStats(ctx, id)
	}
	return s.opts.Cache.Stats(id)
}

// Refresh reloads the study list.
func (s *Session) Refresh(ctx context.Context) (*studycache.Report, error) {
	return s.opts.Cache.RefreshAll(ctx)
}

// RefreshedAt reports when the study list was last replaced; zero if never.
func (s *Session) RefreshedAt() time.Time {
	return s.opts.Cache.RefreshedAt()
}

// Submit quantizes, encrypts and writes one reading.
func (s *Session) Submit(ctx context.Context, req SubmitRequest) (*submission.Result, error) {
	studyID, err := s.resolveStudy(req.StudyID)
	if err != nil {
		return nil, err
	}

	if _, err := submission.Quantize(req.Value); err != nil {
		s.notifySubmitFailure(ctx, studyID, "Invalid value", err)
		return nil, err
	}

	c, ok := s.opts.Lifecycle.Capability()
	if !ok {
		s.notifySubmitFailure(ctx, studyID, "Encryption not ready", capability.ErrNotReady)
		return nil, capability.ErrNotReady
	}

	if st, known := s.opts.Cache.Study(studyID); known && !st.IsActive {
		err := fmt.Errorf("%w: %d", ErrStudyInactive, studyID)
		s.notifySubmitFailure(ctx, studyID, "Submission refused", err)
		return nil, err
	}

	key := req.IdempotencyKey
	if key != "" && s.opts.Dedupe != nil {
		if !s.opts.Dedupe.Claim(key) {
			s.logger.Info("duplicate submission ignored", "study_id", studyID, "idempotency_key", key)
			return nil, ErrDuplicateSubmission
		}
	}

	res, err := s.opts.Pipeline.Submit(ctx, studyID, req.Value, c, s.opts.Submitter)
	if err != nil {
		if key != "" && s.opts.Dedupe != nil {
			s.opts.Dedupe.Release(key)
		}
		s.notifySubmitFailure(ctx, studyID, submitFailureTitle(err), err)
		if !errors.As(err, new(*submission.EncryptionFailedError)) {
			s.refreshAfterWrite(ctx, studyID)
		}
		return nil, err
	}

	s.notify(ctx, notify.Notice{
		Level:   notify.LevelSuccess,
		Action:  notify.ActionSubmit,
		Title:   "Data submitted",
		Message: fmt.Sprintf("study %d, tx %s", studyID, res.Receipt.TxHash.Hex()),
	})
	s.refreshAfterWrite(ctx, studyID)
	return res, nil
}

func (s *Session) resolveStudy(id *uint64) (uint64, error) {
	if id != nil {
		return *id, nil
	}
	if sel, ok := s.Selected(); ok {
		return sel, nil
	}
	return 0, ErrNoStudySelected
}

func submitFailureTitle(err error) string {
	var (
		invalid  *submission.InvalidValueError
		enc      *submission.EncryptionFailedError
		rejected *submission.SubmissionRejectedError
	)
	switch {
	case errors.As(err, &invalid):
		return "Invalid value"
	case errors.As(err, &enc):
		return "Encryption failed"
	case errors.As(err, &rejected):
		return "Submission rejected"
	default:
		return "Submission failed"
	}
}

func (s *Session) notifySubmitFailure(ctx context.Context, studyID uint64, title string, err error) {
	s.notify(ctx, notify.Notice{
		Level:   notify.LevelError,
		Action:  notify.ActionSubmit,
		Title:   title,
		Message: fmt.Sprintf("study %d: %v", studyID, err),
	})
}

// refreshAfterWrite reloads the list and the study's stats. Failures are
// logged by the cache.
func (s *Session) refreshAfterWrite(ctx context.Context, studyID uint64) {
	if _, err := s.opts.Cache.RefreshAll(ctx); err != nil {
		s.logger.Debug("post-write refresh failed", "error", err)
	}
	s.opts.Cache.RefreshStats(ctx, studyID)
}

// CreateStudy registers a new study and returns its id.
func (s *Session) CreateStudy(ctx context.Context, name, description string) (uint64, error) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	switch {
	case name == "":
		return 0, fmt.Errorf("%w: name is required", ErrInvalidStudy)
	case description == "":
		return 0, fmt.Errorf("%w: description is required", ErrInvalidStudy)
	}
	if s.opts.Creator == nil {
		return 0, errors.New("study creation not configured")
	}

	id, receipt, err := s.opts.Creator.CreateStudy(ctx, name, description)
	if err != nil {
		s.logger.Error("study creation failed", "name", name, "error", err)
		s.journal(ctx, store.KindCreateStudy, 0, store.StatusRejected, receipt, err.Error())
		s.notify(ctx, notify.Notice{Level: notify.LevelError, Action: notify.ActionCreateStudy, Title: "Study creation failed", Message: err.Error()})
		return 0, err
	}

	s.journal(ctx, store.KindCreateStudy, id, store.StatusAccepted, receipt, "")
	s.logger.Info("study created", "study_id", id, "name", name)
	s.notify(ctx, notify.Notice{
		Level:   notify.LevelSuccess,
		Action:  notify.ActionCreateStudy,
		Title:   "Study created",
		Message: fmt.Sprintf("%q is study %d", name, id),
	})

	if _, err := s.opts.Cache.RefreshAll(ctx); err != nil {
		s.logger.Debug("post-create refresh failed", "error", err)
	}
	return id, nil
}

func (s *Session) journal(ctx context.Context, kind store.Kind, studyID uint64, status store.Status, receipt *ledger.Receipt, reason string) {
	if s.opts.Journal == nil {
		return
	}
	r := &store.Receipt{
		ID:        uuid.NewString(),
		Kind:      kind,
		StudyID:   studyID,
		Submitter: s.opts.Submitter.Hex(),
		Status:    status,
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}
	if receipt != nil {
		r.TxHash = receipt.TxHash.Hex()
	}
	if err := s.opts.Journal.SaveReceipt(context.WithoutCancel(ctx), r); err != nil {
		s.logger.Warn("failed to journal receipt", "kind", kind, "error", err)
	}
}

// Receipts lists journaled outcomes, newest first.
func (s *Session) Receipts(ctx context.Context, filter store.ReceiptFilter) ([]*store.Receipt, error) {
	if s.opts.Journal == nil {
		return nil, ErrNoJournal
	}
	return s.opts.Journal.ListReceipts(ctx, filter)
}

// ReceiptSummary counts journaled outcomes, optionally for one study.
func (s *Session) ReceiptSummary(ctx context.Context, studyID *uint64) (*store.ReceiptSummary, error) {
	if s.opts.Journal == nil {
		return nil, ErrNoJournal
	}
	return s.opts.Journal.Summary(ctx, studyID)
}

func (s *Session) notify(ctx context.Context, n notify.Notice) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed", "title", n.Title, "error", err)
	}
}

// Close stops background work. It does not close the shared collaborators.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if s.opts.Poller != nil {
		s.opts.Poller.Stop()
	}
	if s.opts.Dedupe != nil {
		s.opts.Dedupe.Close()
	}
	s.wg.Wait()
}
