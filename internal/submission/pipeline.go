// ABOUTME: Encrypts a quantized reading and writes it to the study registry
// ABOUTME: Records each attempt's outcome, never its value, to the receipt journal

package submission

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/deadline"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/store"
)

// Registry is the write side of the ledger client.
type Registry interface {
	SubmitData(ctx context.Context, sub *ledger.Submission) (*ledger.Receipt, error)
}

// Journal records attempt outcomes. store.Store satisfies it.
type Journal interface {
	SaveReceipt(ctx context.Context, r *store.Receipt) error
}

// Options configures a Pipeline.
type Options struct {
	Contract       common.Address
	EncryptTimeout time.Duration // zero disables the race
	Journal        Journal       // optional
	Logger         *slog.Logger
}

// Result describes an accepted submission.
type Result struct {
	ReceiptID string
	StudyID   uint64
	Scaled    uint32
	Handle    common.Hash
	Receipt   *ledger.Receipt
}

// Pipeline performs submissions. Build and encrypt are serialized because
// builders are not reentrant; registry writes run concurrently.
type Pipeline struct {
	registry Registry
	opts     Options
	logger   *slog.Logger
	now      func() time.Time

	encryptMu sync.Mutex
}

// NewPipeline creates a pipeline writing through registry.
func NewPipeline(registry Registry, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		registry: registry,
		opts:     opts,
		logger:   logger.With("component", "submission"),
		now:      time.Now,
	}
}

// Submit quantizes raw, encrypts it with c and writes it to studyID.
func (p *Pipeline) Submit(ctx context.Context, studyID uint64, raw string, c capability.Capability, submitter common.Address) (*Result, error) {
	scaled, err := Quantize(raw)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, capability.ErrNotReady
	}

	enc, err := p.encrypt(ctx, c, submitter, scaled)
	if err != nil {
		p.logger.Error("encryption failed", "study_id", studyID, "error", err)
		p.record(ctx, studyID, submitter, store.StatusFailed, nil, err.Error())
		return nil, err
	}

	sub := &ledger.Submission{
		StudyID:     studyID,
		Handle:      enc.Handles[0],
		Attestation: enc.InputProof,
		MinValue:    uint64(scaled),
		MaxValue:    uint64(scaled),
	}

	receipt, err := p.registry.SubmitData(ctx, sub)
	if err != nil {
		rejected := &SubmissionRejectedError{Reason: rejectReason(err), Receipt: receipt, Err: err}
		p.logger.Error("submission rejected", "study_id", studyID, "reason", rejected.Reason)
		p.record(ctx, studyID, submitter, store.StatusRejected, receipt, rejected.Reason)
		return nil, rejected
	}

	id := p.record(ctx, studyID, submitter, store.StatusAccepted, receipt, "")
	p.logger.Info("submission accepted",
		"study_id", studyID,
		"tx_hash", receipt.TxHash.Hex(),
		"block", receipt.BlockNumber,
	)

	return &Result{
		ReceiptID: id,
		StudyID:   studyID,
		Scaled:    scaled,
		Handle:    sub.Handle,
		Receipt:   receipt,
	}, nil
}

func (p *Pipeline) encrypt(ctx context.Context, c capability.Capability, submitter common.Address, scaled uint32) (*capability.EncryptedInput, error) {
	p.encryptMu.Lock()
	defer p.encryptMu.Unlock()

	builder := c.CreateEncryptedInput(p.opts.Contract, submitter)
	builder.Add32(scaled)

	enc, err := deadline.Race(ctx, "encrypt", p.opts.EncryptTimeout, builder.Encrypt)
	if err != nil {
		return nil, &EncryptionFailedError{Err: err}
	}
	if enc == nil || len(enc.Handles) == 0 {
		return nil, &EncryptionFailedError{Err: ErrNoHandles}
	}
	return enc, nil
}

// record journals an attempt and returns the receipt id. Journal failures
// are logged; they never change the submission outcome.
func (p *Pipeline) record(ctx context.Context, studyID uint64, submitter common.Address, status store.Status, receipt *ledger.Receipt, reason string) string {
	if p.opts.Journal == nil {
		return ""
	}

	r := &store.Receipt{
		ID:        uuid.NewString(),
		Kind:      store.KindSubmit,
		StudyID:   studyID,
		Submitter: submitter.Hex(),
		Status:    status,
		Reason:    reason,
		CreatedAt: p.now().UTC(),
	}
	if receipt != nil {
		r.TxHash = receipt.TxHash.Hex()
	}

	if err := p.opts.Journal.SaveReceipt(context.WithoutCancel(ctx), r); err != nil {
		p.logger.Warn("failed to journal receipt", "study_id", studyID, "status", status, "error", err)
		return ""
	}
	return r.ID
}

func rejectReason(err error) string {
	var revert *ledger.RevertError
	if errors.As(err, &revert) && revert.Reason != "" {
		return revert.Reason
	}
	return err.Error()
}
