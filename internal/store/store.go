// ABOUTME: Store interface and data types for the receipt journal
// ABOUTME: Defines Receipt, its kinds and statuses, and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateReceipt is returned when saving a receipt whose ID already exists
var ErrDuplicateReceipt = errors.New("receipt already exists")

// Kind is the registry write a receipt describes
type Kind string

const (
	KindSubmit      Kind = "submit"
	KindCreateStudy Kind = "create_study"
)

// Status is the outcome of a write attempt
type Status string

const (
	StatusAccepted Status = "accepted" // confirmed by the registry
	StatusRejected Status = "rejected" // the registry refused or reverted it
	StatusFailed   Status = "failed"   // never reached the registry
)

// Receipt records the outcome of one write attempt. It never carries the
// submitted value or its ciphertext.
type Receipt struct {
	ID        string
	Kind      Kind
	StudyID   uint64
	Submitter string
	Status    Status
	TxHash    string // empty unless the registry produced a transaction
	Reason    string // rejection or failure reason
	CreatedAt time.Time
}

// HasStudy reports whether StudyID names a real study. A create_study that
// was not accepted never received an id.
func (r *Receipt) HasStudy() bool {
	return r.Kind != KindCreateStudy || r.Status == StatusAccepted
}

// ReceiptFilter narrows ListReceipts. Zero values match everything.
type ReceiptFilter struct {
	StudyID *uint64
	Kind    Kind
	Limit   int
}

// ReceiptSummary counts receipts by status.
type ReceiptSummary struct {
	Total    int
	Accepted int
	Rejected int
	Failed   int
	LastAt   *time.Time
}

// Store is the receipt journal.
type Store interface {
	// SaveReceipt appends a receipt.
	SaveReceipt(ctx context.Context, r *Receipt) error

	// GetReceipt retrieves a receipt by ID.
	// Returns ErrNotFound if it does not exist.
	GetReceipt(ctx context.Context, id string) (*Receipt, error)

	// ListReceipts returns receipts newest first.
	ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*Receipt, error)

	// Summary counts receipts, optionally for one study.
	Summary(ctx context.Context, studyID *uint64) (*ReceiptSummary, error)

	// Close closes the store.
	Close() error
}
