// ABOUTME: Study registry data types and errors shared by client and server
// ABOUTME: Defines Study, StudyStats, Submission, Receipt and the revert error

package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrStudyNotFound is returned when a study id is outside 0..count-1.
var ErrStudyNotFound = errors.New("study not found")

// ErrReverted matches any *RevertError via errors.Is.
var ErrReverted = errors.New("transaction reverted")

// ErrNoCreationEvent is returned when a createStudy receipt lacks StudyCreated.
var ErrNoCreationEvent = errors.New("no StudyCreated event in receipt")

// ErrMalformedResponse is returned when a response field is missing or has the wrong shape.
var ErrMalformedResponse = errors.New("malformed registry response")

// Event names emitted by the registry.
const (
	EventStudyCreated  = "StudyCreated"
	EventDataSubmitted = "DataSubmitted"
)

// Study is one registry entry. Studies are created remotely and are
// read-only to this client.
type Study struct {
	ID          uint64
	Name        string
	Description string
	Creator     common.Address
	CreatedAt   time.Time
	IsActive    bool
	DataCount   uint64
}

// StudyStats is the raw aggregate record. MinValue and MaxValue are scaled
// by 100; EncryptedSum is an opaque ciphertext handle.
type StudyStats struct {
	TotalRecords uint64
	EncryptedSum common.Hash
	MinValue     uint64
	MaxValue     uint64
	LastUpdated  time.Time
}

// Submission is one encrypted data point bound for SubmitData.
type Submission struct {
	StudyID     uint64
	Handle      common.Hash
	Attestation []byte
	MinValue    uint64
	MaxValue    uint64
}

// ReceiptStatus is the final state of a registry write.
type ReceiptStatus string

const (
	StatusConfirmed ReceiptStatus = "confirmed"
	StatusReverted  ReceiptStatus = "reverted"
)

// Event is a log entry emitted by a registry write.
type Event struct {
	Name string
	Args map[string]string
}

// Receipt is the confirmation of a registry write.
type Receipt struct {
	TxHash       common.Hash
	BlockNumber  uint64
	Status       ReceiptStatus
	RevertReason string
	Events       []Event
}

// FindEvent returns the first event with the given name.
func (r *Receipt) FindEvent(name string) (Event, bool) {
	if r == nil {
		return Event{}, false
	}
	for _, ev := range r.Events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

// RevertError carries the registry's reason for refusing a write.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrReverted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrReverted, e.Reason)
}

// Is reports whether target is ErrReverted.
func (e *RevertError) Is(target error) bool {
	return target == ErrReverted
}
