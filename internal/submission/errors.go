// ABOUTME: Typed errors for each submission stage
// ABOUTME: Callers distinguish them with errors.As

package submission

import (
	"errors"
	"fmt"

	"github.com/2389/healthledger/internal/ledger"
)

// ErrNoHandles is the cause when encryption returns no ciphertext handles.
var ErrNoHandles = errors.New("encryption produced no handles")

// InvalidValueError rejects input before any encryption or network work.
type InvalidValueError struct {
	Input  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q: %s", e.Input, e.Reason)
}

// EncryptionFailedError means nothing was sent to the registry.
type EncryptionFailedError struct {
	Err error
}

func (e *EncryptionFailedError) Error() string {
	return fmt.Sprintf("encryption failed: %v", e.Err)
}

func (e *EncryptionFailedError) Unwrap() error {
	return e.Err
}

// SubmissionRejectedError means the registry refused or reverted the write,
// or the write could not be delivered.
type SubmissionRejectedError struct {
	Reason  string
	Receipt *ledger.Receipt // set when the registry produced a reverted receipt
	Err     error
}

func (e *SubmissionRejectedError) Error() string {
	return "submission rejected: " + e.Reason
}

func (e *SubmissionRejectedError) Unwrap() error {
	return e.Err
}
