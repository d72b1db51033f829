// ABOUTME: Sentinel errors returned by Session operations
// ABOUTME: Transport code maps these to user-facing statuses

package session

import "errors"

var (
	// ErrNoStudySelected is returned by Submit when no study is given or selected.
	ErrNoStudySelected = errors.New("no study selected")

	// ErrStudyInactive is returned when the cache already shows the study as closed.
	ErrStudyInactive = errors.New("study is not active")

	// ErrUnknownStudy is returned when a study id is not in the registry.
	ErrUnknownStudy = errors.New("unknown study")

	// ErrDuplicateSubmission is returned when an idempotency key is still held.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrInvalidStudy is returned by CreateStudy for a blank name or description.
	ErrInvalidStudy = errors.New("invalid study")

	// ErrNoJournal is returned by receipt queries when no journal is configured.
	ErrNoJournal = errors.New("receipt journal not configured")
)
