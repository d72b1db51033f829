// ABOUTME: Refresh failure types for the study cache
// ABOUTME: Partial failures are reported; total failures are returned

package studycache

import (
	"fmt"
	"sort"
)

// FetchPartialFailure lists studies that could not be loaded during a
// refresh that otherwise succeeded.
type FetchPartialFailure struct {
	Count  uint64
	Failed map[uint64]error
}

func (e *FetchPartialFailure) Error() string {
	return fmt.Sprintf("loaded %d of %d studies; failed ids %v", e.Count-uint64(len(e.Failed)), e.Count, e.IDs())
}

// IDs returns the failed study ids in ascending order.
func (e *FetchPartialFailure) IDs() []uint64 {
	ids := make([]uint64, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FetchTotalFailure means nothing was refreshed; the previous list is kept.
type FetchTotalFailure struct {
	Err error
}

func (e *FetchTotalFailure) Error() string {
	return fmt.Sprintf("study refresh failed: %v", e.Err)
}

func (e *FetchTotalFailure) Unwrap() error {
	return e.Err
}
