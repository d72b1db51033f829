// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	receipts map[string]*Receipt
	order    []string
	saveErr  error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		receipts: make(map[string]*Receipt),
	}
}

// FailSaves makes every SaveReceipt return err; nil clears it.
func (m *MockStore) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// SaveReceipt stores a copy of the receipt.
func (m *MockStore) SaveReceipt(ctx context.Context, r *Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	if _, exists := m.receipts[r.ID]; exists {
		return ErrDuplicateReceipt
	}

	cp := *r
	m.receipts[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	return nil
}

// Receipts returns copies of every saved receipt in save order.
func (m *MockStore) Receipts() []*Receipt {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Receipt, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.receipts[id]
		out = append(out, &cp)
	}
	return out
}

// GetReceipt retrieves a receipt by ID.
func (m *MockStore) GetReceipt(ctx context.Context, id string) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.receipts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListReceipts returns matching receipts newest first.
func (m *MockStore) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Receipt
	for _, r := range m.receipts {
		if !matches(r, filter.StudyID, filter.Kind) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Summary counts receipts by status.
func (m *MockStore) Summary(ctx context.Context, studyID *uint64) (*ReceiptSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum ReceiptSummary
	for _, r := range m.receipts {
		if !matches(r, studyID, "") {
			continue
		}
		sum.Total++
		switch r.Status {
		case StatusAccepted:
			sum.Accepted++
		case StatusRejected:
			sum.Rejected++
		case StatusFailed:
			sum.Failed++
		}
		if sum.LastAt == nil || r.CreatedAt.After(*sum.LastAt) {
			t := r.CreatedAt
			sum.LastAt = &t
		}
	}
	return &sum, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

func matches(r *Receipt, studyID *uint64, kind Kind) bool {
	if studyID != nil && (!r.HasStudy() || r.StudyID != *studyID) {
		return false
	}
	if kind != "" && r.Kind != kind {
		return false
	}
	return true
}

var (
	_ Store = (*MockStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)
