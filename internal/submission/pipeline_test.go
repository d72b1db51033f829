// ABOUTME: Tests for the submission pipeline with fake capability and registry
// ABOUTME: Covers the happy path, each failure stage, journaling and serialization

package submission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/healthledger/internal/capability"
	"github.com/2389/healthledger/internal/deadline"
	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/ledger/ledgertest"
	"github.com/2389/healthledger/internal/store"
)

var (
	testContract  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSubmitter = common.HexToAddress("0x0000000000000000000000000000000000000abc")
	testHandle    = common.HexToHash("0x0101010101010101010101010101010101010101010101010101010101010101")
	testProof     = []byte("attestation")
)

// fakeCapability hands out scripted builders and records what they saw.
type fakeCapability struct {
	mu        sync.Mutex
	scopes    [][2]common.Address
	added     []uint32
	encryptFn func(ctx context.Context) (*capability.EncryptedInput, error)

	encryptCalls atomic.Int32
	active       atomic.Int32
	maxActive    atomic.Int32
}

func (f *fakeCapability) CreateEncryptedInput(contract, user common.Address) capability.InputBuilder {
	f.mu.Lock()
	f.scopes = append(f.scopes, [2]common.Address{contract, user})
	f.mu.Unlock()
	return &fakeBuilder{cap: f}
}

func (f *fakeCapability) values() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.added...)
}

type fakeBuilder struct {
	cap *fakeCapability
}

func (b *fakeBuilder) Add32(v uint32) {
	b.cap.mu.Lock()
	b.cap.added = append(b.cap.added, v)
	b.cap.mu.Unlock()
}

func (b *fakeBuilder) Encrypt(ctx context.Context) (*capability.EncryptedInput, error) {
	b.cap.encryptCalls.Add(1)
	n := b.cap.active.Add(1)
	defer b.cap.active.Add(-1)
	for {
		peak := b.cap.maxActive.Load()
		if n <= peak || b.cap.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	if b.cap.encryptFn != nil {
		return b.cap.encryptFn(ctx)
	}
	return &capability.EncryptedInput{Handles: []common.Hash{testHandle}, InputProof: testProof}, nil
}

// fakeRegistry records submissions and returns a scripted outcome.
type fakeRegistry struct {
	mu      sync.Mutex
	subs    []ledger.Submission
	receipt *ledger.Receipt
	err     error
}

func (f *fakeRegistry) SubmitData(ctx context.Context, sub *ledger.Submission) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, *sub)
	if f.err != nil {
		return f.receipt, f.err
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &ledger.Receipt{TxHash: common.HexToHash("0xfeed"), BlockNumber: 7, Status: ledger.StatusConfirmed}, nil
}

func (f *fakeRegistry) submissions() []ledger.Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Submission(nil), f.subs...)
}

func newTestPipeline(reg Registry, journal Journal) *Pipeline {
	return NewPipeline(reg, Options{
		Contract:       testContract,
		EncryptTimeout: time.Second,
		Journal:        journal,
	})
}

func TestSubmit_EndToEnd(t *testing.T) {
	reg := &fakeRegistry{}
	capab := &fakeCapability{}
	journal := store.NewMockStore()
	p := newTestPipeline(reg, journal)

	res, err := p.Submit(context.Background(), 3, "36.6", capab, testSubmitter)
	require.NoError(t, err)

	assert.Equal(t, []uint32{3660}, capab.values(), "encryption should see the scaled integer")
	assert.Equal(t, [][2]common.Address{{testContract, testSubmitter}}, capab.scopes)

	subs := reg.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, ledger.Submission{
		StudyID:     3,
		Handle:      testHandle,
		Attestation: testProof,
		MinValue:    3660,
		MaxValue:    3660,
	}, subs[0])

	assert.Equal(t, uint64(3), res.StudyID)
	assert.Equal(t, uint32(3660), res.Scaled)
	assert.Equal(t, testHandle, res.Handle)
	require.NotEmpty(t, res.ReceiptID)

	saved, err := journal.GetReceipt(context.Background(), res.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAccepted, saved.Status)
	assert.Equal(t, store.KindSubmit, saved.Kind)
	assert.Equal(t, uint64(3), saved.StudyID)
	assert.Equal(t, testSubmitter.Hex(), saved.Submitter)
	assert.Equal(t, common.HexToHash("0xfeed").Hex(), saved.TxHash)
}

func TestSubmit_MinEqualsMax(t *testing.T) {
	reg := &fakeRegistry{}
	p := newTestPipeline(reg, nil)

	for _, raw := range []string{"0", "0.01", "36.6", "98.65", "42949672.95"} {
		_, err := p.Submit(context.Background(), 1, raw, &fakeCapability{}, testSubmitter)
		require.NoError(t, err, raw)
	}

	for _, sub := range reg.submissions() {
		assert.Equal(t, sub.MinValue, sub.MaxValue)
	}
}

func TestSubmit_NegativeSkipsEncryption(t *testing.T) {
	reg := &fakeRegistry{}
	capab := &fakeCapability{}
	journal := store.NewMockStore()
	p := newTestPipeline(reg, journal)

	_, err := p.Submit(context.Background(), 3, "-5", capab, testSubmitter)

	var invalid *InvalidValueError
	require.ErrorAs(t, err, &invalid)
	assert.Zero(t, capab.encryptCalls.Load(), "encryption must not run for invalid input")
	assert.Empty(t, capab.scopes)
	assert.Empty(t, reg.submissions())

	list, err := journal.ListReceipts(context.Background(), store.ReceiptFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "invalid input is not an attempt")
}

func TestSubmit_NilCapability(t *testing.T) {
	reg := &fakeRegistry{}
	p := newTestPipeline(reg, nil)

	_, err := p.Submit(context.Background(), 0, "1", nil, testSubmitter)
	assert.ErrorIs(t, err, capability.ErrNotReady)
	assert.Empty(t, reg.submissions())
}

func TestSubmit_EncryptionError(t *testing.T) {
	boom := errors.New("proof generation failed")
	reg := &fakeRegistry{}
	journal := store.NewMockStore()
	p := newTestPipeline(reg, journal)
	capab := &fakeCapability{encryptFn: func(context.Context) (*capability.EncryptedInput, error) {
		return nil, boom
	}}

	_, err := p.Submit(context.Background(), 2, "1.5", capab, testSubmitter)

	var encErr *EncryptionFailedError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, reg.submissions(), "nothing is written when encryption fails")

	list, err := journal.ListReceipts(context.Background(), store.ReceiptFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, store.StatusFailed, list[0].Status)
	assert.Contains(t, list[0].Reason, "proof generation failed")
	assert.Empty(t, list[0].TxHash)
}

func TestSubmit_EncryptionTimeout(t *testing.T) {
	reg := &fakeRegistry{}
	p := NewPipeline(reg, Options{Contract: testContract, EncryptTimeout: 20 * time.Millisecond})
	capab := &fakeCapability{encryptFn: func(ctx context.Context) (*capability.EncryptedInput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	_, err := p.Submit(context.Background(), 2, "1.5", capab, testSubmitter)

	var encErr *EncryptionFailedError
	require.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, deadline.ErrTimeout)
	assert.Empty(t, reg.submissions())
}

func TestSubmit_NoHandles(t *testing.T) {
	reg := &fakeRegistry{}
	p := newTestPipeline(reg, nil)
	capab := &fakeCapability{encryptFn: func(context.Context) (*capability.EncryptedInput, error) {
		return &capability.EncryptedInput{InputProof: testProof}, nil
	}}

	_, err := p.Submit(context.Background(), 2, "1.5", capab, testSubmitter)
	assert.ErrorIs(t, err, ErrNoHandles)
	assert.Empty(t, reg.submissions())
}

func TestSubmit_Reverted(t *testing.T) {
	receipt := &ledger.Receipt{TxHash: common.HexToHash("0xbad"), Status: ledger.StatusReverted, RevertReason: "study is not active"}
	reg := &fakeRegistry{receipt: receipt, err: &ledger.RevertError{Reason: "study is not active"}}
	journal := store.NewMockStore()
	p := newTestPipeline(reg, journal)

	_, err := p.Submit(context.Background(), 4, "2", &fakeCapability{}, testSubmitter)

	var rejected *SubmissionRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "study is not active", rejected.Reason)
	assert.Same(t, receipt, rejected.Receipt)
	assert.ErrorIs(t, err, ledger.ErrReverted)

	list, err := journal.ListReceipts(context.Background(), store.ReceiptFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, store.StatusRejected, list[0].Status)
	assert.Equal(t, "study is not active", list[0].Reason)
	assert.Equal(t, receipt.TxHash.Hex(), list[0].TxHash)
}

func TestSubmit_TransportFailure(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("connection refused")}
	p := newTestPipeline(reg, nil)

	_, err := p.Submit(context.Background(), 4, "2", &fakeCapability{}, testSubmitter)

	var rejected *SubmissionRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "connection refused", rejected.Reason)
	assert.Nil(t, rejected.Receipt)
	assert.Len(t, reg.submissions(), 1, "no automatic retry")
}

func TestSubmit_JournalFailureDoesNotFailSubmission(t *testing.T) {
	journal := store.NewMockStore()
	journal.FailSaves(errors.New("disk full"))
	p := newTestPipeline(&fakeRegistry{}, journal)

	res, err := p.Submit(context.Background(), 1, "1", &fakeCapability{}, testSubmitter)
	require.NoError(t, err)
	assert.Empty(t, res.ReceiptID)
}

func TestSubmit_EncryptionIsSerialized(t *testing.T) {
	reg := &fakeRegistry{}
	p := newTestPipeline(reg, nil)
	capab := &fakeCapability{encryptFn: func(context.Context) (*capability.EncryptedInput, error) {
		time.Sleep(5 * time.Millisecond)
		return &capability.EncryptedInput{Handles: []common.Hash{testHandle}, InputProof: testProof}, nil
	}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Submit(context.Background(), 1, "1", capab, testSubmitter)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), capab.maxActive.Load(), "builders must not run concurrently")
	assert.Len(t, reg.submissions(), 8)
}

func TestSubmit_OverGRPC(t *testing.T) {
	srv := ledgertest.New()
	for i := 0; i < 4; i++ {
		srv.AddStudy(ledger.Study{Name: "study", Description: "d", IsActive: true})
	}
	client := srv.Start(t)
	p := NewPipeline(client, Options{Contract: testContract, EncryptTimeout: time.Second})

	res, err := p.Submit(context.Background(), 3, "36.6", &fakeCapability{}, testSubmitter)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, res.Receipt.Status)

	got := srv.Submissions()
	require.Len(t, got, 1)
	assert.Equal(t, ledger.Submission{StudyID: 3, Handle: testHandle, Attestation: testProof, MinValue: 3660, MaxValue: 3660}, got[0])
}
