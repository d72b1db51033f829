// ABOUTME: End-to-end tests for the registry client over an in-process gRPC server
// ABOUTME: Covers reads, writes, reverts, status mapping and bearer auth

package ledger_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/2389/healthledger/internal/ledger"
	"github.com/2389/healthledger/internal/ledger/ledgertest"
)

var creator = common.HexToAddress("0x00000000000000000000000000000000000000ab")

func TestClient_ReadStudies(t *testing.T) {
	srv := ledgertest.New()
	created := time.Unix(1_700_000_000, 0).UTC()
	srv.AddStudy(ledger.Study{Name: "Body temperature", Description: "daily", Creator: creator, CreatedAt: created, IsActive: true, DataCount: 4})
	srv.AddStudy(ledger.Study{Name: "Heart rate", Description: "bpm", Creator: creator, CreatedAt: created.Add(time.Hour)})
	client := srv.Start(t)
	ctx := context.Background()

	count, err := client.StudyCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	st, err := client.GetStudy(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, &ledger.Study{
		ID:          0,
		Name:        "Body temperature",
		Description: "daily",
		Creator:     creator,
		CreatedAt:   created,
		IsActive:    true,
		DataCount:   4,
	}, st)

	st, err = client.GetStudy(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.ID)
	assert.False(t, st.IsActive)
}

func TestClient_GetStudy_NotFound(t *testing.T) {
	client := ledgertest.New().Start(t)

	_, err := client.GetStudy(context.Background(), 9)
	assert.ErrorIs(t, err, ledger.ErrStudyNotFound)
}

func TestClient_GetStudyStats(t *testing.T) {
	srv := ledgertest.New()
	id := srv.AddStudy(ledger.Study{Name: "t", Description: "d", IsActive: true})
	sum := common.HexToHash("0x1234")
	srv.SetStats(id, ledger.StudyStats{
		TotalRecords: 2,
		EncryptedSum: sum,
		MinValue:     3660,
		MaxValue:     4000,
		LastUpdated:  time.Unix(1_700_000_500, 0).UTC(),
	})
	client := srv.Start(t)

	stats, err := client.GetStudyStats(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.TotalRecords)
	assert.Equal(t, sum, stats.EncryptedSum)
	assert.Equal(t, uint64(3660), stats.MinValue)
	assert.Equal(t, uint64(4000), stats.MaxValue)
	assert.Equal(t, int64(1_700_000_500), stats.LastUpdated.Unix())
}

func TestClient_SubmitData_Confirmed(t *testing.T) {
	srv := ledgertest.New()
	id := srv.AddStudy(ledger.Study{Name: "t", Description: "d", IsActive: true})
	client := srv.Start(t)

	sub := &ledger.Submission{
		StudyID:     id,
		Handle:      common.HexToHash("0xaa"),
		Attestation: []byte("proof"),
		MinValue:    3660,
		MaxValue:    3660,
	}
	receipt, err := client.SubmitData(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, receipt.Status)

	ev, ok := receipt.FindEvent(ledger.EventDataSubmitted)
	require.True(t, ok)
	assert.Equal(t, "0", ev.Args["studyId"])

	got := srv.Submissions()
	require.Len(t, got, 1)
	assert.Equal(t, *sub, got[0])
}

func TestClient_SubmitData_RevertedReceipt(t *testing.T) {
	srv := ledgertest.New()
	id := srv.AddStudy(ledger.Study{Name: "t", Description: "d", IsActive: false})
	client := srv.Start(t)

	receipt, err := client.SubmitData(context.Background(), &ledger.Submission{StudyID: id})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrReverted)
	require.NotNil(t, receipt)
	assert.Equal(t, ledger.StatusReverted, receipt.Status)

	var revert *ledger.RevertError
	require.True(t, errors.As(err, &revert))
	assert.Equal(t, "study is not active", revert.Reason)
}

func TestClient_SubmitData_RevertedStatus(t *testing.T) {
	srv := ledgertest.New()
	id := srv.AddStudy(ledger.Study{Name: "t", Description: "d", IsActive: true})
	srv.RejectSubmissions("attestation rejected")
	client := srv.Start(t)

	_, err := client.SubmitData(context.Background(), &ledger.Submission{StudyID: id})
	var revert *ledger.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, "attestation rejected", revert.Reason)
	assert.Empty(t, srv.Submissions())
}

func TestClient_TransportErrorsWrapped(t *testing.T) {
	srv := ledgertest.New()
	srv.FailCounter(errors.New("node syncing"))
	client := srv.Start(t)

	_, err := client.StudyCounter(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ledger.MethodStudyCounter)
	assert.Contains(t, err.Error(), "node syncing")
}

func TestClient_CreateStudy_UsesTokenSubjectAsCreator(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	srv := ledgertest.New().WithSecret(secret)
	tokens := ledger.NewTokenSource(secret, creator.Hex(), time.Minute)
	client := srv.Start(t, grpc.WithPerRPCCredentials(tokens))
	ctx := context.Background()

	id, receipt, err := client.CreateStudy(ctx, "Sleep", "hours per night")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)
	assert.Equal(t, ledger.StatusConfirmed, receipt.Status)

	st, err := client.GetStudy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, creator, st.Creator)
	assert.True(t, st.IsActive)

	headers := srv.AuthHeaders()
	require.NotEmpty(t, headers)
	for _, h := range headers {
		assert.True(t, strings.HasPrefix(h, "Bearer "), h)
	}
}
