// ABOUTME: Tests for Struct field decoding edge cases
// ABOUTME: Covers number/string integers, hash lengths and malformed receipts

package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestGetUint_AcceptsStringsAndExactNumbers(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"big":    structpb.NewStringValue("18446744073709551615"),
		"number": structpb.NewNumberValue(3660),
	}}

	big, err := getUint(s, "big")
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), big)

	n, err := getUint(s, "number")
	require.NoError(t, err)
	assert.Equal(t, uint64(3660), n)
}

func TestGetUint_RejectsLossyValues(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"negative":   structpb.NewNumberValue(-1),
		"fraction":   structpb.NewNumberValue(1.5),
		"text":       structpb.NewStringValue("12abc"),
		"wrong_kind": structpb.NewBoolValue(true),
	}}

	for _, key := range []string{"negative", "fraction", "text", "wrong_kind", "missing"} {
		_, err := getUint(s, key)
		assert.ErrorIs(t, err, ErrMalformedResponse, key)
	}
}

func TestGetHash_RequiresThirtyTwoBytes(t *testing.T) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"short": structpb.NewStringValue("0x0102"),
		"bad":   structpb.NewStringValue("not-hex"),
	}}

	_, err := getHash(s, "short")
	assert.ErrorIs(t, err, ErrMalformedResponse)

	_, err = getHash(s, "bad")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeReceipt_UnknownStatus(t *testing.T) {
	r := encodeReceipt(&Receipt{Status: StatusConfirmed})
	r.Fields[fieldStatus] = structpb.NewStringValue("pending")

	_, err := decodeReceipt(r)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDecodeStudy_RejectsBadCreator(t *testing.T) {
	s := encodeStudy(&Study{Name: "n", Description: "d"})
	s.Fields[fieldCreator] = structpb.NewStringValue("0xnope")

	_, err := decodeStudy(0, s)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSubmissionEncoding_PreservesAttestation(t *testing.T) {
	sub := &Submission{
		StudyID:     3,
		Attestation: []byte{0xde, 0xad, 0xbe, 0xef},
		MinValue:    3660,
		MaxValue:    3660,
	}
	sub.Handle[31] = 0x01

	got, err := decodeSubmission(encodeSubmission(sub))
	require.NoError(t, err)
	assert.Equal(t, sub, got)
}
