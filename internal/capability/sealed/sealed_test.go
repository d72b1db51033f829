// ABOUTME: Tests for the sealed development capability
// ABOUTME: Round-trips values through the network key and checks handle binding

package sealed

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/2389/healthledger/internal/capability"
)

var (
	contract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	user     = common.HexToAddress("0x0000000000000000000000000000000000000abc")
)

func newCapability(t *testing.T) (capability.Capability, *[32]byte, *[32]byte) {
	t.Helper()
	pub, priv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	p := New()
	ok, err := p.InitSDK(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	c, err := p.CreateInstance(context.Background(), capability.NetworkConfig{ChainID: 31337, PublicKey: pub[:]})
	require.NoError(t, err)
	return c, pub, priv
}

func TestEncrypt_RoundTrip(t *testing.T) {
	c, pub, priv := newCapability(t)

	b := c.CreateEncryptedInput(contract, user)
	b.Add32(3660)
	out, err := b.Encrypt(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Handles, 1)

	chainID, cts, err := ParseProof(out.InputProof)
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), chainID)
	require.Len(t, cts, 1)

	v, err := Open(cts[0], pub, priv)
	require.NoError(t, err)
	assert.Equal(t, uint32(3660), v)

	assert.Equal(t, Handle(contract, user, cts[0]), out.Handles[0])
}

func TestEncrypt_MultipleValues(t *testing.T) {
	c, pub, priv := newCapability(t)

	b := c.CreateEncryptedInput(contract, user)
	for _, v := range []uint32{0, 1, 4294967295} {
		b.Add32(v)
	}
	out, err := b.Encrypt(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Handles, 3)

	_, cts, err := ParseProof(out.InputProof)
	require.NoError(t, err)
	require.Len(t, cts, 3)

	last, err := Open(cts[2], pub, priv)
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), last)
}

func TestEncrypt_Empty(t *testing.T) {
	c, _, _ := newCapability(t)

	_, err := c.CreateEncryptedInput(contract, user).Encrypt(context.Background())
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEncrypt_CancelledContext(t *testing.T) {
	c, _, _ := newCapability(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := c.CreateEncryptedInput(contract, user)
	b.Add32(1)
	_, err := b.Encrypt(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandle_BindsContractAndUser(t *testing.T) {
	ct := []byte("ciphertext")
	other := common.HexToAddress("0x0000000000000000000000000000000000000def")

	assert.NotEqual(t, Handle(contract, user, ct), Handle(contract, other, ct))
	assert.NotEqual(t, Handle(contract, user, ct), Handle(other, user, ct))
	assert.Equal(t, Handle(contract, user, ct), Handle(contract, user, ct))
}

func TestCreateInstance_BadKey(t *testing.T) {
	_, err := New().CreateInstance(context.Background(), capability.NetworkConfig{PublicKey: []byte{1, 2}})
	assert.ErrorIs(t, err, ErrBadNetworkKey)
}

func TestParseProof_Malformed(t *testing.T) {
	for name, proof := range map[string][]byte{
		"empty":         nil,
		"wrong version": append([]byte{9}, make([]byte, 8)...),
		"short length":  append(append([]byte{ProofVersion}, make([]byte, 8)...), 0x00),
		"truncated":     append(append([]byte{ProofVersion}, make([]byte, 8)...), 0x00, 0x05, 0x01),
	} {
		_, _, err := ParseProof(proof)
		assert.ErrorIs(t, err, ErrBadProof, name)
	}
}
