// ABOUTME: NaCl sealed-box capability provider for development networks
// ABOUTME: Handles are blake3 digests binding ciphertexts to contract and user

package sealed

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/nacl/box"

	"github.com/2389/healthledger/internal/capability"
)

// ProofVersion is the first byte of every input proof.
const ProofVersion byte = 1

var (
	ErrBadNetworkKey = errors.New("network public key must be 32 bytes")
	ErrEmptyInput    = errors.New("no values added to input")
	ErrBadProof      = errors.New("malformed input proof")
)

// Provider implements capability.Provider.
type Provider struct {
	rand io.Reader
}

// New returns a provider drawing randomness from crypto/rand.
func New() *Provider {
	return &Provider{rand: rand.Reader}
}

// InitSDK seals and opens a probe value with a throwaway key.
func (p *Provider) InitSDK(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	pub, priv, err := box.GenerateKey(p.rand)
	if err != nil {
		return false, fmt.Errorf("generating probe key: %w", err)
	}
	probe := []byte("healthledger")
	sealed, err := box.SealAnonymous(nil, probe, pub, p.rand)
	if err != nil {
		return false, fmt.Errorf("sealing probe: %w", err)
	}
	opened, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	return ok && bytes.Equal(opened, probe), nil
}

// CreateInstance binds a capability to the network key.
func (p *Provider) CreateInstance(ctx context.Context, network capability.NetworkConfig) (capability.Capability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(network.PublicKey) != 32 {
		return nil, fmt.Errorf("%w, got %d", ErrBadNetworkKey, len(network.PublicKey))
	}

	c := &Capability{chainID: network.ChainID, rand: p.rand}
	copy(c.networkKey[:], network.PublicKey)
	return c, nil
}

// Capability seals values to one network key.
type Capability struct {
	chainID    uint64
	networkKey [32]byte
	rand       io.Reader
}

// CreateEncryptedInput implements capability.Capability.
func (c *Capability) CreateEncryptedInput(contract, user common.Address) capability.InputBuilder {
	return &Builder{cap: c, contract: contract, user: user}
}

// Builder collects values for one input.
type Builder struct {
	cap      *Capability
	contract common.Address
	user     common.Address
	values   []uint32
}

// Add32 appends a value.
func (b *Builder) Add32(v uint32) {
	b.values = append(b.values, v)
}

// Encrypt seals every added value.
func (b *Builder) Encrypt(ctx context.Context) (*capability.EncryptedInput, error) {
	if len(b.values) == 0 {
		return nil, ErrEmptyInput
	}

	var proof bytes.Buffer
	proof.WriteByte(ProofVersion)
	_ = binary.Write(&proof, binary.BigEndian, b.cap.chainID)

	out := &capability.EncryptedInput{Handles: make([]common.Hash, 0, len(b.values))}
	for _, v := range b.values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var plain [4]byte
		binary.LittleEndian.PutUint32(plain[:], v)
		ct, err := box.SealAnonymous(nil, plain[:], &b.cap.networkKey, b.cap.rand)
		if err != nil {
			return nil, fmt.Errorf("sealing value: %w", err)
		}

		out.Handles = append(out.Handles, Handle(b.contract, b.user, ct))
		_ = binary.Write(&proof, binary.BigEndian, uint16(len(ct)))
		proof.Write(ct)
	}

	out.InputProof = proof.Bytes()
	return out, nil
}

// Handle derives the handle for a ciphertext submitted by user to contract.
func Handle(contract, user common.Address, ciphertext []byte) common.Hash {
	h := blake3.New()
	_, _ = h.Write(contract.Bytes())
	_, _ = h.Write(user.Bytes())
	_, _ = h.Write(ciphertext)
	return common.BytesToHash(h.Sum(nil))
}

// ParseProof splits an input proof into its chain id and ciphertexts.
func ParseProof(proof []byte) (uint64, [][]byte, error) {
	if len(proof) < 9 || proof[0] != ProofVersion {
		return 0, nil, ErrBadProof
	}
	chainID := binary.BigEndian.Uint64(proof[1:9])

	var cts [][]byte
	rest := proof[9:]
	for len(rest) > 0 {
		if len(rest) < 2 {
			return 0, nil, ErrBadProof
		}
		n := int(binary.BigEndian.Uint16(rest))
		rest = rest[2:]
		if len(rest) < n {
			return 0, nil, ErrBadProof
		}
		cts = append(cts, rest[:n])
		rest = rest[n:]
	}
	return chainID, cts, nil
}

// Open decrypts one sealed value with the network key pair.
func Open(ciphertext []byte, pub, priv *[32]byte) (uint32, error) {
	plain, ok := box.OpenAnonymous(nil, ciphertext, pub, priv)
	if !ok || len(plain) != 4 {
		return 0, fmt.Errorf("opening sealed value: %w", ErrBadProof)
	}
	return binary.LittleEndian.Uint32(plain), nil
}
