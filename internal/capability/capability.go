// ABOUTME: Encryption capability interfaces consumed by the submission pipeline
// ABOUTME: Provider, Capability, InputBuilder and the errors they surface

package capability

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotReady is returned when an operation needs a capability before
	// initialization has succeeded.
	ErrNotReady = errors.New("encryption capability not ready")

	// ErrSDKNotReady is the cause when InitSDK reports false.
	ErrSDKNotReady = errors.New("sdk reported not ready")

	// ErrNilInstance is the cause when CreateInstance returns no capability.
	ErrNilInstance = errors.New("provider returned no instance")

	// ErrReset is returned to callers waiting on an attempt that Reset discarded.
	ErrReset = errors.New("capability reset during initialization")
)

// NetworkConfig identifies the network a capability encrypts for.
type NetworkConfig struct {
	ChainID   uint64
	PublicKey []byte
}

// Provider creates capabilities.
type Provider interface {
	InitSDK(ctx context.Context) (bool, error)
	CreateInstance(ctx context.Context, network NetworkConfig) (Capability, error)
}

// Capability is a ready encryption handle. It is read-only after creation
// and safe to share.
type Capability interface {
	CreateEncryptedInput(contract, user common.Address) InputBuilder
}

// InputBuilder accumulates values for one encrypted input. Builders are not
// safe for concurrent use.
type InputBuilder interface {
	Add32(v uint32)
	Encrypt(ctx context.Context) (*EncryptedInput, error)
}

// EncryptedInput is the result of InputBuilder.Encrypt: one handle per added
// value and a proof covering all of them.
type EncryptedInput struct {
	Handles    []common.Hash
	InputProof []byte
}

// Stage names an initialization step.
type Stage string

const (
	StageSDK      Stage = "init sdk"
	StageInstance Stage = "create instance"
)

// InitError reports which initialization stage failed and why.
type InitError struct {
	Stage Stage
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("capability init failed at %s: %v", e.Stage, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}
