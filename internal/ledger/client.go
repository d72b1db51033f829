// ABOUTME: gRPC client for the study registry
// ABOUTME: Typed read/write calls over Struct-encoded unary RPCs

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the registry.
const ServiceName = "healthledger.v1.StudyRegistry"

// Registry method names.
const (
	MethodCreateStudy   = "CreateStudy"
	MethodGetStudy      = "GetStudy"
	MethodGetStudyStats = "GetStudyStats"
	MethodStudyCounter  = "StudyCounter"
	MethodSubmitData    = "SubmitData"
)

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// Client calls the study registry over a gRPC connection.
type Client struct {
	conn    grpc.ClientConnInterface
	logger  *slog.Logger
	closers []func() error
}

// NewClient wraps an established connection. Close on the returned client
// does not close conn unless it was created by Dial.
func NewClient(conn grpc.ClientConnInterface, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:   conn,
		logger: logger.With("component", "ledger"),
	}
}

// Close releases resources acquired by Dial.
func (c *Client) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Client) call(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return nil, fromStatus(method, err)
	}
	return resp, nil
}

// StudyCounter returns the number of studies; valid ids are 0..count-1.
func (c *Client) StudyCounter(ctx context.Context) (uint64, error) {
	resp, err := c.call(ctx, MethodStudyCounter, &structpb.Struct{})
	if err != nil {
		return 0, err
	}
	count, err := getUint(resp, fieldCount)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", MethodStudyCounter, err)
	}
	return count, nil
}

// GetStudy fetches one study record.
func (c *Client) GetStudy(ctx context.Context, id uint64) (*Study, error) {
	resp, err := c.call(ctx, MethodGetStudy, studyIDRequest(id))
	if err != nil {
		return nil, err
	}
	st, err := decodeStudy(id, resp)
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", MethodGetStudy, id, err)
	}
	return st, nil
}

// GetStudyStats fetches the raw aggregate record for a study.
func (c *Client) GetStudyStats(ctx context.Context, id uint64) (*StudyStats, error) {
	resp, err := c.call(ctx, MethodGetStudyStats, studyIDRequest(id))
	if err != nil {
		return nil, err
	}
	st, err := decodeStats(resp)
	if err != nil {
		return nil, fmt.Errorf("%s %d: %w", MethodGetStudyStats, id, err)
	}
	return st, nil
}

// SubmitData writes an encrypted submission and waits for confirmation.
// A reverted write returns the receipt together with a *RevertError.
func (c *Client) SubmitData(ctx context.Context, sub *Submission) (*Receipt, error) {
	resp, err := c.call(ctx, MethodSubmitData, encodeSubmission(sub))
	if err != nil {
		return nil, err
	}
	receipt, err := decodeReceipt(resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", MethodSubmitData, err)
	}

	c.logger.Debug("submission settled",
		"study_id", sub.StudyID,
		"tx_hash", receipt.TxHash.Hex(),
		"status", receipt.Status,
	)

	if receipt.Status == StatusReverted {
		return receipt, &RevertError{Reason: receipt.RevertReason}
	}
	return receipt, nil
}

// CreateStudy registers a new study and returns the id announced by the
// StudyCreated event.
func (c *Client) CreateStudy(ctx context.Context, name, description string) (uint64, *Receipt, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldStudyName:   structpb.NewStringValue(name),
		fieldDescription: structpb.NewStringValue(description),
	}}

	resp, err := c.call(ctx, MethodCreateStudy, req)
	if err != nil {
		return 0, nil, err
	}
	receipt, err := decodeReceipt(resp)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: %w", MethodCreateStudy, err)
	}
	if receipt.Status == StatusReverted {
		return 0, receipt, &RevertError{Reason: receipt.RevertReason}
	}

	ev, ok := receipt.FindEvent(EventStudyCreated)
	if !ok {
		return 0, receipt, ErrNoCreationEvent
	}
	id, err := strconv.ParseUint(ev.Args[fieldStudyID], 10, 64)
	if err != nil {
		return 0, receipt, fmt.Errorf("%w: StudyCreated studyId %q", ErrMalformedResponse, ev.Args[fieldStudyID])
	}
	return id, receipt, nil
}

// fromStatus maps registry status codes back to package errors.
func fromStatus(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}

	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", method, ErrStudyNotFound)
	case codes.FailedPrecondition, codes.Aborted:
		return &RevertError{Reason: st.Message()}
	default:
		return fmt.Errorf("%s: %w", method, err)
	}
}

// toStatus is the inverse of fromStatus for server handlers.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var revert *RevertError
	switch {
	case errors.As(err, &revert):
		return status.Error(codes.FailedPrecondition, revert.Reason)
	case errors.Is(err, ErrStudyNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// AddressFromHex parses a 0x address, rejecting malformed input instead of
// silently zero-padding it the way common.HexToAddress does.
func AddressFromHex(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func badRequest(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}
