// Package ledger is the typed façade over the external study registry.
//
// # Overview
//
// The registry is a contract-like system of record holding studies and
// their aggregate statistics. This package never interprets ciphertexts or
// computes aggregates; it only moves typed values across the wire.
//
// # Wire Format
//
// The registry speaks gRPC under the service name healthledger.v1.StudyRegistry.
// Requests and responses are google.protobuf.Struct messages whose field
// names mirror the contract ABI (studyId, encryptedValue, minValue, ...).
// Integers travel as decimal strings so 64-bit values survive the trip;
// hashes and byte blobs travel as 0x-prefixed hex.
//
// # Methods
//
//   - StudyCounter: number of studies; ids are 0..count-1
//   - GetStudy: one study record
//   - GetStudyStats: aggregate statistics, min/max scaled by 100
//   - SubmitData: encrypted submission, awaited until confirmed or reverted
//   - CreateStudy: new study, id read from the StudyCreated event
//
// # Authentication
//
// When a secret is configured every call carries an HS256 bearer token:
//
//	authorization: Bearer <jwt with sub=account address>
//
// # Usage
//
//	client, err := ledger.Dial(ctx, cfg.Ledger, cfg.Tailscale, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	count, err := client.StudyCounter(ctx)
package ledger
