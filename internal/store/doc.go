// Package store provides the local receipt journal.
//
// # Overview
//
// Every registry write attempt (a data submission or a study creation) is
// recorded as a Receipt: what kind of write it was, which study, who sent
// it, whether the registry accepted it, and the transaction hash or
// rejection reason. Submitted values and ciphertexts are never stored.
//
// SQLiteStore persists receipts with modernc.org/sqlite in WAL mode and
// creates its schema on open. MockStore is an in-memory implementation for
// tests.
//
// # Schema
//
//	receipts(id, kind, study_id, submitter, status, tx_hash, reason, created_at)
//
// kind is "submit" or "create_study"; status is "accepted", "rejected" or
// "failed". study_id is stored as decimal text to keep the full uint64 range.
package store
