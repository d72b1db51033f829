// Package submission turns a user-entered decimal reading into an encrypted
// registry write.
//
// Submit runs three steps and stops at the first failure:
//
//  1. Quantize: parse the reading exactly and scale it to round(v*100),
//     rounding half away from zero. Negative, non-numeric or out-of-range
//     input is an *InvalidValueError and nothing else runs.
//  2. Encrypt: add the scaled value as a 32-bit field to a builder scoped to
//     (contract, submitter) and encrypt, raced against a timeout. Failure,
//     timeout or an empty handle list is an *EncryptionFailedError.
//  3. Write: SubmitData(studyID, handle, proof, scaled, scaled). A transport
//     failure or revert is a *SubmissionRejectedError carrying the registry's
//     reason verbatim. Writes are never retried.
//
// The pipeline does not check whether the study is active and does not touch
// any cache; callers do both.
package submission
