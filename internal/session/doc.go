// Package session coordinates one user's interaction with the study
// registry: background capability setup, the selected study, submissions,
// study creation and the refreshed study view.
//
// A Session owns the lifecycle of its poller and idempotency cache. The
// capability, pipeline and cache are shared collaborators passed in by the
// caller.
package session
