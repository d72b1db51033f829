// Package api serves the local HTTP interface to a session: capability
// status, the study list and statistics, selection, submissions, study
// creation and the receipt journal.
//
// Errors are JSON objects of the form {"error": "..."} with a status code
// chosen by the error's kind.
package api
