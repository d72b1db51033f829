// Package notify delivers user-visible notices for user-initiated actions:
// capability initialization, study creation and data submission. Background
// refresh failures are logged instead and never notify.
//
// Console prints colored lines; Matrix posts to a room; Multi fans out.
package notify
