// Package s3types provides shared type definitions for the s3fetch module.
package s3types

import (
	"time"
)

// Object represents a current S3 object with its basic metadata.
type Object struct {
	// Key is the S3 object key (path)
	Key string

	// Size is the object size in bytes
	Size int64

	// ETag is the S3 entity tag for the object
	ETag string

	// LastModified is when the object was last modified
	LastModified time.Time
}

// ObjectVersion represents one entry in an object's version history.
// Both payload versions and delete markers are modeled by this type;
// delete markers carry no payload and have IsDeleteMarker set.
type ObjectVersion struct {
	Object

	// VersionID is the store-assigned version identifier, unique per key
	VersionID string

	// IsLatest indicates whether this is the current version of the key
	IsLatest bool

	// IsDeleteMarker indicates the key did not exist as of this version
	IsDeleteMarker bool
}

// TaskStatus is the terminal state of a download task.
type TaskStatus string

// Terminal task states
const (
	// TaskSucceeded means the object was fully written to its destination
	TaskSucceeded TaskStatus = "succeeded"

	// TaskFailed means the task exhausted its retries or hit a permanent error
	TaskFailed TaskStatus = "failed"

	// TaskSkipped means the task was never dispatched (run cancelled upstream)
	TaskSkipped TaskStatus = "skipped"
)

// DownloadTask is a single unit of transfer work: fetch one object
// (current or a specific version) and write it to a local path.
type DownloadTask struct {
	// ID uniquely identifies the task within a run, used in logs and
	// temp-file names
	ID string

	// Key is the S3 object key to fetch
	Key string

	// VersionID selects a specific version; empty means the current object
	VersionID string

	// Size is the expected object size in bytes, if known from listing
	Size int64

	// DestinationPath is the local file path the object is written to
	DestinationPath string
}

// TaskFailure records a task that reached a terminal failure state.
type TaskFailure struct {
	// Key is the S3 object key that failed
	Key string

	// VersionID is the attempted version, if any
	VersionID string

	// Reason is the terminal error
	Reason error
}

// TransferOutcome aggregates the results of one orchestration pass.
// It is produced once per invocation and never mutated afterwards.
type TransferOutcome struct {
	// Succeeded is the number of tasks that completed successfully
	Succeeded int

	// Failed is the number of tasks that reached a terminal failure
	Failed int

	// Skipped is the number of tasks never dispatched due to cancellation
	Skipped int

	// BytesTransferred is the total payload bytes written to disk
	BytesTransferred int64

	// Failures lists terminal failures in completion order
	Failures []TaskFailure

	// Duration is how long the orchestration pass took
	Duration time.Duration
}

// OK reports whether every task in the pass succeeded.
func (o *TransferOutcome) OK() bool {
	return o.Failed == 0 && o.Skipped == 0
}

// Total returns the number of tasks the pass accounted for.
func (o *TransferOutcome) Total() int {
	return o.Succeeded + o.Failed + o.Skipped
}

// ProgressTracker receives per-task transfer progress events.
// Notifications are best-effort: implementations must not block and their
// behavior never affects transfer control flow or outcomes.
type ProgressTracker interface {
	// Start is called once when a task begins transferring
	Start(task DownloadTask)

	// Update is called periodically with transfer progress for a task
	Update(task DownloadTask, bytesTransferred, totalBytes int64)

	// Complete is called when a task's transfer completes successfully
	Complete(task DownloadTask)

	// Error is called when a task's transfer reaches a terminal failure
	Error(task DownloadTask, err error)
}

// NopProgressTracker discards all progress events.
type NopProgressTracker struct{}

// Start implements ProgressTracker.
func (NopProgressTracker) Start(DownloadTask) {}

// Update implements ProgressTracker.
func (NopProgressTracker) Update(DownloadTask, int64, int64) {}

// Complete implements ProgressTracker.
func (NopProgressTracker) Complete(DownloadTask) {}

// Error implements ProgressTracker.
func (NopProgressTracker) Error(DownloadTask, error) {}
