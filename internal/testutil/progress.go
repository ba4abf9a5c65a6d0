// Package testutil provides test utilities for progress tracking.
package testutil

import (
	"sync"

	"github.com/objstore-tools/s3fetch/s3types"
)

// MockProgressTracker is a mock implementation of ProgressTracker for testing.
// It is safe for concurrent use so orchestrator tests can share one instance
// across workers.
type MockProgressTracker struct {
	mu sync.Mutex

	Started   []string
	Completed []string
	Errored   []string
	Updates   []ProgressUpdate
}

// ProgressUpdate represents a single progress update event.
type ProgressUpdate struct {
	Key         string
	Transferred int64
	Total       int64
}

// Start records a transfer-start event.
func (m *MockProgressTracker) Start(task s3types.DownloadTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = append(m.Started, task.Key)
}

// Update records a progress update.
func (m *MockProgressTracker) Update(task s3types.DownloadTask, bytesTransferred, totalBytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, ProgressUpdate{
		Key:         task.Key,
		Transferred: bytesTransferred,
		Total:       totalBytes,
	})
}

// Complete records a transfer-complete event.
func (m *MockProgressTracker) Complete(task s3types.DownloadTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, task.Key)
}

// Error records a transfer-failure event.
func (m *MockProgressTracker) Error(task s3types.DownloadTask, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errored = append(m.Errored, task.Key)
}

// Reset clears the mock tracker state.
func (m *MockProgressTracker) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started = nil
	m.Completed = nil
	m.Errored = nil
	m.Updates = nil
}

// Verify that the mock implements the interface
var _ s3types.ProgressTracker = (*MockProgressTracker)(nil)
