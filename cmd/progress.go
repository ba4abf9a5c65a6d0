package cmd

import (
	"github.com/rs/zerolog"

	"github.com/objstore-tools/s3fetch/s3types"
)

// consoleTracker surfaces transfer-start events on the console. Byte
// progress is intentionally silent: per-read updates would flood the log,
// and completion is already reported by the orchestrator.
type consoleTracker struct {
	logger zerolog.Logger
}

func newConsoleTracker(logger zerolog.Logger) *consoleTracker {
	return &consoleTracker{logger: logger}
}

// Start implements s3types.ProgressTracker.
func (t *consoleTracker) Start(task s3types.DownloadTask) {
	event := t.logger.Info().Str("key", task.Key)
	if task.VersionID != "" {
		event = event.Str("version", task.VersionID)
	}
	if task.Size > 0 {
		event = event.Int64("size", task.Size)
	}
	event.Msg("downloading")
}

// Update implements s3types.ProgressTracker.
func (t *consoleTracker) Update(s3types.DownloadTask, int64, int64) {}

// Complete implements s3types.ProgressTracker.
func (t *consoleTracker) Complete(s3types.DownloadTask) {}

// Error implements s3types.ProgressTracker.
func (t *consoleTracker) Error(s3types.DownloadTask, error) {}

var _ s3types.ProgressTracker = (*consoleTracker)(nil)
