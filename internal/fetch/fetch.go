// Package fetch implements the three download modes: single object, full
// prefix, and point-in-time snapshot. It wires the lister or resolver into
// the transfer orchestrator, mapping remote keys to local paths along the
// way, and returns the aggregate outcome of each pass.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	s3errors "github.com/objstore-tools/s3fetch/errors"
	"github.com/objstore-tools/s3fetch/internal/lister"
	"github.com/objstore-tools/s3fetch/internal/pathmap"
	"github.com/objstore-tools/s3fetch/internal/resolver"
	"github.com/objstore-tools/s3fetch/internal/s3api"
	"github.com/objstore-tools/s3fetch/internal/transfer"
	"github.com/objstore-tools/s3fetch/s3types"
)

// DefaultDownloadDir is the destination used when none is given.
const DefaultDownloadDir = "Download"

// Service executes download modes against one bucket.
type Service struct {
	client       s3api.S3API
	bucket       string
	logger       zerolog.Logger
	transferOpts []transfer.Option

	orchestrator *transfer.Orchestrator
	lister       *lister.Lister
	resolver     *resolver.Resolver
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger for the service and its orchestrator.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
		s.transferOpts = append(s.transferOpts, transfer.WithLogger(logger))
	}
}

// WithConcurrency sets the transfer worker count.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		s.transferOpts = append(s.transferOpts, transfer.WithConcurrency(n))
	}
}

// WithProgressTracker sets the sink for per-task transfer events.
func WithProgressTracker(tracker s3types.ProgressTracker) Option {
	return func(s *Service) {
		s.transferOpts = append(s.transferOpts, transfer.WithProgressTracker(tracker))
	}
}

// WithRetryPolicy sets the retry policy for transient transfer failures.
func WithRetryPolicy(policy transfer.RetryPolicy) Option {
	return func(s *Service) {
		s.transferOpts = append(s.transferOpts, transfer.WithRetryPolicy(policy))
	}
}

// WithAttemptTimeout bounds each fetch attempt.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.transferOpts = append(s.transferOpts, transfer.WithAttemptTimeout(timeout))
	}
}

// New creates a Service downloading from the given bucket.
func New(client s3api.S3API, bucket string, opts ...Option) *Service {
	s := &Service{
		client: client,
		bucket: bucket,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.orchestrator = transfer.New(client, bucket, s.transferOpts...)
	s.lister = lister.New(client)
	s.resolver = resolver.New(client)
	return s
}

// File downloads a single object. An empty destination places the object
// under the default download directory using the key's base name.
// A missing object is reported as a task failure in the outcome, not as an
// error return.
func (s *Service) File(ctx context.Context, key, destination string) (*s3types.TransferOutcome, error) {
	if key == "" {
		return nil, s3errors.NewError("download_file", s3errors.ErrInvalidInput)
	}

	dest := pathmap.MapFile(key, destination, DefaultDownloadDir)
	if err := pathmap.EnsureParent(dest); err != nil {
		return nil, err
	}

	task := s3types.DownloadTask{
		ID:              uuid.NewString(),
		Key:             key,
		Size:            s.objectSize(ctx, key),
		DestinationPath: dest,
	}

	tasks := make(chan s3types.DownloadTask, 1)
	tasks <- task
	close(tasks)

	return s.orchestrator.Run(ctx, tasks), nil
}

// Dir downloads every current object under the prefix, preserving the key
// hierarchy below the prefix as subdirectories of destDir. An empty prefix
// downloads the whole bucket. A listing failure aborts the pass; tasks
// already completed stay in the returned outcome.
func (s *Service) Dir(ctx context.Context, prefix, destDir string) (*s3types.TransferOutcome, error) {
	if destDir == "" {
		destDir = DefaultDownloadDir
	}

	stream := s.lister.ListAll(ctx, &lister.Config{
		Bucket: s.bucket,
		Prefix: prefix,
	})

	producer := func(yield func(s3types.DownloadTask) bool, fail func(s3types.TaskFailure)) error {
		for res := range stream {
			if res.Err != nil {
				return res.Err
			}
			task, err := s.buildTask(res.Object.Key, "", res.Object.Size, prefix, destDir)
			if err != nil {
				fail(s3types.TaskFailure{Key: res.Object.Key, Reason: err})
				continue
			}
			if !yield(task) {
				return nil
			}
		}
		return nil
	}

	return s.run(ctx, producer)
}

// Versioned downloads each key as it existed at the given instant, using
// the version that was current then. Keys that did not exist at the
// instant (including keys whose newest entry at the instant is a delete
// marker) are omitted.
func (s *Service) Versioned(
	ctx context.Context,
	asOf time.Time,
	prefix, destDir string,
) (*s3types.TransferOutcome, error) {
	if destDir == "" {
		destDir = DefaultDownloadDir
	}

	stream := s.resolver.ResolveAt(ctx, &resolver.Config{
		Bucket: s.bucket,
		Prefix: prefix,
		AsOf:   asOf,
	})

	producer := func(yield func(s3types.DownloadTask) bool, fail func(s3types.TaskFailure)) error {
		for res := range stream {
			if res.Err != nil {
				return res.Err
			}
			version := res.Version
			task, err := s.buildTask(version.Key, version.VersionID, version.Size, prefix, destDir)
			if err != nil {
				fail(s3types.TaskFailure{Key: version.Key, VersionID: version.VersionID, Reason: err})
				continue
			}
			if !yield(task) {
				return nil
			}
		}
		return nil
	}

	return s.run(ctx, producer)
}

// run pumps tasks from a producer into the orchestrator. The producer and
// the orchestration pass are pipelined: transfers begin while enumeration
// is still paginating. Locally failed tasks (unmappable keys, unwritable
// parent directories) and a stream-terminating error are folded into the
// final outcome.
func (s *Service) run(
	ctx context.Context,
	producer func(yield func(s3types.DownloadTask) bool, fail func(s3types.TaskFailure)) error,
) (*s3types.TransferOutcome, error) {
	tasks := make(chan s3types.DownloadTask)

	var streamErr error
	var localFailures []s3types.TaskFailure

	go func() {
		defer close(tasks)

		yield := func(task s3types.DownloadTask) bool {
			select {
			case tasks <- task:
				return true
			case <-ctx.Done():
				return false
			}
		}
		fail := func(failure s3types.TaskFailure) {
			s.logger.Warn().
				Str("key", failure.Key).
				Err(failure.Reason).
				Msg("task could not be prepared")
			localFailures = append(localFailures, failure)
		}

		streamErr = producer(yield, fail)
	}()

	outcome := s.orchestrator.Run(ctx, tasks)

	// The producer goroutine has exited once the task channel is closed,
	// so reading its results here is safe.
	outcome.Failed += len(localFailures)
	outcome.Failures = append(outcome.Failures, localFailures...)

	if streamErr != nil {
		return outcome, streamErr
	}
	return outcome, nil
}

// buildTask maps a key to its destination and prepares parent directories.
func (s *Service) buildTask(
	key, versionID string,
	size int64,
	sourceRoot, destDir string,
) (s3types.DownloadTask, error) {
	dest, err := pathmap.Map(key, sourceRoot, destDir)
	if err != nil {
		return s3types.DownloadTask{}, err
	}
	if err := pathmap.EnsureParent(dest); err != nil {
		return s3types.DownloadTask{}, err
	}

	return s3types.DownloadTask{
		ID:              uuid.NewString(),
		Key:             key,
		VersionID:       versionID,
		Size:            size,
		DestinationPath: dest,
	}, nil
}

// objectSize fetches the object's size for progress totals, best-effort.
// A missing object is left for the transfer itself to report.
func (s *Service) objectSize(ctx context.Context, key string) int64 {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0
	}
	return aws.ToInt64(head.ContentLength)
}

// ParseTimestamp parses a YYYYMMDD day stamp into the end of that day in
// UTC, matching the snapshot semantics of the versioned mode: the state
// captured is the bucket as of 23:59:59.999999999 on that day.
func ParseTimestamp(value string) (time.Time, error) {
	day, err := time.Parse("20060102", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q, expected YYYYMMDD: %w", value, err)
	}
	return day.Add(24*time.Hour - time.Nanosecond), nil
}
