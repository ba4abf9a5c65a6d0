// Package transfer executes download tasks with bounded concurrency,
// retry, and progress accounting.
//
// A fixed pool of workers pulls tasks from a single stream, so the stream
// may be produced incrementally (listing can still be paginating while
// earlier tasks download) and may be unbounded without unbounded resource
// use. Each task writes to a temporary file next to its destination and
// renames into place on success, so a destination path never holds a
// truncated object. One task's failure never aborts its siblings; a fatal
// authorization failure stops dispatch of new tasks but lets in-flight
// tasks finish.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	s3errors "github.com/objstore-tools/s3fetch/errors"
	"github.com/objstore-tools/s3fetch/internal/s3api"
	"github.com/objstore-tools/s3fetch/s3types"
)

// DefaultConcurrency is the worker count used when none is configured.
const DefaultConcurrency = 5

// RetryPolicy bounds retries of transient failures. Attempts are spaced by
// exponential backoff starting at InitialInterval and growing by Multiplier
// up to MaxInterval.
type RetryPolicy struct {
	// MaxAttempts is the total number of fetch attempts per task (first
	// attempt included)
	MaxAttempts int

	// InitialInterval is the delay before the first retry
	InitialInterval time.Duration

	// Multiplier grows the delay between consecutive retries
	Multiplier float64

	// MaxInterval caps the delay between retries
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the retry policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		Multiplier:      2.0,
		MaxInterval:     10 * time.Second,
	}
}

// Orchestrator consumes a stream of download tasks and executes them
// against the object store.
type Orchestrator struct {
	client         s3api.S3API
	bucket         string
	concurrency    int
	retry          RetryPolicy
	attemptTimeout time.Duration
	tracker        s3types.ProgressTracker
	logger         zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the maximum number of tasks transferring at once.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithRetryPolicy sets the retry policy for transient failures.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(o *Orchestrator) {
		if policy.MaxAttempts > 0 {
			o.retry = policy
		}
	}
}

// WithAttemptTimeout bounds each fetch attempt. An exceeded deadline counts
// as a transient failure. Zero disables the per-attempt timeout.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.attemptTimeout = timeout
	}
}

// WithProgressTracker sets the sink for per-task transfer events.
func WithProgressTracker(tracker s3types.ProgressTracker) Option {
	return func(o *Orchestrator) {
		if tracker != nil {
			o.tracker = tracker
		}
	}
}

// WithLogger sets the logger for transfer diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator downloading from the given bucket.
func New(client s3api.S3API, bucket string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:      client,
		bucket:      bucket,
		concurrency: DefaultConcurrency,
		retry:       DefaultRetryPolicy(),
		tracker:     s3types.NopProgressTracker{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drains the task stream and returns the aggregate outcome. It always
// consumes the entire stream: after a fatal authorization failure (or
// caller cancellation) remaining tasks are recorded as skipped rather than
// dispatched, and outcomes already reached are preserved.
func (o *Orchestrator) Run(ctx context.Context, tasks <-chan s3types.DownloadTask) *s3types.TransferOutcome {
	startTime := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcome := &s3types.TransferOutcome{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	semaphore := make(chan struct{}, o.concurrency)

	for task := range tasks {
		if runCtx.Err() != nil {
			mu.Lock()
			outcome.Skipped++
			mu.Unlock()
			continue
		}

		select {
		case semaphore <- struct{}{}:
		case <-runCtx.Done():
			mu.Lock()
			outcome.Skipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(task s3types.DownloadTask) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			written, err := o.execute(runCtx, task)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcome.Failed++
				outcome.Failures = append(outcome.Failures, s3types.TaskFailure{
					Key:       task.Key,
					VersionID: task.VersionID,
					Reason:    err,
				})
				if s3errors.IsAccessDenied(err) {
					// Credentials are bad for the whole run; stop
					// dispatching but let in-flight tasks drain.
					cancel()
				}
				return
			}
			outcome.Succeeded++
			outcome.BytesTransferred += written
		}(task)
	}

	wg.Wait()
	outcome.Duration = time.Since(startTime)
	return outcome
}

// execute runs one task to a terminal state, retrying transient failures
// per the policy. It returns the bytes written on success.
func (o *Orchestrator) execute(ctx context.Context, task s3types.DownloadTask) (int64, error) {
	o.tracker.Start(task)
	o.logger.Debug().
		Str("task", task.ID).
		Str("key", task.Key).
		Str("version", task.VersionID).
		Str("destination", task.DestinationPath).
		Msg("transfer start")

	var written int64
	attempt := 0

	operation := func() error {
		attempt++
		n, err := o.attempt(ctx, task)
		if err != nil {
			if !s3errors.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		written = n
		return nil
	}

	notify := func(err error, delay time.Duration) {
		o.logger.Warn().
			Str("key", task.Key).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("transient transfer failure, retrying")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.retry.InitialInterval
	bo.Multiplier = o.retry.Multiplier
	bo.MaxInterval = o.retry.MaxInterval
	bo.MaxElapsedTime = 0
	bo.RandomizationFactor = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(o.retry.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		o.tracker.Error(task, err)
		o.logger.Error().
			Str("key", task.Key).
			Str("version", task.VersionID).
			Int("attempts", attempt).
			Err(err).
			Msg("transfer failed")
		return 0, err
	}

	o.tracker.Complete(task)
	o.logger.Info().
		Str("key", task.Key).
		Str("destination", task.DestinationPath).
		Int64("bytes", written).
		Msg("transfer complete")
	return written, nil
}

// attempt performs a single fetch and atomic write of the task's object.
func (o *Orchestrator) attempt(ctx context.Context, task s3types.DownloadTask) (int64, error) {
	attemptCtx := ctx
	if o.attemptTimeout > 0 {
		var cancelAttempt context.CancelFunc
		attemptCtx, cancelAttempt = context.WithTimeout(ctx, o.attemptTimeout)
		defer cancelAttempt()
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(task.Key),
	}
	if task.VersionID != "" {
		input.VersionId = aws.String(task.VersionID)
	}

	output, err := o.client.GetObject(attemptCtx, input)
	if err != nil {
		classified := s3errors.Classify(err)
		return 0, s3errors.NewObjectError("download", o.bucket, task.Key, classified)
	}
	defer output.Body.Close()

	total := aws.ToInt64(output.ContentLength)
	if total == 0 {
		total = task.Size
	}

	reader := &progressReader{
		reader:  output.Body,
		task:    task,
		tracker: o.tracker,
		total:   total,
	}

	written, err := writeAtomic(task.DestinationPath, task.ID, reader)
	if err != nil {
		return 0, s3errors.NewObjectError("download", o.bucket, task.Key, err)
	}
	return written, nil
}

// writeAtomic streams reader into a temporary file in the destination's
// directory and renames it into place. On any failure the temporary file is
// removed and the destination is left untouched.
func writeAtomic(dest, taskID string, reader io.Reader) (int64, error) {
	dir := filepath.Dir(dest)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+"-"+taskID+".*.partial")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", s3errors.ErrLocalIO, err)
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, reader)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, classifyCopyError(err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: %w", s3errors.ErrLocalIO, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: %w", s3errors.ErrLocalIO, err)
	}

	return written, nil
}

// classifyCopyError separates write-side failures (terminal local I/O) from
// read-side failures (an interrupted body stream, retryable).
func classifyCopyError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%w: %w", s3errors.ErrLocalIO, err)
	}
	classified := s3errors.Classify(err)
	if s3errors.IsTransient(classified) || s3errors.IsNotFound(classified) ||
		s3errors.IsAccessDenied(classified) || s3errors.IsLocalIO(classified) {
		return classified
	}
	// A body stream cut mid-copy with no richer error type is a
	// connection failure.
	return fmt.Errorf("%w: %w", s3errors.ErrTransient, err)
}

// progressReader wraps the object body to emit best-effort byte progress.
type progressReader struct {
	reader    io.Reader
	task      s3types.DownloadTask
	tracker   s3types.ProgressTracker
	total     int64
	bytesRead int64
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.bytesRead += int64(n)
		pr.tracker.Update(pr.task, pr.bytesRead, pr.total)
	}
	//nolint:wrapcheck // io.Reader interface contract - error comes from underlying reader
	return n, err
}
