// Package errors provides error types and classification for S3 transfer operations.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// Error represents a transfer operation error with context about the
// operation that failed. It wraps the underlying AWS SDK or filesystem
// error with additional context for better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "download", "list", "resolve")
	Op string

	// Bucket is the S3 bucket name (if applicable)
	Bucket string

	// Key is the S3 object key (if applicable)
	Key string

	// Err is the underlying error from the AWS SDK or other source
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("s3fetch.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("s3fetch.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("s3fetch.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("s3fetch.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket adds bucket context to an existing error.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey adds object key context to an existing error.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with bucket and key context.
func NewObjectError(op, bucket, key string, err error) *Error {
	return &Error{
		Op:     op,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}
}

// Sentinel errors for common transfer failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrObjectNotFound indicates that the requested object or version does not exist
	ErrObjectNotFound = errors.New("s3fetch: object not found")

	// ErrBucketNotFound indicates that the requested bucket does not exist
	ErrBucketNotFound = errors.New("s3fetch: bucket not found")

	// ErrAccessDenied indicates that access to the resource is denied
	ErrAccessDenied = errors.New("s3fetch: access denied")

	// ErrThrottled indicates that the store is rate limiting requests
	ErrThrottled = errors.New("s3fetch: request throttled")

	// ErrTimeout indicates that a fetch attempt exceeded its deadline
	ErrTimeout = errors.New("s3fetch: operation timeout")

	// ErrTransient indicates a retryable store-side or network failure
	ErrTransient = errors.New("s3fetch: transient transfer error")

	// ErrLocalIO indicates a terminal local filesystem failure
	ErrLocalIO = errors.New("s3fetch: local I/O error")

	// ErrVersioningNotEnabled indicates the bucket has no version history to list
	ErrVersioningNotEnabled = errors.New("s3fetch: bucket versioning not enabled")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("s3fetch: invalid input")
)

// IsNotFound checks if an error indicates that an object or bucket was not found.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrBucketNotFound)
}

// IsAccessDenied checks if an error indicates an authentication or
// authorization failure. These cancel the whole run.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsTransient checks if an error is retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrThrottled) || errors.Is(err, ErrTimeout)
}

// IsLocalIO checks if an error is a terminal local filesystem failure.
func IsLocalIO(err error) bool {
	return errors.Is(err, ErrLocalIO)
}

// Classify maps an AWS SDK, network, or context error into the transfer
// error taxonomy, wrapping it so errors.Is reports the matching sentinel.
// Errors that already carry a sentinel pass through unchanged. A nil error
// classifies to nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{
		ErrObjectNotFound, ErrBucketNotFound, ErrAccessDenied, ErrThrottled,
		ErrTimeout, ErrTransient, ErrLocalIO, ErrVersioningNotEnabled, ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	// Per-attempt deadlines count as transient; the retry policy decides
	// whether the task as a whole gets another attempt.
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchVersion", "NotFound":
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrBucketNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch",
			"ExpiredToken", "TokenRefreshRequired", "AccountProblem":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case "SlowDown", "Throttling", "ThrottlingException", "TooManyRequests":
			return fmt.Errorf("%w: %w", ErrThrottled, err)
		case "RequestTimeout", "InternalError", "ServiceUnavailable":
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case "InvalidRequest":
			// ListObjectVersions against a bucket without versioning
			return fmt.Errorf("%w: %w", ErrVersioningNotEnabled, err)
		}
	}

	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch status := respErr.HTTPStatusCode(); {
		case status == 404:
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case status == 403:
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		case status == 429:
			return fmt.Errorf("%w: %w", ErrThrottled, err)
		case status >= 500:
			return fmt.Errorf("%w: %w", ErrTransient, err)
		}
	}

	// Connection-level failures without a response are retryable.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}

	return err
}
