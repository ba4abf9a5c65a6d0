// Package resolver reconstructs the state of a bucket prefix at a point in
// time from its version history.
//
// The ListObjectVersions API returns versions and delete markers as two
// separate lists per page, each ordered by key and newest-first within a
// key. The resolver merges them into one key-grouped, newest-first stream
// and selects, per key, the first entry whose modification time is at or
// before the requested instant. If that entry is a delete marker the key
// did not exist at the instant and is omitted. Keys with no entry at or
// before the instant are omitted as well.
//
// Selection state is carried across page boundaries, so a key whose
// history spans pages is still resolved exactly once. Memory use is
// bounded by the page size regardless of how many keys the prefix holds.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	s3errors "github.com/objstore-tools/s3fetch/errors"
	"github.com/objstore-tools/s3fetch/internal/s3api"
	"github.com/objstore-tools/s3fetch/s3types"
)

// maxPageSize is the largest page the ListObjectVersions API allows.
const maxPageSize = 1000

// Resolver selects, per key, the version that was current at an instant.
type Resolver struct {
	client s3api.S3API
}

// New creates a new Resolver.
func New(client s3api.S3API) *Resolver {
	return &Resolver{
		client: client,
	}
}

// Config holds configuration for a resolution pass.
type Config struct {
	// Bucket is the bucket whose version history is walked
	Bucket string

	// Prefix selects the keys to resolve; empty means the entire bucket
	Prefix string

	// AsOf is the instant the bucket state is reconstructed for
	AsOf time.Time

	// PageSize overrides the page size for pagination (capped at 1000)
	PageSize int32
}

// VersionResult wraps a resolved version or a stream-terminating error.
type VersionResult struct {
	Version s3types.ObjectVersion
	Err     error
}

// ResolveAt streams one resolved version per key that existed at the
// configured instant. The channel is closed when the history is exhausted,
// the context is cancelled, or an error element is emitted. A prefix with
// no matching keys yields an empty stream, not an error.
func (r *Resolver) ResolveAt(ctx context.Context, config *Config) <-chan VersionResult {
	resultChan := make(chan VersionResult, 100) // Buffered so resolving stays ahead of transfers

	go func() {
		defer close(resultChan)

		pageSize := config.PageSize
		if pageSize <= 0 || pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		var keyMarker, versionIDMarker *string
		scan := scanState{asOf: config.AsOf}

		for {
			input := &s3.ListObjectVersionsInput{
				Bucket:          aws.String(config.Bucket),
				Prefix:          aws.String(config.Prefix),
				MaxKeys:         aws.Int32(pageSize),
				KeyMarker:       keyMarker,
				VersionIdMarker: versionIDMarker,
			}

			output, err := r.client.ListObjectVersions(ctx, input)
			if err != nil {
				classified := s3errors.Classify(err)
				resultChan <- VersionResult{
					Err: s3errors.NewError("resolve", classified).WithBucket(config.Bucket),
				}
				return
			}

			for _, entry := range mergePage(output) {
				resolved, ok := scan.next(entry)
				if !ok {
					continue
				}
				select {
				case resultChan <- VersionResult{Version: resolved}:
				case <-ctx.Done():
					return
				}
			}

			if !aws.ToBool(output.IsTruncated) {
				return
			}
			keyMarker = output.NextKeyMarker
			versionIDMarker = output.NextVersionIdMarker
		}
	}()

	return resultChan
}

// scanState tracks per-key resolution across page boundaries.
type scanState struct {
	asOf       time.Time
	currentKey string
	decided    bool
	started    bool
}

// next feeds one history entry into the scan. It returns the entry and
// true when the entry is the resolved version for its key.
func (s *scanState) next(entry s3types.ObjectVersion) (s3types.ObjectVersion, bool) {
	if strings.HasSuffix(entry.Key, "/") {
		return s3types.ObjectVersion{}, false
	}

	if !s.started || entry.Key != s.currentKey {
		s.started = true
		s.currentKey = entry.Key
		s.decided = false
	}
	if s.decided {
		return s3types.ObjectVersion{}, false
	}

	// Newest-first scan: the first entry at or before the instant is the
	// version that was current then.
	if entry.LastModified.After(s.asOf) {
		return s3types.ObjectVersion{}, false
	}
	s.decided = true

	if entry.IsDeleteMarker {
		// The key was deleted as of this instant.
		return s3types.ObjectVersion{}, false
	}
	return entry, true
}

// mergePage combines a page's version and delete-marker lists into a single
// key-grouped, newest-first sequence. Both input lists already carry that
// ordering, so a two-pointer merge preserves it. On a modification-time tie
// within a key the version list wins, keeping the store's listing order
// authoritative.
func mergePage(page *s3.ListObjectVersionsOutput) []s3types.ObjectVersion {
	merged := make([]s3types.ObjectVersion, 0, len(page.Versions)+len(page.DeleteMarkers))

	i, j := 0, 0
	for i < len(page.Versions) && j < len(page.DeleteMarkers) {
		if versionBefore(page, i, j) {
			merged = append(merged, convertVersion(page, i))
			i++
		} else {
			merged = append(merged, convertMarker(page, j))
			j++
		}
	}
	for ; i < len(page.Versions); i++ {
		merged = append(merged, convertVersion(page, i))
	}
	for ; j < len(page.DeleteMarkers); j++ {
		merged = append(merged, convertMarker(page, j))
	}

	return merged
}

// versionBefore reports whether Versions[i] precedes DeleteMarkers[j] in
// key-grouped, newest-first order.
func versionBefore(page *s3.ListObjectVersionsOutput, i, j int) bool {
	vKey := aws.ToString(page.Versions[i].Key)
	mKey := aws.ToString(page.DeleteMarkers[j].Key)
	if vKey != mKey {
		return vKey < mKey
	}

	vTime := aws.ToTime(page.Versions[i].LastModified)
	mTime := aws.ToTime(page.DeleteMarkers[j].LastModified)
	if !vTime.Equal(mTime) {
		return vTime.After(mTime)
	}
	return true
}

func convertVersion(page *s3.ListObjectVersionsOutput, i int) s3types.ObjectVersion {
	v := page.Versions[i]
	return s3types.ObjectVersion{
		Object: s3types.Object{
			Key:          aws.ToString(v.Key),
			Size:         aws.ToInt64(v.Size),
			ETag:         aws.ToString(v.ETag),
			LastModified: aws.ToTime(v.LastModified),
		},
		VersionID: aws.ToString(v.VersionId),
		IsLatest:  aws.ToBool(v.IsLatest),
	}
}

func convertMarker(page *s3.ListObjectVersionsOutput, j int) s3types.ObjectVersion {
	m := page.DeleteMarkers[j]
	return s3types.ObjectVersion{
		Object: s3types.Object{
			Key:          aws.ToString(m.Key),
			LastModified: aws.ToTime(m.LastModified),
		},
		VersionID:      aws.ToString(m.VersionId),
		IsLatest:       aws.ToBool(m.IsLatest),
		IsDeleteMarker: true,
	}
}
