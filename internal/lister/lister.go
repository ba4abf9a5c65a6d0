// Package lister handles enumeration of current S3 objects under a prefix.
//
// Pagination is handled transparently: callers consume a forward-only stream
// of object descriptors and never see continuation tokens. Listing failures
// terminate the stream with an error element; descriptors already yielded
// remain valid.
package lister

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	s3errors "github.com/objstore-tools/s3fetch/errors"
	"github.com/objstore-tools/s3fetch/internal/s3api"
	"github.com/objstore-tools/s3fetch/s3types"
)

// maxPageSize is the largest page the ListObjectsV2 API allows.
const maxPageSize = 1000

// Lister streams current objects under a bucket prefix.
type Lister struct {
	client s3api.S3API
}

// New creates a new Lister.
func New(client s3api.S3API) *Lister {
	return &Lister{
		client: client,
	}
}

// Config holds configuration for list operations.
type Config struct {
	// Bucket is the bucket to list
	Bucket string

	// Prefix selects the keys to list; empty means the entire bucket
	Prefix string

	// PageSize overrides the page size for pagination (capped at 1000)
	PageSize int32
}

// ObjectResult wraps an object descriptor or a stream-terminating error.
type ObjectResult struct {
	Object s3types.Object
	Err    error
}

// ListAll streams every current object under the prefix. The returned
// channel is closed when enumeration finishes, the context is cancelled,
// or an error element is emitted. Directory placeholder keys (trailing
// slash) are skipped. An empty result set is not an error.
func (l *Lister) ListAll(ctx context.Context, config *Config) <-chan ObjectResult {
	resultChan := make(chan ObjectResult, 100) // Buffered so listing stays ahead of transfers

	go func() {
		defer close(resultChan)

		paginator := l.paginator(config)

		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				classified := s3errors.Classify(err)
				resultChan <- ObjectResult{
					Err: s3errors.NewError("list", classified).WithBucket(config.Bucket),
				}
				return
			}

			for _, obj := range page {
				if strings.HasSuffix(obj.Key, "/") {
					continue
				}
				select {
				case resultChan <- ObjectResult{Object: obj}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return resultChan
}

// paginator creates a Paginator for the given config.
func (l *Lister) paginator(config *Config) *Paginator {
	pageSize := config.PageSize
	if pageSize <= 0 || pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return &Paginator{
		client:    l.client,
		config:    config,
		pageSize:  pageSize,
		firstPage: true,
	}
}

// Paginator walks the continuation-token protocol one page at a time.
type Paginator struct {
	client            s3api.S3API
	config            *Config
	pageSize          int32
	continuationToken *string
	hasMorePages      bool
	firstPage         bool
}

// HasMorePages returns true if there are more pages to fetch.
func (p *Paginator) HasMorePages() bool {
	return p.firstPage || p.hasMorePages
}

// NextPage fetches the next page of object descriptors.
func (p *Paginator) NextPage(ctx context.Context) ([]s3types.Object, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.config.Bucket),
		Prefix:  aws.String(p.config.Prefix),
		MaxKeys: aws.Int32(p.pageSize),
	}

	if !p.firstPage && p.continuationToken != nil {
		input.ContinuationToken = p.continuationToken
	}

	output, err := p.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}

	p.firstPage = false
	p.hasMorePages = aws.ToBool(output.IsTruncated)
	p.continuationToken = output.NextContinuationToken

	objects := make([]s3types.Object, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, s3types.Object{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			ETag:         aws.ToString(obj.ETag),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	return objects, nil
}
