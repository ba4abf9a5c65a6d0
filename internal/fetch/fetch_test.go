package fetch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/objstore-tools/s3fetch/errors"
	"github.com/objstore-tools/s3fetch/internal/testutil"
)

// bucketFixture serves a small fixed bucket through the mock client:
// keys mapped to their current content, listed in lexical order.
func bucketFixture(objects map[string]string) *testutil.MockS3Client {
	return &testutil.MockS3Client{
		GetObjectFunc: func(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			content, ok := objects[aws.ToString(input.Key)]
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
			}
			return testutil.GetObjectResponse(content), nil
		},
		HeadObjectFunc: func(ctx context.Context, input *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			content, ok := objects[aws.ToString(input.Key)]
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
			}
			return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(content)))}, nil
		},
		ListObjectsV2Func: func(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			prefix := aws.ToString(input.Prefix)
			var contents []types.Object
			for _, key := range sortedKeys(objects) {
				if prefix != "" && !strings.HasPrefix(key, prefix) {
					continue
				}
				contents = append(contents, types.Object{
					Key:          aws.String(key),
					Size:         aws.Int64(int64(len(objects[key]))),
					LastModified: aws.Time(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
				})
			}
			return &s3.ListObjectsV2Output{
				Contents:    contents,
				IsTruncated: aws.Bool(false),
			}, nil
		},
	}
}

func sortedKeys(objects map[string]string) []string {
	keys := make([]string, 0, len(objects))
	for key := range objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func TestService_File(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "report.csv")

	mock := bucketFixture(map[string]string{
		"exports/report.csv": "a,b,c\n1,2,3\n",
	})

	svc := New(mock, "bucket")
	outcome, err := svc.File(context.Background(), "exports/report.csv", dest)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Succeeded)
	assert.True(t, outcome.OK())

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", string(content))
}

func TestService_FileMissingKeyReportsFailure(t *testing.T) {
	dir := t.TempDir()

	svc := New(bucketFixture(nil), "bucket")
	outcome, err := svc.File(context.Background(), "gone.txt", filepath.Join(dir, "gone.txt"))
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Failed)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "gone.txt", outcome.Failures[0].Key)
	assert.True(t, s3errors.IsNotFound(outcome.Failures[0].Reason))
}

func TestService_FileRejectsEmptyKey(t *testing.T) {
	svc := New(bucketFixture(nil), "bucket")
	_, err := svc.File(context.Background(), "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, s3errors.ErrInvalidInput)
}

func TestService_FileCreatesParentDirectories(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "deep", "report.csv")

	mock := bucketFixture(map[string]string{"report.csv": "data"})

	outcome, err := New(mock, "bucket").File(context.Background(), "report.csv", dest)
	require.NoError(t, err)
	assert.True(t, outcome.OK())

	_, err = os.Stat(dest)
	require.NoError(t, err)
}

func TestService_DirMirrorsHierarchy(t *testing.T) {
	dir := t.TempDir()

	mock := bucketFixture(map[string]string{
		"backups/2024/01/db.sql": "january",
		"backups/2024/02/db.sql": "february",
		"backups/readme.txt":     "notes",
		"other/skip.txt":         "elsewhere",
	})

	svc := New(mock, "bucket")
	outcome, err := svc.Dir(context.Background(), "backups/", dir)
	require.NoError(t, err)

	assert.Equal(t, 3, outcome.Succeeded)
	assert.Equal(t, 0, outcome.Failed)

	for path, want := range map[string]string{
		filepath.Join(dir, "2024", "01", "db.sql"): "january",
		filepath.Join(dir, "2024", "02", "db.sql"): "february",
		filepath.Join(dir, "readme.txt"):           "notes",
	} {
		content, err := os.ReadFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(content), path)
	}

	_, err = os.Stat(filepath.Join(dir, "skip.txt"))
	assert.True(t, os.IsNotExist(err), "keys outside the prefix must not be downloaded")
}

func TestService_DirEmptyPrefixDownloadsBucket(t *testing.T) {
	dir := t.TempDir()

	mock := bucketFixture(map[string]string{
		"a.txt":     "a",
		"sub/b.txt": "b",
	})

	outcome, err := New(mock, "bucket").Dir(context.Background(), "", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Succeeded)

	_, err = os.Stat(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "sub", "b.txt"))
	require.NoError(t, err)
}

func TestService_DirEmptyResultIsNotAnError(t *testing.T) {
	dir := t.TempDir()

	outcome, err := New(bucketFixture(nil), "bucket").Dir(context.Background(), "nothing/", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Total())
	assert.True(t, outcome.OK())
}

func TestService_DirListingErrorAborts(t *testing.T) {
	dir := t.TempDir()

	mock := &testutil.MockS3Client{
		ListObjectsV2Func: func(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
		},
	}

	outcome, err := New(mock, "bucket").Dir(context.Background(), "data/", dir)
	require.Error(t, err)
	assert.True(t, s3errors.IsAccessDenied(err))
	assert.Equal(t, 0, outcome.Succeeded)
}

func TestService_Versioned(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := func(hours int) time.Time { return base.Add(time.Duration(hours) * time.Hour) }

	// History: a.txt written at 08:00 (v1) and rewritten at 14:00 (v2);
	// b.txt written at 09:00 (v1) and deleted at 13:00.
	versions := map[string]string{
		"a-v1": "a old",
		"a-v2": "a new",
		"b-v1": "b content",
	}

	mock := &testutil.MockS3Client{
		ListObjectVersionsFunc: func(ctx context.Context, input *s3.ListObjectVersionsInput, opts ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
			return &s3.ListObjectVersionsOutput{
				Versions: []types.ObjectVersion{
					testutil.Version("a.txt", "a-v2", at(14), true),
					testutil.Version("a.txt", "a-v1", at(8), false),
					testutil.Version("b.txt", "b-v1", at(9), false),
				},
				DeleteMarkers: []types.DeleteMarkerEntry{
					testutil.DeleteMarker("b.txt", "b-dm", at(13), true),
				},
				IsTruncated: aws.Bool(false),
			}, nil
		},
		GetObjectFunc: func(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			content, ok := versions[aws.ToString(input.VersionId)]
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "NoSuchVersion", Message: "no such version"}
			}
			return testutil.GetObjectResponse(content), nil
		},
	}

	svc := New(mock, "bucket")

	// At 10:00 both keys existed: a.txt as v1, b.txt as v1.
	outcome, err := svc.Versioned(context.Background(), at(10), "", dir)
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Succeeded)

	content, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a old", string(content))

	content, err = os.ReadFile(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b content", string(content))
}

func TestService_VersionedOmitsDeletedKeys(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock := &testutil.MockS3Client{
		ListObjectVersionsFunc: func(ctx context.Context, input *s3.ListObjectVersionsInput, opts ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
			return &s3.ListObjectVersionsOutput{
				Versions: []types.ObjectVersion{
					testutil.Version("gone.txt", "v1", base, false),
				},
				DeleteMarkers: []types.DeleteMarkerEntry{
					testutil.DeleteMarker("gone.txt", "dm", base.Add(2*time.Hour), true),
				},
				IsTruncated: aws.Bool(false),
			}, nil
		},
	}

	// At +3h the newest entry is the delete marker, so nothing downloads.
	outcome, err := New(mock, "bucket").Versioned(context.Background(), base.Add(3*time.Hour), "", dir)
	require.NoError(t, err)
	assert.Equal(t, 0, outcome.Total())
	assert.True(t, outcome.OK())
}

func TestService_VersionedNotEnabled(t *testing.T) {
	dir := t.TempDir()

	mock := &testutil.MockS3Client{
		ListObjectVersionsFunc: func(ctx context.Context, input *s3.ListObjectVersionsInput, opts ...func(*s3.Options)) (*s3.ListObjectVersionsOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "InvalidRequest", Message: "versioning is not enabled"}
		},
	}

	_, err := New(mock, "bucket").Versioned(context.Background(), time.Now(), "", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, s3errors.ErrVersioningNotEnabled)
}

func TestService_RunFoldsLocalFailuresIntoOutcome(t *testing.T) {
	dir := t.TempDir()

	// A key of nothing but the prefix cannot be mapped to a local path.
	mock := bucketFixture(map[string]string{
		"data/":      "",
		"data/a.txt": "content",
	})
	// Placeholder keys are dropped by the lister; force an unmappable key
	// through a raw listing instead.
	mock.ListObjectsV2Func = func(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
		return &s3.ListObjectsV2Output{
			Contents: []types.Object{
				{Key: aws.String("data/.."), Size: aws.Int64(0)},
				{Key: aws.String("data/a.txt"), Size: aws.Int64(7)},
			},
			IsTruncated: aws.Bool(false),
		}, nil
	}

	outcome, err := New(mock, "bucket").Dir(context.Background(), "data/", dir)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.Succeeded)
	assert.Equal(t, 1, outcome.Failed)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "data/..", outcome.Failures[0].Key)
	assert.ErrorIs(t, outcome.Failures[0].Reason, s3errors.ErrInvalidInput)
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("20240301")
	require.NoError(t, err)

	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, time.March, got.Month())
	assert.Equal(t, 1, got.Day())
	assert.Equal(t, 23, got.Hour())
	assert.Equal(t, 59, got.Minute())
	assert.Equal(t, time.UTC, got.Location())

	// The instant is still inside the requested day.
	assert.True(t, got.Before(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestParseTimestamp_Invalid(t *testing.T) {
	for _, value := range []string{"", "2024-03-01", "2024030", "notadate"} {
		_, err := ParseTimestamp(value)
		assert.Error(t, err, value)
	}
}
