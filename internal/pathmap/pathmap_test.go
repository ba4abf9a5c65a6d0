package pathmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3errors "github.com/objstore-tools/s3fetch/errors"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		sourceRoot string
		destRoot   string
		want       string
		wantErr    bool
	}{
		{
			name:       "strips source root prefix",
			key:        "backups/2024/db.sql",
			sourceRoot: "backups/",
			destRoot:   "out",
			want:       filepath.Join("out", "2024", "db.sql"),
		},
		{
			name:       "source root without trailing slash",
			key:        "backups/2024/db.sql",
			sourceRoot: "backups",
			destRoot:   "out",
			want:       filepath.Join("out", "2024", "db.sql"),
		},
		{
			name:       "empty source root keeps full key",
			key:        "a/b/c.txt",
			sourceRoot: "",
			destRoot:   "out",
			want:       filepath.Join("out", "a", "b", "c.txt"),
		},
		{
			name:       "top level key",
			key:        "file.txt",
			sourceRoot: "",
			destRoot:   "out",
			want:       filepath.Join("out", "file.txt"),
		},
		{
			name:       "parent references are dropped",
			key:        "data/../../etc/passwd",
			sourceRoot: "data/",
			destRoot:   "out",
			want:       filepath.Join("out", "etc", "passwd"),
		},
		{
			name:       "empty segments are dropped",
			key:        "data//a//b.txt",
			sourceRoot: "data/",
			destRoot:   "out",
			want:       filepath.Join("out", "a", "b.txt"),
		},
		{
			name:       "key equal to source root",
			key:        "data/",
			sourceRoot: "data/",
			destRoot:   "out",
			wantErr:    true,
		},
		{
			name:       "key of only traversal segments",
			key:        "data/../..",
			sourceRoot: "data/",
			destRoot:   "out",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Map(tt.key, tt.sourceRoot, tt.destRoot)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, s3errors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMap_Deterministic(t *testing.T) {
	first, err := Map("a/b/c.txt", "a/", "dest")
	require.NoError(t, err)
	second, err := Map("a/b/c.txt", "a/", "dest")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMapFile(t *testing.T) {
	assert.Equal(t, "explicit/path.txt", MapFile("a/b.txt", "explicit/path.txt", "dl"))
	assert.Equal(t, filepath.Join("dl", "b.txt"), MapFile("a/b.txt", "", "dl"))
	assert.Equal(t, filepath.Join("dl", "top.txt"), MapFile("top.txt", "", "dl"))
}

func TestEnsureParent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "file.txt")

	require.NoError(t, EnsureParent(target))

	info, err := os.Stat(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent on existing directories.
	require.NoError(t, EnsureParent(target))
}

func TestEnsureParent_ReportsLocalIO(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := EnsureParent(filepath.Join(blocker, "child", "file.txt"))
	require.Error(t, err)
	assert.True(t, s3errors.IsLocalIO(err))
}
