// Package pathmap maps remote object keys to local filesystem paths.
package pathmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	s3errors "github.com/objstore-tools/s3fetch/errors"
)

// dirPerm is the permission mode for created parent directories.
const dirPerm = 0o755

// Map computes the local path for a remote key by stripping sourceRoot as a
// prefix and joining the remainder onto destRoot, preserving the key's
// internal separators as subdirectories. The result never escapes destRoot:
// parent-directory references and empty segments in the key are dropped.
// Mapping is deterministic, so the same key always yields the same path.
func Map(key, sourceRoot, destRoot string) (string, error) {
	rel := strings.TrimPrefix(key, sourceRoot)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", s3errors.NewError("pathmap", s3errors.ErrInvalidInput).WithKey(key)
	}

	var segments []string
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".", "..":
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return "", s3errors.NewError("pathmap", s3errors.ErrInvalidInput).WithKey(key)
	}

	local := filepath.Join(destRoot, filepath.Join(segments...))

	// The segment filter above already prevents traversal; verify anyway so
	// a mapping bug can never place a file outside the destination root.
	cleanRoot := filepath.Clean(destRoot)
	if local != cleanRoot && !strings.HasPrefix(local, cleanRoot+string(filepath.Separator)) {
		return "", s3errors.NewError("pathmap", s3errors.ErrInvalidInput).WithKey(key)
	}

	return local, nil
}

// MapFile computes the local path for a single-object download. An explicit
// destination is used as-is; otherwise the object's base name is placed
// under destRoot.
func MapFile(key, destination, destRoot string) string {
	if destination != "" {
		return destination
	}
	base := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		base = key[idx+1:]
	}
	return filepath.Join(destRoot, base)
}

// EnsureParent creates the parent directories of path so the orchestrator
// can write the file.
func EnsureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return s3errors.NewError("pathmap", fmt.Errorf("%w: %w", s3errors.ErrLocalIO, err)).WithKey(path)
	}
	return nil
}
