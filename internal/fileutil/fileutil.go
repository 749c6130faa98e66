// Package fileutil holds small filesystem helpers shared by the store
// and git gateway: directory creation, atomic writes, and the
// path-traversal guard spec §4.1 requires of moveFileToSpec.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates a directory and all parents with 0755 permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// AtomicWriteFile writes data to path via a temp file in the same
// directory followed by rename, so readers never observe a partial
// write. The temp file is removed if any step fails.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return fmt.Errorf("ensuring dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file into place: %w", err)
	}
	return nil
}

// ErrPathTraversal is returned by SafeJoin when a candidate path
// resolves outside its declared base directory.
var ErrPathTraversal = fmt.Errorf("path escapes workspace")

// SafeJoin joins base and rel, rejecting an empty rel, any result that
// escapes base (".." segments climbing above it), and any result whose
// basename is ".", "..", or ".git". An absolute rel is joined under
// base like a relative one, and ".." segments that stay inside base are
// accepted. Used by moveFileToSpec's directory-traversal guard.
func SafeJoin(base, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrPathTraversal)
	}
	base = filepath.Clean(base)
	joined := filepath.Clean(filepath.Join(base, rel))

	if joined != base && !hasPathPrefix(joined, base) {
		return "", fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	switch filepath.Base(joined) {
	case ".", "..", ".git":
		return "", fmt.Errorf("%w: forbidden basename %s", ErrPathTraversal, filepath.Base(joined))
	}

	return joined, nil
}

func hasPathPrefix(path, prefix string) bool {
	rel, err := filepath.Rel(prefix, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.' &&
		(len(rel) == 2 || os.IsPathSeparator(rel[2]))
}
