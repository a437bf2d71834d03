package sqlite

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/varstore/pkg/types"
)

// StagePath returns a unique sibling path of dst for writing output before it
// is atomically renamed into place.
func StagePath(dst string) string {
	dir, base := filepath.Split(dst)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
}

// Publish renames a staged file onto dst, replacing any existing file.
func Publish(staged, dst string) error {
	if err := os.Rename(staged, dst); err != nil {
		return types.NewStoreIOError(dst, "publish", err)
	}
	return nil
}

// Discard removes a staged file and its SQLite side files. Missing files are
// ignored.
func Discard(staged string) {
	for _, p := range []string{staged, staged + "-journal", staged + "-wal", staged + "-shm"} {
		_ = os.Remove(p)
	}
}

// CopyFile copies src to dst, creating or truncating dst.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return types.NewStoreIOError(src, "copy", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return types.NewStoreIOError(dst, "copy", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = types.NewStoreIOError(dst, "copy", cerr)
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return types.NewStoreIOError(dst, "copy", err)
	}
	return out.Sync()
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// RemoveIfExists deletes path, treating a missing file as success.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return types.NewStoreIOError(path, "remove", err)
	}
	return nil
}
