// Package filesys provides the small set of file system operations the
// archive actually drives: locating rotated segment files on disk,
// reading a producer-supplied index payload, and allocating/removing the
// temp files fetch and restore stage their downloads through.
package filesys

import (
	"os"
	"path/filepath"
)

// ReadDir reads the directory specified by `dirName` and returns a list of matching file paths.
// It uses `filepath.Glob` which means `dirName` can contain glob patterns (e.g., "mydir/*.txt").
func ReadDir(dirName string) ([]string, error) {
	files, err := filepath.Glob(dirName)
	return files, err
}

// ReadFile reads the entire content of the file at `filePath` into a byte slice.
// It returns the file content and any error encountered.
func ReadFile(filePath string) ([]byte, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return contents, err
}

// DeleteFile deletes the file at the specified `filePath`.
// It returns an error if the file cannot be removed.
func DeleteFile(filePath string) error {
	return os.Remove(filePath)
}

// TempFile creates a new temporary file in `dir` (the OS default temp
// directory if empty) whose name begins with `pattern`. The caller owns
// the returned file and is responsible for closing and removing it.
func TempFile(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}
