package testutil

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/surge-downloader/localcopy/internal/engine/types"
)

// RandomBytes returns n bytes of random payload.
func RandomBytes(n int) []byte {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return b
}

// CreateTestFile writes content to dir/name and returns its path.
func CreateTestFile(dir, name string, content []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// CreatePartialFile writes the first downloaded bytes of payload to an
// incomplete file, as an interrupted transfer leaves it.
func CreatePartialFile(dir, name string, payload []byte, downloaded int64) (string, error) {
	if downloaded > int64(len(payload)) {
		return "", fmt.Errorf("downloaded %d exceeds payload %d", downloaded, len(payload))
	}
	return CreateTestFile(dir, name+types.IncompleteSuffix, payload[:downloaded])
}

// VerifyFileSize checks if a file has the expected size.
func VerifyFileSize(path string, expectedSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() != expectedSize {
		return &FileSizeMismatchError{
			Path:     path,
			Expected: expectedSize,
			Actual:   info.Size(),
		}
	}
	return nil
}

// FileSizeMismatchError indicates a file size doesn't match expected.
type FileSizeMismatchError struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *FileSizeMismatchError) Error() string {
	return fmt.Sprintf("file size mismatch: %s (expected %d, got %d)", e.Path, e.Expected, e.Actual)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
