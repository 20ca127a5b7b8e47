package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// EnsureAbsPath expands a leading ~ and makes path absolute.
func EnsureAbsPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
