// Package download moves finished transfers into the managed storage root.
package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/utils"
)

var ErrInvalidName = errors.New("invalid storage name")

// Storage owns a directory of completed downloads. Names handed out are
// relative to Root so that the root can move between runs.
type Storage struct {
	Root string

	mu sync.Mutex // held from picking a name until the file is in place
}

func NewStorage(root string) (*Storage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Storage{Root: abs}, nil
}

// MoveToPermanentStorage moves tempPath under Root, choosing a free name
// derived from suggestedName, and returns the name relative to Root.
func (s *Storage) MoveToPermanentStorage(tempPath, suggestedName string) (string, error) {
	name := sanitizeName(suggestedName)
	if name == "" {
		name = sanitizeName(strings.TrimSuffix(filepath.Base(tempPath), types.IncompleteSuffix))
	}
	if name == "" {
		name = "download"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dest := uniqueFilePath(filepath.Join(s.Root, name))
	if err := os.Rename(tempPath, dest); err != nil {
		utils.Debug("Rename %s -> %s failed (%v), copying", tempPath, dest, err)
		if cerr := copyFile(tempPath, dest); cerr != nil {
			_ = os.Remove(dest)
			return "", fmt.Errorf("failed to move %s: %w", tempPath, cerr)
		}
		_ = os.Remove(tempPath)
	}
	return filepath.Base(dest), nil
}

// ResolvePath returns the absolute path of a name produced by
// MoveToPermanentStorage.
func (s *Storage) ResolvePath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.Root, name), nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// uniqueFilePath returns a unique file path by appending (1), (2), etc. if the file exists
func uniqueFilePath(path string) string {
	if !taken(path) {
		return path
	}

	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	name := strings.TrimSuffix(filepath.Base(path), ext)

	// Continue an existing "name(N)" counter instead of nesting "name(N)(1)"
	base := name
	counter := 1
	cleanName := strings.TrimSpace(name)
	if len(cleanName) > 3 && cleanName[len(cleanName)-1] == ')' {
		if openParen := strings.LastIndexByte(cleanName, '('); openParen != -1 {
			if num, err := strconv.Atoi(cleanName[openParen+1 : len(cleanName)-1]); err == nil && num > 0 {
				base = cleanName[:openParen]
				counter = num + 1
			}
		}
	}

	for i := 0; i < 1000; i++ {
		candidate := filepath.Join(dir, base+"("+strconv.Itoa(counter+i)+")"+ext)
		if !taken(candidate) {
			return candidate
		}
	}
	return path
}

// taken reports whether path or its incomplete sibling exists.
func taken(path string) bool {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return true
	}
	_, err := os.Stat(path + types.IncompleteSuffix)
	return !os.IsNotExist(err)
}
