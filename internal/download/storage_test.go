package download

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/localcopy/internal/testutil"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)
	return s
}

func TestStorage_MoveToPermanentStorage(t *testing.T) {
	s := newTestStorage(t)
	tmp, err := testutil.CreateTestFile(t.TempDir(), "x.part", []byte("payload"))
	require.NoError(t, err)

	name, err := s.MoveToPermanentStorage(tmp, "cat.png")
	require.NoError(t, err)
	assert.Equal(t, "cat.png", name)
	assert.False(t, testutil.FileExists(tmp), "temp file should be gone")

	path, err := s.ResolvePath(name)
	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestStorage_MoveAvoidsCollisions(t *testing.T) {
	s := newTestStorage(t)
	src := t.TempDir()

	var names []string
	for i := 0; i < 3; i++ {
		tmp, err := testutil.CreateTestFile(src, "t.part", []byte{byte(i)})
		require.NoError(t, err)
		name, err := s.MoveToPermanentStorage(tmp, "cat.png")
		require.NoError(t, err)
		names = append(names, name)
	}
	assert.Equal(t, []string{"cat.png", "cat(1).png", "cat(2).png"}, names)
}

func TestStorage_MoveSanitizesSuggestedName(t *testing.T) {
	tests := []struct {
		suggested string
		want      string
	}{
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\doc.txt`, "doc.txt"},
		{"  spaced.bin  ", "spaced.bin"},
		{"", "localcopy-1"},
		{"..", "localcopy-1"},
	}
	for _, tt := range tests {
		t.Run(tt.suggested, func(t *testing.T) {
			s := newTestStorage(t)
			tmp, err := testutil.CreateTestFile(t.TempDir(), "localcopy-1.part", []byte("x"))
			require.NoError(t, err)

			name, err := s.MoveToPermanentStorage(tmp, tt.suggested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, name)
		})
	}
}

func TestStorage_MoveMissingTempFile(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.MoveToPermanentStorage(filepath.Join(t.TempDir(), "gone.part"), "a.bin")
	assert.Error(t, err)
}

func TestStorage_ResolvePathRejectsTraversal(t *testing.T) {
	s := newTestStorage(t)
	for _, name := range []string{"", ".", "..", "../x", "a/b"} {
		_, err := s.ResolvePath(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestStorage_ConcurrentMovesUnderOneName(t *testing.T) {
	s := newTestStorage(t)
	tmpDir := t.TempDir()

	const n = 8
	temps := make([]string, n)
	for i := range temps {
		tmp, err := testutil.CreateTestFile(tmpDir, fmt.Sprintf("t%d.part", i), []byte(fmt.Sprintf("content-%d", i)))
		require.NoError(t, err)
		temps[i] = tmp
	}

	names := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range temps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			names[i], errs[i] = s.MoveToPermanentStorage(temps[i], "cat.png")
		}()
	}
	close(start)
	wg.Wait()

	seen := make(map[string]bool)
	for i := range names {
		require.NoError(t, errs[i])
		assert.False(t, seen[names[i]], "name %s handed out twice", names[i])
		seen[names[i]] = true

		path, err := s.ResolvePath(names[i])
		require.NoError(t, err)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("content-%d", i), string(got))
	}

	entries, err := os.ReadDir(s.Root)
	require.NoError(t, err)
	assert.Len(t, entries, n)
}
