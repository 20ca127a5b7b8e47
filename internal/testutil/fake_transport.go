package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/surge-downloader/localcopy/internal/engine/types"
)

const resumePrefix = "resume:"

// ResumeToken is the token FakeTransport accepts for url.
func ResumeToken(url string) []byte {
	return []byte(resumePrefix + url)
}

// FakeTransport is a types.Port whose events are emitted by the test.
type FakeTransport struct {
	// TempDir receives the files written by Finish.
	TempDir string
	// CancelData maps a URL to the token Cancel returns for it.
	CancelData map[string][]byte
	// BeforeStart, when set, runs inside Begin and Resume before the
	// handle exists. Tests use it to hold a start open.
	BeforeStart func(url string)

	mu       sync.Mutex
	listener types.Listener
	next     int
	handles  map[string]types.Handle // by URL
	begins   []string
	resumes  [][]byte
	started  chan types.Handle
}

func NewFakeTransport(tempDir string) *FakeTransport {
	return &FakeTransport{
		TempDir:    tempDir,
		CancelData: make(map[string][]byte),
		handles:    make(map[string]types.Handle),
		started:    make(chan types.Handle, 64),
	}
}

func (f *FakeTransport) SetListener(l types.Listener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
}

func (f *FakeTransport) Begin(url string) (types.Handle, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return types.Handle{}, fmt.Errorf("%w: %q", types.ErrInvalidLocator, url)
	}
	f.mu.Lock()
	f.begins = append(f.begins, url)
	f.mu.Unlock()
	if f.BeforeStart != nil {
		f.BeforeStart(url)
	}
	return f.open(url), nil
}

func (f *FakeTransport) Resume(data []byte) (types.Handle, error) {
	url, ok := strings.CutPrefix(string(data), resumePrefix)
	if !ok || url == "" {
		return types.Handle{}, fmt.Errorf("%w: %q", types.ErrInvalidResumeToken, data)
	}
	f.mu.Lock()
	f.resumes = append(f.resumes, append([]byte(nil), data...))
	f.mu.Unlock()
	if f.BeforeStart != nil {
		f.BeforeStart(url)
	}
	return f.open(url), nil
}

func (f *FakeTransport) Cancel(h types.Handle) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.handles[h.URL]; !ok || cur.ID != h.ID {
		return nil
	}
	delete(f.handles, h.URL)
	return f.CancelData[h.URL]
}

func (f *FakeTransport) open(url string) types.Handle {
	f.mu.Lock()
	f.next++
	h := types.Handle{ID: fmt.Sprintf("fake-%d", f.next), URL: url}
	f.handles[url] = h
	f.mu.Unlock()

	f.started <- h
	return h
}

// Started returns the channel every new handle is published on.
func (f *FakeTransport) Started() <-chan types.Handle {
	return f.started
}

// Handle returns the live handle for url.
func (f *FakeTransport) Handle(url string) (types.Handle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handles[url]
	return h, ok
}

func (f *FakeTransport) Begins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.begins...)
}

func (f *FakeTransport) Resumes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.resumes...)
}

func (f *FakeTransport) currentListener() types.Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

// Progress emits a progress event for url.
func (f *FakeTransport) Progress(url string, fraction float64) {
	h, ok := f.Handle(url)
	if !ok {
		return
	}
	f.currentListener().OnProgress(h, fraction)
}

// Finish writes content to a temp file and emits a finished event for url.
func (f *FakeTransport) Finish(url string, content []byte) (string, error) {
	h, ok := f.Handle(url)
	if !ok {
		return "", fmt.Errorf("no transfer for %s", url)
	}
	tmp, err := os.CreateTemp(f.TempDir, "fake-*"+types.IncompleteSuffix)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	f.mu.Lock()
	delete(f.handles, url)
	f.mu.Unlock()

	f.currentListener().OnFinished(h, types.Finished{
		TempPath: tmp.Name(),
		Filename: filepath.Base(url),
	})
	return tmp.Name(), nil
}

// Fail emits a failed event for url carrying token.
func (f *FakeTransport) Fail(url string, token []byte, err error) {
	h, ok := f.Handle(url)
	if !ok {
		return
	}
	f.mu.Lock()
	delete(f.handles, url)
	f.mu.Unlock()

	f.currentListener().OnFailed(h, token, err)
}
