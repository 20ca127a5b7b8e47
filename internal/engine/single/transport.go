// Package single implements the HTTP transport: every transfer is one
// request streamed by one goroutine into a temp file.
package single

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vfaronov/httpheader"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/utils"
)

// resumeToken is the checkpoint handed out through OnFailed and Cancel.
type resumeToken struct {
	URL      string `json:"url"`
	TempPath string `json:"temp_path"`
	Offset   int64  `json:"offset"`
	ETag     string `json:"etag,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type task struct {
	handle    types.Handle
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool

	mu       sync.Mutex
	state    resumeToken
	ranges   bool // server honours byte ranges
	finished bool
}

func (tk *task) setOffset(offset int64) {
	tk.mu.Lock()
	tk.state.Offset = offset
	tk.mu.Unlock()
}

// checkpoint returns the resume token, or nil when the transfer must restart
// from zero.
func (tk *task) checkpoint() []byte {
	tk.mu.Lock()
	defer tk.mu.Unlock()

	if tk.finished || tk.state.Offset <= 0 || !tk.ranges {
		return nil
	}
	data, err := json.Marshal(tk.state)
	if err != nil {
		return nil
	}
	return data
}

// Transport is the HTTP implementation of types.Port.
type Transport struct {
	Client  *http.Client
	Runtime *types.RuntimeConfig

	mu       sync.Mutex
	listener types.Listener
	tasks    map[string]*task
}

// NewTransport creates a transport tuned by runtime. A nil runtime uses the
// defaults.
func NewTransport(runtime *types.RuntimeConfig) (*Transport, error) {
	client, err := newClient(runtime)
	if err != nil {
		return nil, err
	}
	return &Transport{
		Client:  client,
		Runtime: runtime,
		tasks:   make(map[string]*task),
	}, nil
}

func newClient(runtime *types.RuntimeConfig) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		ExpectContinueTimeout: types.DefaultExpectContinueTimeout,
	}
	if runtime != nil && runtime.ProxyURL != "" {
		proxy, err := url.Parse(runtime.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}
	return &http.Client{Transport: transport}, nil
}

func (t *Transport) SetListener(l types.Listener) {
	t.mu.Lock()
	t.listener = l
	t.mu.Unlock()
}

// Begin starts a fresh transfer of rawURL.
func (t *Transport) Begin(rawURL string) (types.Handle, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return types.Handle{}, fmt.Errorf("%w: %q", types.ErrInvalidLocator, rawURL)
	}

	dir := t.Runtime.GetTempDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Handle{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "localcopy-*"+types.IncompleteSuffix)
	if err != nil {
		return types.Handle{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	_ = f.Close()

	return t.start(resumeToken{URL: rawURL, TempPath: f.Name()}), nil
}

// Resume continues a transfer from a token produced by this transport.
func (t *Transport) Resume(data []byte) (types.Handle, error) {
	var tok resumeToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return types.Handle{}, fmt.Errorf("%w: %v", types.ErrInvalidResumeToken, err)
	}
	if tok.URL == "" || tok.TempPath == "" || tok.Offset < 0 {
		return types.Handle{}, fmt.Errorf("%w: incomplete token", types.ErrInvalidResumeToken)
	}

	info, err := os.Stat(tok.TempPath)
	if err != nil {
		return types.Handle{}, fmt.Errorf("%w: %v", types.ErrInvalidResumeToken, err)
	}
	if info.Size() < tok.Offset {
		return types.Handle{}, fmt.Errorf("%w: partial file holds %d of %d bytes",
			types.ErrInvalidResumeToken, info.Size(), tok.Offset)
	}
	if info.Size() > tok.Offset {
		if err := os.Truncate(tok.TempPath, tok.Offset); err != nil {
			return types.Handle{}, fmt.Errorf("%w: %v", types.ErrInvalidResumeToken, err)
		}
	}

	return t.start(tok), nil
}

// Cancel stops the transfer and waits for its goroutine. A checkpoint is
// returned when bytes were written and the server accepts ranges; otherwise
// the partial file is removed.
func (t *Transport) Cancel(h types.Handle) []byte {
	t.mu.Lock()
	tk := t.tasks[h.ID]
	t.mu.Unlock()
	if tk == nil {
		return nil
	}

	tk.cancelled.Store(true)
	tk.cancel()
	<-tk.done

	data := tk.checkpoint()
	if data == nil {
		tk.mu.Lock()
		finished := tk.finished
		tk.mu.Unlock()
		if !finished {
			_ = os.Remove(tk.state.TempPath)
		}
	}
	utils.Debug("Transfer %s cancelled (resumable=%v)", h.URL, data != nil)
	return data
}

func (t *Transport) start(state resumeToken) types.Handle {
	ctx, cancel := context.WithCancel(context.Background())
	tk := &task{
		handle: types.Handle{ID: uuid.New().String(), URL: state.URL},
		cancel: cancel,
		done:   make(chan struct{}),
		state:  state,
		// A non-zero offset came from a server that honoured ranges.
		ranges: state.Offset > 0,
	}

	t.mu.Lock()
	t.tasks[tk.handle.ID] = tk
	t.mu.Unlock()

	utils.Debug("Transfer %s started for %s at offset %d", tk.handle.ID, state.URL, state.Offset)
	go t.run(ctx, tk)
	return tk.handle
}

func (t *Transport) run(ctx context.Context, tk *task) {
	defer close(tk.done)
	defer tk.cancel()
	defer func() {
		t.mu.Lock()
		delete(t.tasks, tk.handle.ID)
		t.mu.Unlock()
	}()

	finished, err := t.download(ctx, tk)
	if err != nil {
		if tk.cancelled.Load() {
			return
		}
		data := tk.checkpoint()
		if data == nil {
			_ = os.Remove(finished.TempPath)
		}
		utils.Debug("Transfer %s failed (resumable=%v): %v", tk.handle.URL, data != nil, err)
		if l := t.listenerFor(tk); l != nil {
			l.OnFailed(tk.handle, data, err)
		}
		return
	}

	tk.mu.Lock()
	tk.finished = true
	tk.mu.Unlock()

	if l := t.listenerFor(tk); l != nil {
		l.OnFinished(tk.handle, finished)
	}
}

func (t *Transport) listenerFor(tk *task) types.Listener {
	if tk.cancelled.Load() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener
}

func (t *Transport) progress(tk *task, fraction float64) {
	if fraction > 1 {
		fraction = 1
	}
	if l := t.listenerFor(tk); l != nil {
		l.OnProgress(tk.handle, fraction)
	}
}

// download performs one request. The returned Finished always carries the
// temp path, even on error.
func (t *Transport) download(ctx context.Context, tk *task) (types.Finished, error) {
	tk.mu.Lock()
	state := tk.state
	tk.mu.Unlock()
	result := types.Finished{TempPath: state.TempPath, Filename: state.Filename}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, state.URL, nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("User-Agent", t.Runtime.GetUserAgent())
	if state.Offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", state.Offset))
		// Weak validators are not allowed in If-Range
		if state.ETag != "" && !strings.HasPrefix(state.ETag, "W/") {
			req.Header.Set("If-Range", state.ETag)
		}
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		return result, err
	}
	defer func() { _ = resp.Body.Close() }()

	total := int64(-1)
	flags := os.O_WRONLY | os.O_CREATE
	switch {
	case resp.StatusCode == http.StatusPartialContent && state.Offset > 0:
		start, size, ok := parseContentRange(resp.Header.Get("Content-Range"))
		if !ok || start != state.Offset {
			t.setRanges(tk, false)
			return result, fmt.Errorf("server resumed at wrong offset (want %d, Content-Range %q)",
				state.Offset, resp.Header.Get("Content-Range"))
		}
		total = size
		flags |= os.O_APPEND
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusPartialContent:
		if state.Offset > 0 {
			utils.Debug("Transfer %s: server ignored range, restarting", tk.handle.URL)
		}
		state.Offset = 0
		total = resp.ContentLength
		flags |= os.O_TRUNC
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		t.setRanges(tk, false)
		return result, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	default:
		return result, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
		result.Filename = filepath.Base(name)
	}

	tk.mu.Lock()
	tk.state.Offset = state.Offset
	tk.state.Filename = result.Filename
	tk.state.ETag = resp.Header.Get("ETag")
	tk.ranges = resp.StatusCode == http.StatusPartialContent || resp.Header.Get("Accept-Ranges") == "bytes"
	tk.mu.Unlock()

	f, err := os.OpenFile(state.TempPath, flags, 0o644)
	if err != nil {
		return result, fmt.Errorf("failed to open temp file: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, t.Runtime.GetWorkerBufferSize())
	minBytes := t.Runtime.GetProgressMinBytes()
	interval := t.Runtime.GetProgressInterval()

	written := state.Offset
	lastBytes := written
	lastReport := time.Now()

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return result, werr
			}
			written += int64(n)
			tk.setOffset(written)

			// No progress without a known total
			if total > 0 && (written-lastBytes >= minBytes || time.Since(lastReport) >= interval) {
				t.progress(tk, float64(written)/float64(total))
				lastBytes = written
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return result, readErr
		}
	}

	if total > 0 && written < total {
		return result, fmt.Errorf("transfer ended at %d of %d bytes: %w", written, total, io.ErrUnexpectedEOF)
	}
	if err := f.Sync(); err != nil {
		return result, err
	}
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return result, err
	}

	if total > 0 {
		t.progress(tk, 1)
	}
	utils.Debug("Transfer %s complete: %d bytes", tk.handle.URL, written)
	return result, nil
}

func (t *Transport) setRanges(tk *task, ranges bool) {
	tk.mu.Lock()
	tk.ranges = ranges
	tk.mu.Unlock()
}

// parseContentRange parses "bytes start-end/size". ok is false for an
// unknown size.
func parseContentRange(v string) (start, size int64, ok bool) {
	v, found := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !found {
		return 0, 0, false
	}
	span, sizeStr, found := strings.Cut(v, "/")
	if !found {
		return 0, 0, false
	}
	startStr, _, found := strings.Cut(span, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	size, err = strconv.ParseInt(strings.TrimSpace(sizeStr), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return start, size, true
}
