package single

import (
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/testutil"
)

type failure struct {
	handle types.Handle
	data   []byte
	err    error
}

type recorder struct {
	mu       sync.Mutex
	progress []float64
	started  chan struct{}
	once     sync.Once
	finished chan types.Finished
	failed   chan failure
}

func newRecorder() *recorder {
	return &recorder{
		started:  make(chan struct{}),
		finished: make(chan types.Finished, 4),
		failed:   make(chan failure, 4),
	}
}

func (r *recorder) OnProgress(_ types.Handle, fraction float64) {
	r.mu.Lock()
	r.progress = append(r.progress, fraction)
	r.mu.Unlock()
	r.once.Do(func() { close(r.started) })
}

func (r *recorder) OnFinished(_ types.Handle, f types.Finished) { r.finished <- f }

func (r *recorder) OnFailed(h types.Handle, data []byte, err error) {
	r.failed <- failure{handle: h, data: data, err: err}
}

func (r *recorder) Progress() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.progress...)
}

func (r *recorder) waitFinished(t *testing.T) types.Finished {
	t.Helper()
	select {
	case f := <-r.finished:
		return f
	case f := <-r.failed:
		t.Fatalf("transfer failed: %v", f.err)
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for finished event")
	}
	return types.Finished{}
}

func (r *recorder) waitFailed(t *testing.T) failure {
	t.Helper()
	select {
	case f := <-r.failed:
		return f
	case <-r.finished:
		t.Fatal("transfer finished, expected failure")
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for failed event")
	}
	return failure{}
}

func newTestTransport(t *testing.T) (*Transport, *recorder) {
	t.Helper()
	tr, err := NewTransport(&types.RuntimeConfig{
		TempDir:          t.TempDir(),
		WorkerBufferSize: 4 * types.KB,
		ProgressMinBytes: 8 * types.KB,
	})
	require.NoError(t, err)
	rec := newRecorder()
	tr.SetListener(rec)
	return tr, rec
}

func TestTransport_Begin_DownloadsWholeFile(t *testing.T) {
	payload := testutil.RandomBytes(100 * types.KB)
	server := testutil.NewMockServer(payload, testutil.WithFilename("report.pdf"))
	defer server.Close()

	tr, rec := newTestTransport(t)
	h, err := tr.Begin(server.URL + "/files/report")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/files/report", h.URL)
	assert.NotEmpty(t, h.ID)

	finished := rec.waitFinished(t)
	assert.Equal(t, "report.pdf", finished.Filename)

	got, err := os.ReadFile(finished.TempPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	progress := rec.Progress()
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestTransport_Begin_RejectsInvalidLocator(t *testing.T) {
	tr, _ := newTestTransport(t)

	for _, raw := range []string{"ftp://example.com/a", "not a url", "http://", ""} {
		t.Run(raw, func(t *testing.T) {
			_, err := tr.Begin(raw)
			assert.ErrorIs(t, err, types.ErrInvalidLocator)
		})
	}
}

func TestTransport_FailureThenResume(t *testing.T) {
	payload := testutil.RandomBytes(64 * types.KB)
	server := testutil.NewMockServer(payload, testutil.WithFailAfter(20*types.KB, 1))
	defer server.Close()

	tr, rec := newTestTransport(t)
	_, err := tr.Begin(server.URL + "/data.bin")
	require.NoError(t, err)

	failed := rec.waitFailed(t)
	require.Error(t, failed.err)
	require.NotNil(t, failed.data, "a partial transfer from a range-capable server should be resumable")

	var tok resumeToken
	require.NoError(t, json.Unmarshal(failed.data, &tok))
	assert.Positive(t, tok.Offset)
	assert.LessOrEqual(t, tok.Offset, int64(20*types.KB))
	assert.Equal(t, `"v1"`, tok.ETag)

	_, err = tr.Resume(failed.data)
	require.NoError(t, err)

	finished := rec.waitFinished(t)
	got, err := os.ReadFile(finished.TempPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(1), server.RangeRequests.Load())
}

func TestTransport_Resume_RestartsWhenEntityChanged(t *testing.T) {
	payload := testutil.RandomBytes(48 * types.KB)
	server := testutil.NewMockServer(payload, testutil.WithFailAfter(16*types.KB, 1))
	defer server.Close()

	tr, rec := newTestTransport(t)
	_, err := tr.Begin(server.URL + "/data.bin")
	require.NoError(t, err)
	failed := rec.waitFailed(t)
	require.NotNil(t, failed.data)

	server.SetETag("v2")

	_, err = tr.Resume(failed.data)
	require.NoError(t, err)
	finished := rec.waitFinished(t)

	got, err := os.ReadFile(finished.TempPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got, "If-Range mismatch must restart from zero")
}

func TestTransport_Failure_WithoutRangeSupportIsTerminal(t *testing.T) {
	payload := testutil.RandomBytes(32 * types.KB)
	server := testutil.NewMockServer(payload,
		testutil.WithRangeSupport(false),
		testutil.WithFailAfter(8*types.KB, 1))
	defer server.Close()

	tr, rec := newTestTransport(t)
	_, err := tr.Begin(server.URL + "/data.bin")
	require.NoError(t, err)

	failed := rec.waitFailed(t)
	assert.Error(t, failed.err)
	assert.Nil(t, failed.data)
}

func TestTransport_Resume_RejectsBadTokens(t *testing.T) {
	tr, _ := newTestTransport(t)
	dir := t.TempDir()
	short, err := testutil.CreateTestFile(dir, "short.part", []byte("abc"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("not json")},
		{"empty object", []byte(`{}`)},
		{"missing partial file", []byte(`{"url":"http://example.com/a","temp_path":"/nonexistent/a.part","offset":10}`)},
		{"truncated partial file", mustJSON(t, resumeToken{URL: "http://example.com/a", TempPath: short, Offset: 100})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Resume(tt.data)
			assert.ErrorIs(t, err, types.ErrInvalidResumeToken)
		})
	}
}

func TestTransport_Cancel_ReturnsCheckpointAndSilencesEvents(t *testing.T) {
	payload := testutil.RandomBytes(256 * types.KB)
	server := testutil.NewMockServer(payload, testutil.WithLatency(20*time.Millisecond, 4*types.KB))
	defer server.Close()

	tr, rec := newTestTransport(t)
	h, err := tr.Begin(server.URL + "/slow.bin")
	require.NoError(t, err)

	select {
	case <-rec.started:
	case <-time.After(10 * time.Second):
		t.Fatal("no progress before timeout")
	}

	data := tr.Cancel(h)
	require.NotNil(t, data)
	seen := len(rec.Progress())

	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.Progress(), seen, "no progress after Cancel returned")
	select {
	case <-rec.finished:
		t.Fatal("finished delivered after cancel")
	case <-rec.failed:
		t.Fatal("failed delivered after cancel")
	default:
	}

	// Cancelling again is a no-op
	assert.Nil(t, tr.Cancel(h))

	_, err = tr.Resume(data)
	require.NoError(t, err)
	finished := rec.waitFinished(t)
	got, err := os.ReadFile(finished.TempPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestTransport_Cancel_UnknownHandle(t *testing.T) {
	tr, _ := newTestTransport(t)
	assert.Nil(t, tr.Cancel(types.Handle{ID: "missing", URL: "http://example.com"}))
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		in    string
		start int64
		size  int64
		ok    bool
	}{
		{"bytes 0-99/100", 0, 100, true},
		{"bytes 500-999/1000", 500, 1000, true},
		{"bytes 0-99/*", 0, 0, false},
		{"items 0-1/2", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, size, ok := parseContentRange(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.size, size)
		})
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
