package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vfaronov/httpheader"
)

// MockServer serves one payload with optional byte-range support.
type MockServer struct {
	*httptest.Server

	data          []byte
	rangeSupport  bool
	filename      string
	chunkSize     int
	latency       time.Duration
	failAfter     int64
	failRemaining atomic.Int64

	mu   sync.Mutex
	etag string

	Requests      atomic.Int64
	RangeRequests atomic.Int64
}

// ServerOption configures a MockServer.
type ServerOption func(*MockServer)

// WithRangeSupport toggles Accept-Ranges and 206 responses.
func WithRangeSupport(enabled bool) ServerOption {
	return func(s *MockServer) { s.rangeSupport = enabled }
}

// WithFilename sends a Content-Disposition attachment filename.
func WithFilename(name string) ServerOption {
	return func(s *MockServer) { s.filename = name }
}

// WithLatency sleeps between body chunks.
func WithLatency(d time.Duration, chunkSize int) ServerOption {
	return func(s *MockServer) {
		s.latency = d
		s.chunkSize = chunkSize
	}
}

// WithFailAfter aborts the first n responses after limit body bytes.
func WithFailAfter(limit int64, n int) ServerOption {
	return func(s *MockServer) {
		s.failAfter = limit
		s.failRemaining.Store(int64(n))
	}
}

// NewMockServer starts a server returning data for every path.
func NewMockServer(data []byte, opts ...ServerOption) *MockServer {
	s := &MockServer{
		data:         data,
		rangeSupport: true,
		chunkSize:    32 * 1024,
		failAfter:    -1,
		etag:         "v1",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetETag changes the entity tag, invalidating earlier If-Range requests.
func (s *MockServer) SetETag(tag string) {
	s.mu.Lock()
	s.etag = tag
	s.mu.Unlock()
}

func (s *MockServer) currentETag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.etag
}

func (s *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	s.Requests.Add(1)

	etag := s.currentETag()
	httpheader.SetETag(w.Header(), httpheader.EntityTag{Opaque: etag})
	if s.filename != "" {
		httpheader.SetContentDisposition(w.Header(), "attachment", s.filename, nil)
	}
	w.Header().Set("Content-Type", "application/octet-stream")

	start := int64(0)
	status := http.StatusOK
	if s.rangeSupport {
		w.Header().Set("Accept-Ranges", "bytes")
		if rng := r.Header.Get("Range"); rng != "" {
			s.RangeRequests.Add(1)
			ifRange := r.Header.Get("If-Range")
			if ifRange == "" || ifRange == `"`+etag+`"` {
				offset, ok := parseRangeStart(rng)
				if !ok || offset >= int64(len(s.data)) {
					w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(s.data)))
					w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
					return
				}
				start = offset
				status = http.StatusPartialContent
				w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(s.data)-1, len(s.data)))
			}
		}
	}

	body := s.data[start:]
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)

	limit := int64(-1)
	if s.failAfter >= 0 && s.failRemaining.Add(-1) >= 0 {
		limit = s.failAfter
	}

	flusher, _ := w.(http.Flusher)
	var sent int64
	for len(body) > 0 {
		n := min(s.chunkSize, len(body))
		if limit >= 0 && sent+int64(n) > limit {
			n = int(limit - sent)
		}
		if n > 0 {
			if _, err := w.Write(body[:n]); err != nil {
				return
			}
			sent += int64(n)
			body = body[n:]
			if flusher != nil {
				flusher.Flush()
			}
		}
		if limit >= 0 && sent >= limit {
			// Drop the connection mid-body
			panic(http.ErrAbortHandler)
		}
		if s.latency > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.latency):
			}
		}
	}
}

func parseRangeStart(v string) (int64, bool) {
	rng, ok := strings.CutPrefix(v, "bytes=")
	if !ok {
		return 0, false
	}
	startStr, _, ok := strings.Cut(rng, "-")
	if !ok {
		return 0, false
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return 0, false
	}
	return start, true
}
