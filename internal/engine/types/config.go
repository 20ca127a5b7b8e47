package types

import (
	"os"
	"time"
)

// Size constants
const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB

	// IncompleteSuffix is appended to temp files while downloading
	IncompleteSuffix = ".part"
)

const (
	WorkerBuffer = 512 * KB

	// Progress events are throttled until this many bytes arrived
	// or this much time passed since the last one.
	ProgressMinBytes = 256 * KB
	ProgressInterval = 200 * time.Millisecond
)

// HTTP Client Tuning
const (
	DefaultMaxIdleConns          = 100
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 15 * time.Second
	DefaultExpectContinueTimeout = 1 * time.Second
	DialTimeout                  = 10 * time.Second
	KeepAliveDuration            = 30 * time.Second
)

// RuntimeConfig holds dynamic settings that can override defaults
type RuntimeConfig struct {
	UserAgent        string
	ProxyURL         string
	WorkerBufferSize int
	ProgressInterval time.Duration
	ProgressMinBytes int64
	TempDir          string
}

// GetUserAgent returns the configured user agent or the default
func (r *RuntimeConfig) GetUserAgent() string {
	if r == nil || r.UserAgent == "" {
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	}
	return r.UserAgent
}

// GetWorkerBufferSize returns configured value or default
func (r *RuntimeConfig) GetWorkerBufferSize() int {
	if r == nil || r.WorkerBufferSize <= 0 {
		return WorkerBuffer
	}
	return r.WorkerBufferSize
}

// GetProgressInterval returns configured value or default
func (r *RuntimeConfig) GetProgressInterval() time.Duration {
	if r == nil || r.ProgressInterval <= 0 {
		return ProgressInterval
	}
	return r.ProgressInterval
}

// GetProgressMinBytes returns configured value or default
func (r *RuntimeConfig) GetProgressMinBytes() int64 {
	if r == nil || r.ProgressMinBytes <= 0 {
		return ProgressMinBytes
	}
	return r.ProgressMinBytes
}

// GetTempDir returns the directory transfers stream into
func (r *RuntimeConfig) GetTempDir() string {
	if r == nil || r.TempDir == "" {
		return os.TempDir()
	}
	return r.TempDir
}
