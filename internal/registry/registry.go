// Package registry keeps the persisted classification of every known download
// into active, interrupted and completed, plus the progress of active ones.
//
// The registry holds no cache. Every call reads the backend, and every
// mutation is a read-modify-write done under one lock and written back in a
// single backend Set, so an identity is never observed in two collections.
package registry

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/surge-downloader/localcopy/internal/utils"
)

// Backend keys owned by the registry.
const (
	ActiveKey      = "activeDownloads"
	InterruptedKey = "interruptedDownloads"
	CompletedKey   = "completedDownloads"
	ProgressKey    = "downloadProgress"
)

// ErrNotFound is returned by a Backend when a key holds no value.
var ErrNotFound = errors.New("registry: key not found")

// Backend is the key-value store the registry serializes into.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(key string) ([]byte, error)
	// Set stores every value in one atomic write: either all keys are
	// updated or none are.
	Set(values map[string][]byte) error
}

// Registry is the authoritative store of download state.
type Registry struct {
	backend Backend
	mu      sync.Mutex
}

// New returns a Registry persisting into backend.
func New(backend Backend) *Registry {
	return &Registry{backend: backend}
}

// ListActive returns the active downloads, newest first.
func (r *Registry) ListActive() []Download {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active()
}

// ListInterrupted returns the interrupted downloads, newest first.
func (r *Registry) ListInterrupted() []InterruptedDownload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted()
}

// ListCompleted returns the completed downloads, newest first.
func (r *Registry) ListCompleted() []CompletedDownload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed()
}

// AddDownload inserts d at the front of the active list. It does not check
// for duplicates.
func (r *Registry) AddDownload(d Download) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := append([]Download{d}, r.active()...)
	r.write(map[string]any{ActiveKey: active})
}

// AddInterrupted removes i.Download from the active list and inserts i at the
// front of the interrupted list.
func (r *Registry) AddInterrupted(i InterruptedDownload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := removeDownload(r.active(), i.Download)
	interrupted := append([]InterruptedDownload{i}, r.interrupted()...)
	r.write(map[string]any{
		ActiveKey:      active,
		InterruptedKey: interrupted,
	})
}

// AddCompleted retires c.Download from the active and interrupted lists,
// inserts c at the front of the completed list and clears its progress.
func (r *Registry) AddCompleted(c CompletedDownload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := removeDownload(r.active(), c.Download)

	var interrupted []InterruptedDownload
	for _, i := range r.interrupted() {
		if i.Download != c.Download {
			interrupted = append(interrupted, i)
		}
	}

	completed := append([]CompletedDownload{c}, r.completed()...)

	progress := r.progress()
	delete(progress, c.Download.ID)

	r.write(map[string]any{
		ActiveKey:      active,
		InterruptedKey: interrupted,
		CompletedKey:   completed,
		ProgressKey:    progress,
	})
}

// ResumeInterrupted removes i from the interrupted list and inserts its
// download at the front of the active list.
func (r *Registry) ResumeInterrupted(i InterruptedDownload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var interrupted []InterruptedDownload
	for _, existing := range r.interrupted() {
		if !existing.Equal(i) {
			interrupted = append(interrupted, existing)
		}
	}

	active := append([]Download{i.Download}, r.active()...)
	r.write(map[string]any{
		ActiveKey:      active,
		InterruptedKey: interrupted,
	})
}

// RemoveActive drops d from the active list together with its progress. It
// is used when a transfer ends with nothing left to resume.
func (r *Registry) RemoveActive(d Download) {
	r.mu.Lock()
	defer r.mu.Unlock()

	progress := r.progress()
	delete(progress, d.ID)

	r.write(map[string]any{
		ActiveKey:   removeDownload(r.active(), d),
		ProgressKey: progress,
	})
}

// SetProgress records the progress of the download identified by id.
func (r *Registry) SetProgress(id string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	progress := r.progress()
	progress[id] = value
	r.write(map[string]any{ProgressKey: progress})
}

// Progress returns the recorded progress of id, if any.
func (r *Registry) Progress(id string) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.progress()[id]
	return value, ok
}

// FindActive returns the active download with the given identity.
func (r *Registry) FindActive(id string) (Download, bool) {
	for _, d := range r.ListActive() {
		if d.ID == id {
			return d, true
		}
	}
	return Download{}, false
}

// FindActiveByURL returns the active download started from url.
func (r *Registry) FindActiveByURL(url string) (Download, bool) {
	for _, d := range r.ListActive() {
		if d.URL == url {
			return d, true
		}
	}
	return Download{}, false
}

// FindInterrupted returns the most recent interrupted entry for id.
func (r *Registry) FindInterrupted(id string) (InterruptedDownload, bool) {
	for _, i := range r.ListInterrupted() {
		if i.Download.ID == id {
			return i, true
		}
	}
	return InterruptedDownload{}, false
}

// FindCompleted returns the completed entry for id.
func (r *Registry) FindCompleted(id string) (CompletedDownload, bool) {
	for _, c := range r.ListCompleted() {
		if c.Download.ID == id {
			return c, true
		}
	}
	return CompletedDownload{}, false
}

func (r *Registry) active() []Download {
	var v []Download
	r.read(ActiveKey, &v)
	return v
}

func (r *Registry) interrupted() []InterruptedDownload {
	var v []InterruptedDownload
	r.read(InterruptedKey, &v)
	return v
}

func (r *Registry) completed() []CompletedDownload {
	var v []CompletedDownload
	r.read(CompletedKey, &v)
	return v
}

func (r *Registry) progress() map[string]float64 {
	var v map[string]float64
	r.read(ProgressKey, &v)
	if v == nil {
		v = make(map[string]float64)
	}
	return v
}

// read decodes key into dst. Missing or undecodable values leave dst empty.
func (r *Registry) read(key string, dst any) {
	data, err := r.backend.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			utils.Debug("registry: read %s failed: %v", key, err)
		}
		return
	}
	if err := json.Unmarshal(data, dst); err != nil {
		utils.Debug("registry: decode %s failed: %v", key, err)
	}
}

// write encodes every value and hands them to the backend in one Set.
// Failures are logged and dropped.
func (r *Registry) write(values map[string]any) {
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			utils.Debug("registry: encode %s failed: %v", key, err)
			return
		}
		encoded[key] = data
	}
	if err := r.backend.Set(encoded); err != nil {
		utils.Debug("registry: write failed: %v", err)
	}
}

func removeDownload(list []Download, d Download) []Download {
	var out []Download
	for _, existing := range list {
		if existing != d {
			out = append(out, existing)
		}
	}
	return out
}
