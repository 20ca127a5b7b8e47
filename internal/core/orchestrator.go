package core

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/registry"
	"github.com/surge-downloader/localcopy/internal/source"
	"github.com/surge-downloader/localcopy/internal/utils"
)

// Result is the terminal outcome delivered to every waiter of a transfer.
type Result struct {
	Completed registry.CompletedDownload
	Err       error
}

// Storage is the filesystem side of a completed download.
type Storage interface {
	MoveToPermanentStorage(tempPath, suggestedName string) (string, error)
	ResolvePath(name string) (string, error)
}

// transfer is one in-flight transport task and everyone waiting on it.
type transfer struct {
	download registry.Download
	handle   types.Handle // zero until Begin or Resume returns
	waiters  []chan Result
}

// Orchestrator resolves locators to local files, running at most one
// transfer per identity.
type Orchestrator struct {
	registry *registry.Registry
	port     types.Port
	storage  Storage

	mu        sync.Mutex
	transfers map[string]*transfer // by identity
	closed    bool
	starting  sync.WaitGroup // Begin/Resume calls not yet settled
}

// NewOrchestrator wires the orchestrator as the listener of port.
func NewOrchestrator(reg *registry.Registry, port types.Port, storage Storage) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		port:      port,
		storage:   storage,
		transfers: make(map[string]*transfer),
	}
	port.SetListener(&bridge{o: o})
	return o
}

// Registry returns the registry the orchestrator records into.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Resolve returns the absolute path of the local copy of locator,
// downloading or resuming it first when needed. Cancelling ctx stops the
// wait; the transfer itself keeps running for other callers.
func (o *Orchestrator) Resolve(ctx context.Context, locator string) (string, error) {
	select {
	case res := <-o.ResolveAsync(locator):
		if res.Err != nil {
			return "", res.Err
		}
		path, err := o.storage.ResolvePath(res.Completed.LocalPath)
		if err != nil {
			return "", NewError(KindGeneric, locator, err)
		}
		return path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ResolveAsync is Resolve delivering through a channel. The channel
// receives exactly one Result.
func (o *Orchestrator) ResolveAsync(locator string) <-chan Result {
	id, err := source.Identity(locator)
	if err != nil {
		ch := make(chan Result, 1)
		ch <- Result{Err: NewError(KindInvalidLocator, locator, err)}
		return ch
	}
	return o.StartOrResume(registry.Download{ID: id, URL: source.Normalize(locator)})
}

// StartOrResume resumes d from its interrupted entry if one exists and
// otherwise begins a fresh transfer. A request for an identity already in
// flight joins that transfer.
func (o *Orchestrator) StartOrResume(d registry.Download) <-chan Result {
	return o.start(d, nil)
}

// Resume continues i from its resume data.
func (o *Orchestrator) Resume(i registry.InterruptedDownload) <-chan Result {
	return o.start(i.Download, &i)
}

func (o *Orchestrator) start(d registry.Download, interrupted *registry.InterruptedDownload) <-chan Result {
	ch := make(chan Result, 1)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		ch <- Result{Err: NewError(KindGeneric, d.URL, ErrClosed)}
		return ch
	}
	if t, ok := o.transfers[d.ID]; ok {
		t.waiters = append(t.waiters, ch)
		n := len(t.waiters)
		o.mu.Unlock()
		utils.Debug("Joined in-flight transfer of %s (%d waiters)", d.ID, n)
		return ch
	}
	if c, ok := o.registry.FindCompleted(d.ID); ok {
		o.mu.Unlock()
		ch <- Result{Completed: c}
		return ch
	}

	if interrupted == nil {
		if i, ok := o.registry.FindInterrupted(d.ID); ok {
			interrupted = &i
		}
	}

	t := &transfer{download: d, waiters: []chan Result{ch}}
	switch {
	case interrupted != nil:
		t.download = interrupted.Download
		o.registry.ResumeInterrupted(*interrupted)
		utils.Debug("Resuming %s", d.ID)
	default:
		if existing, ok := o.registry.FindActive(d.ID); ok {
			// Left active by a process that exited without a checkpoint
			t.download = existing
			utils.Debug("Restarting stale active download %s", d.ID)
		} else {
			o.registry.AddDownload(d)
			utils.Debug("Starting %s", d.ID)
		}
	}
	o.transfers[d.ID] = t
	o.starting.Add(1)
	o.mu.Unlock()
	defer o.starting.Done()

	var (
		h   types.Handle
		err error
	)
	if interrupted != nil {
		h, err = o.port.Resume(interrupted.ResumeData)
	} else {
		h, err = o.port.Begin(t.download.URL)
	}
	if err != nil {
		o.reject(t, err)
		return ch
	}

	o.mu.Lock()
	live := o.transfers[d.ID] == t
	if live {
		t.handle = h
	}
	closed := o.closed
	o.mu.Unlock()

	if live && closed {
		// Close ran before the handle was known
		o.cancel(t)
	}
	return ch
}

// reject handles a transport refusing to start: the download is dropped
// and its waiters fail.
func (o *Orchestrator) reject(t *transfer, err error) {
	utils.Debug("Transport rejected %s: %v", t.download.ID, err)

	o.mu.Lock()
	if o.transfers[t.download.ID] == t {
		delete(o.transfers, t.download.ID)
	}
	o.registry.RemoveActive(t.download)
	waiters := t.waiters
	o.mu.Unlock()

	notify(waiters, Result{Err: NewError(kindOf(err), t.download.URL, err)})
}

// Close cancels every in-flight transfer. Transfers that yield a
// checkpoint become interrupted; the others are abandoned. Waiters receive
// an error wrapping ErrClosed. Close returns once transfers still being
// started have settled, so no registry write follows it.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	var pending []*transfer
	for _, t := range o.transfers {
		if t.handle.ID != "" {
			pending = append(pending, t)
		}
	}
	o.mu.Unlock()

	for _, t := range pending {
		o.cancel(t)
	}
	o.starting.Wait()
	return nil
}

func (o *Orchestrator) cancel(t *transfer) {
	data := o.port.Cancel(t.handle)

	o.mu.Lock()
	if o.transfers[t.download.ID] != t {
		// Finished while being cancelled
		o.mu.Unlock()
		return
	}
	delete(o.transfers, t.download.ID)
	if data != nil {
		if d, ok := o.registry.FindActiveByURL(t.handle.URL); ok {
			o.registry.AddInterrupted(registry.InterruptedDownload{Download: d, ResumeData: data})
			utils.Debug("Interrupted %s on shutdown", d.ID)
		} else {
			utils.Debug("Cancelled %s is no longer active, skipping", t.handle.URL)
		}
	} else {
		utils.Debug("Abandoned %s on shutdown", t.download.ID)
	}
	waiters := t.waiters
	o.mu.Unlock()

	notify(waiters, Result{Err: NewError(KindGeneric, t.download.URL, ErrClosed)})
}

// finish releases the waiters of the transfer started from url.
func (o *Orchestrator) finish(url string, res Result) {
	o.mu.Lock()
	var t *transfer
	for id, candidate := range o.transfers {
		if candidate.download.URL == url {
			t = candidate
			delete(o.transfers, id)
			break
		}
	}
	o.mu.Unlock()

	if t == nil {
		return
	}
	notify(t.waiters, res)
}

// InFlight reports whether a transfer for id is running.
func (o *Orchestrator) InFlight(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.transfers[id]
	return ok
}

// Progress returns the progress of id, or 0 when unknown.
func (o *Orchestrator) Progress(id string) float64 {
	p, _ := o.registry.Progress(id)
	return p
}

// LocalPath returns the absolute path of a completed download.
func (o *Orchestrator) LocalPath(id string) (string, bool) {
	c, ok := o.registry.FindCompleted(id)
	if !ok {
		return "", false
	}
	path, err := o.storage.ResolvePath(c.LocalPath)
	if err != nil {
		utils.Debug("Completed %s has unusable path %q: %v", id, c.LocalPath, err)
		return "", false
	}
	return path, true
}

// ReadData returns the bytes of a completed download.
func (o *Orchestrator) ReadData(id string) ([]byte, bool) {
	path, ok := o.LocalPath(id)
	if !ok {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		utils.Debug("Reading %s failed: %v", path, err)
		return nil, false
	}
	return data, true
}

func notify(waiters []chan Result, res Result) {
	for _, ch := range waiters {
		ch <- res
	}
}

// IsClosed reports whether err was caused by Close.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}
