package core

import (
	"errors"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/registry"
	"github.com/surge-downloader/localcopy/internal/source"
	"github.com/surge-downloader/localcopy/internal/utils"
)

var errUnknownTransfer = errors.New("transfer no longer matches an active download")

// bridge turns transport events into registry transitions and waiter
// notifications. Each handle's events arrive in order from one goroutine;
// different handles may deliver concurrently.
type bridge struct {
	o *Orchestrator
}

var _ types.Listener = (*bridge)(nil)

func (b *bridge) OnProgress(h types.Handle, fraction float64) {
	d, ok := b.o.registry.FindActiveByURL(h.URL)
	if !ok {
		return
	}
	b.o.registry.SetProgress(d.ID, fraction)
}

func (b *bridge) OnFinished(h types.Handle, f types.Finished) {
	d, ok := b.o.registry.FindActiveByURL(h.URL)
	if !ok {
		utils.Debug("Finished event for %s has no active download, dropped", h.URL)
		b.o.finish(h.URL, Result{Err: NewError(KindGeneric, h.URL, errUnknownTransfer)})
		return
	}

	name := f.Filename
	if name == "" {
		name = source.SuggestedName(d.URL)
	}
	localPath, err := b.o.storage.MoveToPermanentStorage(f.TempPath, name)
	if err != nil {
		// The registry keeps the download active; the next request restarts it.
		utils.Debug("Moving %s into storage failed: %v", d.ID, err)
		b.o.finish(h.URL, Result{Err: NewError(KindGeneric, d.URL, err)})
		return
	}

	c := registry.CompletedDownload{Download: d, LocalPath: localPath}
	b.o.registry.AddCompleted(c)
	utils.Debug("Completed %s -> %s", d.ID, localPath)
	b.o.finish(h.URL, Result{Completed: c})
}

func (b *bridge) OnFailed(h types.Handle, resumeData []byte, err error) {
	if err == nil {
		err = errors.New("transfer failed")
	}

	if d, ok := b.o.registry.FindActiveByURL(h.URL); ok {
		if resumeData != nil {
			b.o.registry.AddInterrupted(registry.InterruptedDownload{Download: d, ResumeData: resumeData})
			utils.Debug("Interrupted %s: %v", d.ID, err)
		} else {
			b.o.registry.RemoveActive(d)
			utils.Debug("Failed %s without checkpoint: %v", d.ID, err)
		}
	} else {
		utils.Debug("Failed event for %s has no active download: %v", h.URL, err)
	}

	b.o.finish(h.URL, Result{Err: NewError(KindGeneric, h.URL, err)})
}
