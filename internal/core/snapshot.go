package core

import (
	"os"

	"github.com/surge-downloader/localcopy/internal/registry"
)

// ActiveEntry is an active download with its last reported progress.
type ActiveEntry struct {
	registry.Download
	Progress float64
	InFlight bool
}

// CompletedEntry is a completed download resolved against storage.
type CompletedEntry struct {
	registry.CompletedDownload
	Path string
	Size int64 // -1 when the file is missing
}

// Snapshot is a point-in-time listing of the registry.
type Snapshot struct {
	Active      []ActiveEntry
	Interrupted []registry.InterruptedDownload
	Completed   []CompletedEntry
}

// Snapshot lists the registry, newest first within each group.
func (o *Orchestrator) Snapshot() Snapshot {
	var snap Snapshot
	for _, d := range o.registry.ListActive() {
		snap.Active = append(snap.Active, ActiveEntry{
			Download: d,
			Progress: o.Progress(d.ID),
			InFlight: o.InFlight(d.ID),
		})
	}
	snap.Interrupted = o.registry.ListInterrupted()
	for _, c := range o.registry.ListCompleted() {
		entry := CompletedEntry{CompletedDownload: c, Size: -1}
		if path, err := o.storage.ResolvePath(c.LocalPath); err == nil {
			entry.Path = path
			if info, err := os.Stat(path); err == nil {
				entry.Size = info.Size()
			}
		}
		snap.Completed = append(snap.Completed, entry)
	}
	return snap
}
