package core

import (
	"context"
)

// DownloadService is what the CLI needs from the download engine.
type DownloadService interface {
	// Resolve returns the local path of locator, downloading it if needed.
	Resolve(ctx context.Context, locator string) (string, error)

	// Progress returns the progress of the identity, 0 when unknown.
	Progress(id string) float64

	// LocalPath returns the local path of a completed identity.
	LocalPath(id string) (string, bool)

	// Snapshot lists every known download.
	Snapshot() Snapshot

	// Close cancels in-flight transfers and releases the state store.
	Close() error
}

var _ DownloadService = (*LocalService)(nil)
