// Package loader holds the clients of the orchestrator: a generic file
// fetcher and decoders for images and 3D models.
package loader

import (
	"context"
	"os"

	"github.com/surge-downloader/localcopy/internal/core"
)

// Resolver produces the local copy of a locator.
type Resolver interface {
	Resolve(ctx context.Context, locator string) (string, error)
}

// Files fetches arbitrary resources.
type Files struct {
	resolver Resolver
}

func NewFiles(r Resolver) *Files {
	return &Files{resolver: r}
}

// Fetch returns the local path of locator.
func (f *Files) Fetch(ctx context.Context, locator string) (string, error) {
	return f.resolver.Resolve(ctx, locator)
}

// Read returns the bytes of locator.
func (f *Files) Read(ctx context.Context, locator string) ([]byte, error) {
	path, err := f.resolver.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewError(core.KindGeneric, locator, err)
	}
	return data, nil
}
