package core

import (
	"fmt"

	"github.com/surge-downloader/localcopy/internal/download"
	"github.com/surge-downloader/localcopy/internal/engine/single"
	"github.com/surge-downloader/localcopy/internal/engine/state"
	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/registry"
)

// Options configures a LocalService.
type Options struct {
	Backend    string // state.Kind*
	StateDir   string
	StorageDir string
	Runtime    *types.RuntimeConfig
	// Port overrides the HTTP transport.
	Port types.Port
}

// LocalService runs the orchestrator in-process over a persistent store.
type LocalService struct {
	*Orchestrator
	store state.Store
}

// NewLocalService opens the state store and wires registry, transport and
// storage into an orchestrator.
func NewLocalService(opts Options) (*LocalService, error) {
	store, err := state.Open(opts.Backend, opts.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state: %w", err)
	}

	storage, err := download.NewStorage(opts.StorageDir)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	port := opts.Port
	if port == nil {
		transport, err := single.NewTransport(opts.Runtime)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		port = transport
	}

	return &LocalService{
		Orchestrator: NewOrchestrator(registry.New(store), port, storage),
		store:        store,
	}, nil
}

// Close interrupts in-flight transfers, then closes the store.
func (s *LocalService) Close() error {
	if err := s.Orchestrator.Close(); err != nil {
		return err
	}
	return s.store.Close()
}
