package cmd

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/surge-downloader/localcopy/internal/utils"
)

var errAlreadyRunning = errors.New("another localcopy instance is using the state directory")

type instanceLock struct {
	fl *flock.Flock
}

// acquireLock takes the exclusive instance lock in stateDir without
// blocking.
func acquireLock(stateDir string) (*instanceLock, error) {
	fl := flock.New(filepath.Join(stateDir, "localcopy.lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, errAlreadyRunning
	}
	return &instanceLock{fl: fl}, nil
}

func (l *instanceLock) release() {
	if err := l.fl.Unlock(); err != nil {
		utils.Debug("Error releasing lock: %v", err)
	}
}
