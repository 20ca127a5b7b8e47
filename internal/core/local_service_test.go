package core_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/localcopy/internal/core"
	"github.com/surge-downloader/localcopy/internal/engine/state"
	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/testutil"
)

func newLocalService(t *testing.T, stateDir, storageDir string) *core.LocalService {
	t.Helper()
	svc, err := core.NewLocalService(core.Options{
		Backend:    state.KindSQLite,
		StateDir:   stateDir,
		StorageDir: storageDir,
		Runtime: &types.RuntimeConfig{
			TempDir:          filepath.Join(stateDir, "partial"),
			WorkerBufferSize: 4 * types.KB,
			ProgressMinBytes: 4 * types.KB,
		},
	})
	require.NoError(t, err)
	return svc
}

func TestLocalService_ResolveOverHTTP(t *testing.T) {
	payload := testutil.RandomBytes(64 * types.KB)
	server := testutil.NewMockServer(payload, testutil.WithFilename("mesh.glb"))
	defer server.Close()

	base := t.TempDir()
	svc := newLocalService(t, filepath.Join(base, "state"), filepath.Join(base, "files"))
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	path, err := svc.Resolve(ctx, server.URL+"/models/42")
	require.NoError(t, err)
	assert.Equal(t, "mesh.glb", filepath.Base(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Served from the registry the second time
	again, err := svc.Resolve(ctx, server.URL+"/models/42")
	require.NoError(t, err)
	assert.Equal(t, path, again)
	assert.Equal(t, int64(1), server.Requests.Load())
}

func TestLocalService_InterruptedOnCloseResumesAfterRestart(t *testing.T) {
	payload := testutil.RandomBytes(256 * types.KB)
	server := testutil.NewMockServer(payload, testutil.WithLatency(10*time.Millisecond, 4*types.KB))
	defer server.Close()

	base := t.TempDir()
	stateDir := filepath.Join(base, "state")
	storageDir := filepath.Join(base, "files")
	url := server.URL + "/big.bin"

	svc := newLocalService(t, stateDir, storageDir)
	ch := svc.ResolveAsync(url)

	id := identity(t, url)
	require.Eventually(t, func() bool { return svc.Progress(id) > 0 }, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Close())
	res := <-ch
	assert.True(t, core.IsClosed(res.Err))

	// Second process over the same state
	svc = newLocalService(t, stateDir, storageDir)
	defer func() { _ = svc.Close() }()

	snap := svc.Snapshot()
	require.Len(t, snap.Interrupted, 1)
	assert.Empty(t, snap.Active)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	path, err := svc.Resolve(ctx, url)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(1), server.RangeRequests.Load(), "restart must resume with a range request")
}
