package single

import (
	"testing"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/testutil"
)

type benchListener struct {
	done chan types.Finished
}

func (benchListener) OnProgress(types.Handle, float64) {}

func (l benchListener) OnFinished(_ types.Handle, f types.Finished) { l.done <- f }

func (l benchListener) OnFailed(types.Handle, []byte, error) { close(l.done) }

func BenchmarkTransfer(b *testing.B) {
	payload := testutil.RandomBytes(8 * types.MB)
	server := testutil.NewMockServer(payload)
	defer server.Close()

	tr, err := NewTransport(&types.RuntimeConfig{TempDir: b.TempDir()})
	if err != nil {
		b.Fatal(err)
	}

	b.SetBytes(int64(len(payload)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l := benchListener{done: make(chan types.Finished, 1)}
		tr.SetListener(l)
		if _, err := tr.Begin(server.URL + "/bench.bin"); err != nil {
			b.Fatal(err)
		}
		if _, ok := <-l.done; !ok {
			b.Fatal("transfer failed")
		}
	}
}
