package loader

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surge-downloader/localcopy/internal/core"
	"github.com/surge-downloader/localcopy/internal/download"
	"github.com/surge-downloader/localcopy/internal/engine/state"
	"github.com/surge-downloader/localcopy/internal/registry"
	"github.com/surge-downloader/localcopy/internal/testutil"
)

// stubResolver maps locators to files already on disk.
type stubResolver map[string]string

func (s stubResolver) Resolve(_ context.Context, locator string) (string, error) {
	path, ok := s[locator]
	if !ok {
		return "", core.NewError(core.KindGeneric, locator, errors.New("not found"))
	}
	return path, nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func glbBytes(json string) []byte {
	for len(json)%4 != 0 {
		json += " "
	}
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.LittleEndian, uint32(glbMagic))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(glbHeaderLen+8+len(json)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(json)))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(glbChunkJSON))
	buf.WriteString(json)
	return buf.Bytes()
}

func TestImages_Load(t *testing.T) {
	dir := t.TempDir()
	good, err := testutil.CreateTestFile(dir, "cat.png", pngBytes(t))
	require.NoError(t, err)
	bad, err := testutil.CreateTestFile(dir, "fake.png", []byte("definitely not an image"))
	require.NoError(t, err)
	truncated, err := testutil.CreateTestFile(dir, "cut.png", pngBytes(t)[:40])
	require.NoError(t, err)

	l := NewImages(stubResolver{"good": good, "bad": bad, "cut": truncated})

	img, err := l.Load(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIME)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, image.Rect(0, 0, 4, 3), img.Image.Bounds())

	for _, locator := range []string{"bad", "cut"} {
		_, err = l.Load(context.Background(), locator)
		assert.ErrorIs(t, err, core.ErrDecodeFailed, locator)
	}

	_, err = l.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrGeneric)
}

func TestDecodeModel(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content []byte
		format  string
		meshes  int
	}{
		{"scene.gltf", []byte(`{"asset":{"version":"2.0"},"meshes":[{},{}]}`), FormatGLTF, 2},
		{"scene.glb", glbBytes(`{"asset":{"version":"2.0"},"meshes":[{}]}`), FormatGLB, 1},
		{"cube.obj", []byte("# cube\no cube\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n"), FormatOBJ, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := testutil.CreateTestFile(dir, tt.name, tt.content)
			require.NoError(t, err)

			m, err := DecodeModel(path)
			require.NoError(t, err)
			assert.Equal(t, tt.format, m.Format)
			assert.Equal(t, tt.meshes, m.Meshes)
			assert.Equal(t, path, m.Path)
		})
	}
}

func TestDecodeModel_Invalid(t *testing.T) {
	dir := t.TempDir()
	glb := glbBytes(`{"asset":{"version":"2.0"}}`)
	tests := map[string][]byte{
		"no-asset.gltf":  []byte(`{"meshes":[]}`),
		"broken.gltf":    []byte(`{"asset":`),
		"short.glb":      glb[:10],
		"length.glb":     append(append([]byte{}, glb...), 0, 0, 0, 0),
		"v1.glb":         append(append([]byte{}, glb[:4]...), append([]byte{1, 0, 0, 0}, glb[8:]...)...),
		"empty.obj":      []byte("# nothing\n"),
		"binary.obj":     {0x00, 0x01, 0x02, 0xff},
		"bad-vertex.obj": []byte("v 1 2\n"),
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path, err := testutil.CreateTestFile(dir, name, content)
			require.NoError(t, err)
			_, err = DecodeModel(path)
			assert.Error(t, err)
		})
	}
}

func TestFiles_Read(t *testing.T) {
	path, err := testutil.CreateTestFile(t.TempDir(), "a.txt", []byte("hello"))
	require.NoError(t, err)
	f := NewFiles(stubResolver{"a": path, "gone": filepath.Join(t.TempDir(), "gone")})

	got, err := f.Fetch(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, path, got)

	data, err := f.Read(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = f.Read(context.Background(), "gone")
	assert.ErrorIs(t, err, core.ErrGeneric)
}

func TestModels_DecodeFailureKeepsCompletedDownload(t *testing.T) {
	const url = "https://example.com/broken.glb"

	reg := registry.New(state.NewMemoryStore())
	storage, err := download.NewStorage(t.TempDir())
	require.NoError(t, err)
	port := testutil.NewFakeTransport(t.TempDir())
	o := core.NewOrchestrator(reg, port, storage)

	go func() {
		select {
		case <-port.Started():
			_, _ = port.Finish(url, []byte("garbage bytes"))
		case <-time.After(5 * time.Second):
		}
	}()

	_, err = NewModels(o).Load(context.Background(), url)
	assert.ErrorIs(t, err, core.ErrDecodeFailed)
	assert.Len(t, reg.ListCompleted(), 1, "bytes stay completed after a decode failure")
}
