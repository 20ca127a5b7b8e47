package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/h2non/filetype"

	"github.com/surge-downloader/localcopy/internal/core"
)

// sniffLen is the header size filetype needs to match every type it knows.
const sniffLen = 261

var errNotImage = errors.New("not an image")

// Image is a decoded image together with where it lives on disk.
type Image struct {
	Path   string
	MIME   string
	Format string
	Image  image.Image
}

// Images loads and decodes remote images. Decode failures are reported as
// core.KindDecodeFailed; the downloaded file stays completed.
type Images struct {
	resolver Resolver
}

func NewImages(r Resolver) *Images {
	return &Images{resolver: r}
}

func (l *Images) Load(ctx context.Context, locator string) (*Image, error) {
	path, err := l.resolver.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(path)
	if err != nil {
		return nil, core.NewError(core.KindDecodeFailed, locator, err)
	}
	return img, nil
}

// DecodeImage sniffs and decodes the image file at path.
func DecodeImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	head = head[:n]

	if !filetype.IsImage(head) {
		return nil, errNotImage
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	decoded, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind.MIME.Value, err)
	}
	return &Image{
		Path:   path,
		MIME:   kind.MIME.Value,
		Format: format,
		Image:  decoded,
	}, nil
}
