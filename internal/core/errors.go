package core

import (
	"errors"
	"fmt"

	"github.com/surge-downloader/localcopy/internal/engine/types"
	"github.com/surge-downloader/localcopy/internal/source"
)

// ErrorKind classifies a failed resolution.
type ErrorKind int

const (
	// KindGeneric is an unclassified transport or resolution failure.
	KindGeneric ErrorKind = iota
	// KindInvalidLocator is a locator that names no fetchable resource.
	KindInvalidLocator
	// KindInvalidResumeToken is resume data the transport rejected.
	KindInvalidResumeToken
	// KindDecodeFailed is a decoder failing on a completed download. The
	// download stays completed.
	KindDecodeFailed
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidLocator:
		return "invalid locator"
	case KindInvalidResumeToken:
		return "invalid resume token"
	case KindDecodeFailed:
		return "decode failed"
	default:
		return "download failed"
	}
}

// DownloadError is the error delivered to callers of Resolve and the loaders.
type DownloadError struct {
	Kind    ErrorKind
	Locator string
	Err     error
}

// Sentinels for errors.Is matching on the kind alone.
var (
	ErrGeneric            = &DownloadError{Kind: KindGeneric}
	ErrInvalidLocator     = &DownloadError{Kind: KindInvalidLocator}
	ErrInvalidResumeToken = &DownloadError{Kind: KindInvalidResumeToken}
	ErrDecodeFailed       = &DownloadError{Kind: KindDecodeFailed}
)

// ErrClosed is wrapped into the error of every request cut short by Close.
var ErrClosed = errors.New("orchestrator closed")

func NewError(kind ErrorKind, locator string, err error) *DownloadError {
	return &DownloadError{Kind: kind, Locator: locator, Err: err}
}

func (e *DownloadError) Error() string {
	msg := e.Kind.String()
	if e.Locator != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Locator)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind.
func (e *DownloadError) Is(target error) bool {
	t, ok := target.(*DownloadError)
	if !ok || t.Locator != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// kindOf maps transport and identity errors onto the taxonomy.
func kindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, types.ErrInvalidLocator), errors.Is(err, source.ErrInvalidLocator):
		return KindInvalidLocator
	case errors.Is(err, types.ErrInvalidResumeToken):
		return KindInvalidResumeToken
	default:
		return KindGeneric
	}
}
