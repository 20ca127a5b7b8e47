package types

import "errors"

var (
	// ErrInvalidLocator is returned by Port.Begin for a locator the
	// transport cannot fetch.
	ErrInvalidLocator = errors.New("invalid locator")
	// ErrInvalidResumeToken is returned by Port.Resume when the resume data
	// cannot be used to continue a transfer.
	ErrInvalidResumeToken = errors.New("invalid resume token")
)

// Handle identifies one running transfer. URL is the locator the transfer
// was originally requested with, including after a resume.
type Handle struct {
	ID  string
	URL string
}

// Finished describes a transfer whose bytes are all in TempPath.
// Filename is the name suggested by the server, if any.
type Finished struct {
	TempPath string
	Filename string
}

// Listener receives transfer events. For one handle, zero or more
// OnProgress calls are followed by exactly one OnFinished or OnFailed, all
// from the same goroutine. Different handles may deliver concurrently.
type Listener interface {
	OnProgress(h Handle, fraction float64)
	OnFinished(h Handle, f Finished)
	// OnFailed reports a failed transfer. resumeData is nil when the
	// transfer cannot be continued.
	OnFailed(h Handle, resumeData []byte, err error)
}

// Port is the byte-level transport.
type Port interface {
	SetListener(l Listener)
	// Begin starts a fresh transfer of url.
	Begin(url string) (Handle, error)
	// Resume continues a transfer from resume data produced by OnFailed or
	// Cancel.
	Resume(resumeData []byte) (Handle, error)
	// Cancel stops the transfer and returns resume data when it can be
	// continued later. No events are delivered for h after Cancel returns.
	Cancel(h Handle) []byte
}
