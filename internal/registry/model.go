package registry

import "bytes"

// Download is a requested resource that is not yet known to be completed.
// ID is the canonical identity of the resource; URL is the locator the
// transfer is started from.
type Download struct {
	ID  string `json:"identifier"`
	URL string `json:"url"`
}

// InterruptedDownload is a download whose transfer stopped after it started.
// ResumeData is owned by the transport and never inspected here.
type InterruptedDownload struct {
	Download   Download `json:"download"`
	ResumeData []byte   `json:"resumeData"`
}

// Equal reports whether both entries describe the same download and carry the
// same resume data.
func (i InterruptedDownload) Equal(other InterruptedDownload) bool {
	return i.Download == other.Download && bytes.Equal(i.ResumeData, other.ResumeData)
}

// CompletedDownload is a download whose bytes live at LocalPath, relative to
// the managed storage root.
type CompletedDownload struct {
	Download  Download `json:"download"`
	LocalPath string   `json:"localPath"`
}
