// Package clipboard pulls download locators out of the system clipboard.
package clipboard

import (
	"strings"

	"github.com/atotto/clipboard"

	"github.com/surge-downloader/localcopy/internal/source"
)

var clipboardReadAll = clipboard.ReadAll

const (
	maxLocatorLen   = 2048
	maxClipboardLen = 64 * 1024
)

type Validator struct {
	allowedSchemes map[string]bool
}

func NewValidator() *Validator {
	return &Validator{
		allowedSchemes: map[string]bool{"http": true, "https": true},
	}
}

// ExtractURL returns text as a locator if it is exactly one http(s) URL.
func (v *Validator) ExtractURL(text string) string {
	text = strings.TrimSpace(text)
	if len(text) > maxLocatorLen || strings.ContainsAny(text, "\n\r") {
		return ""
	}
	if !v.allowed(text) {
		return ""
	}
	return source.Normalize(text)
}

// ExtractURLs returns every allowed locator in text, one per line or
// separated by commas, deduplicated by identity.
func (v *Validator) ExtractURLs(text string) []string {
	if len(text) > maxClipboardLen {
		return nil
	}
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, locator := range source.ParseArgs(text) {
		if len(locator) <= maxLocatorLen && v.allowed(locator) {
			out = append(out, locator)
		}
	}
	return out
}

func (v *Validator) allowed(text string) bool {
	if !source.IsHTTPURL(text) {
		return false
	}
	scheme, _, _ := strings.Cut(text, ":")
	return v.allowedSchemes[strings.ToLower(scheme)]
}

// ReadURL returns the clipboard content when it is a single locator.
func ReadURL() string {
	text, err := clipboardReadAll()
	if err != nil {
		return ""
	}
	return NewValidator().ExtractURL(text)
}

// ReadURLs returns all locators found in the clipboard.
func ReadURLs() []string {
	text, err := clipboardReadAll()
	if err != nil {
		return nil
	}
	return NewValidator().ExtractURLs(text)
}
