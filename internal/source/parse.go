// Package source turns user-supplied locators into resource identities.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var ErrInvalidLocator = errors.New("invalid locator")

func Normalize(raw string) string {
	return strings.TrimSpace(raw)
}

func IsHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

// Identity returns the canonical form of an http(s) locator: scheme and
// host lowercased, default port and fragment dropped. Two locators naming
// the same resource share an identity across process restarts.
func Identity(raw string) (string, error) {
	s := Normalize(raw)
	if !IsHTTPURL(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocator, raw)
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = u.Hostname()
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// SuggestedName returns the last path component of raw, or "" when the
// locator names a directory.
func SuggestedName(raw string) string {
	u, err := url.Parse(Normalize(raw))
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// ParseArgs splits comma or whitespace separated input into the http(s)
// locators it contains, dropping duplicates by identity.
func ParseArgs(args ...string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, arg := range args {
		for _, p := range strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\n' || r == '\t'
		}) {
			id, err := Identity(p)
			if err != nil || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, Normalize(p))
		}
	}
	return out
}
