// Package domain canonicalizes user supplied domain strings.
package domain

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Normalize strips scheme, path, port and a leading wildcard label.
// Case is preserved and empty results are passed through.
func Normalize(raw string) string {
	s := raw
	if strings.HasPrefix(s, "https://") {
		s = strings.TrimPrefix(s, "https://")
	} else if strings.HasPrefix(s, "http://") {
		s = strings.TrimPrefix(s, "http://")
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "*.")
}

// Apex returns the registrable domain (eTLD+1) of host, or the lower-cased
// host itself when it has none.
func Apex(host string) string {
	h := strings.ToLower(host)
	if e, err := publicsuffix.EffectiveTLDPlusOne(h); err == nil {
		return e
	}
	return h
}
