// Package transcript implements the Transcript Follow-up Router: it
// recognizes a user's follow-up question about a video already
// transcribed earlier in the session and reuses that transcript instead
// of letting the turn loop call video_transcript again (spec §4.9).
package transcript

import (
	"net/url"
	"strings"
)

// trackingParamPrefixes lists query-parameter name prefixes stripped by
// Normalize. utm_* covers the common analytics family; the rest are
// platform-specific share/tracking params seen on video URLs.
var trackingParamPrefixes = []string{"utm_"}

var trackingParamNames = map[string]bool{
	"si": true, "feature": true, "ref": true, "ref_src": true,
	"fbclid": true, "gclid": true, "igshid": true, "spm": true,
}

// Normalize canonicalizes a video URL so the same video referenced with
// different tracking parameters, parameter order, or trailing slashes
// compares equal (spec §4.6/§4.9, R3: normalize(normalize(u)) ==
// normalize(u)).
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	q := u.Query()
	for key := range q {
		lower := strings.ToLower(key)
		if trackingParamNames[lower] || hasTrackingPrefix(lower) {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode() // url.Values.Encode sorts by key, keeping output deterministic

	return u.String()
}

func hasTrackingPrefix(key string) bool {
	for _, p := range trackingParamPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// SameVideo reports whether a and b refer to the same normalized URL.
func SameVideo(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
