package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// SnapshotExt is appended to every snapshot file name.
const SnapshotExt = ".html"

var unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// SnapshotName derives the deterministic file name for a target: the explicit
// Name when set, else the last URL path segment plus SnapshotExt. URLs without a
// usable segment fall back to the URL digest.
func SnapshotName(target Target, hasher Hasher) string {
	if target.Name != "" {
		return target.Name
	}
	segment := unsafeNameChars.ReplaceAllString(lastPathSegment(target.URL), "_")
	segment = strings.Trim(segment, "._")
	if segment != "" {
		return segment + SnapshotExt
	}
	digest := ""
	if hasher != nil {
		digest, _ = hasher.Hash([]byte(target.URL))
	}
	if digest == "" {
		digest = "index"
	}
	return digest + SnapshotExt
}

func lastPathSegment(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	p := u.Path
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
