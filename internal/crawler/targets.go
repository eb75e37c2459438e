package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL standardizes a URL so the same page is fetched once. It
// lowercases the scheme and host, drops default ports and the fragment, and
// sorts query parameters. Only absolute http and https URLs are accepted.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url %q", rawURL)
	}
	u.Host = strings.ToLower(u.Host)
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""
	u.RawQuery = u.Query().Encode()
	return u.String(), nil
}

// BuildTargets turns a URL list into fetch targets, in order and without
// duplicates. URLs that cannot be normalized are returned in skipped. Two
// targets never share a snapshot name: a later URL whose name is taken gets
// its URL digest as the name, or a numbered suffix when that is taken too.
func BuildTargets(urls []string, accept string, hasher Hasher) (targets []Target, skipped []string) {
	seen := make(map[string]struct{}, len(urls))
	names := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		u, err := NormalizeURL(raw)
		if err != nil {
			skipped = append(skipped, raw)
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		target := Target{URL: u, Accept: accept}
		if name := SnapshotName(target, hasher); isTaken(names, name) {
			target.Name = uniqueName(names, name, u, hasher)
		}
		names[SnapshotName(target, hasher)] = struct{}{}
		targets = append(targets, target)
	}
	return targets, skipped
}

func isTaken(names map[string]struct{}, name string) bool {
	_, ok := names[name]
	return ok
}

func uniqueName(names map[string]struct{}, name, rawURL string, hasher Hasher) string {
	if hasher != nil {
		if digest, err := hasher.Hash([]byte(rawURL)); err == nil && digest != "" {
			if candidate := digest + SnapshotExt; !isTaken(names, candidate) {
				return candidate
			}
		}
	}
	base := strings.TrimSuffix(name, SnapshotExt)
	for i := 2; ; i++ {
		if candidate := fmt.Sprintf("%s_%d%s", base, i, SnapshotExt); !isTaken(names, candidate) {
			return candidate
		}
	}
}
