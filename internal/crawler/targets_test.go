package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"HTTPS://23MET.ru:443/price/a#top":    "https://23met.ru/price/a",
		" http://23met.ru:80/plist?b=2&a=1 ": "http://23met.ru/plist?a=1&b=2",
		"https://23met.ru:8443/x":             "https://23met.ru:8443/x",
	}
	for in, want := range cases {
		got, err := NormalizeURL(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"/url?q=https://23met.ru", "ftp://23met.ru/a", "https://", "http://[::1"} {
		_, err := NormalizeURL(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildTargets(t *testing.T) {
	t.Parallel()

	targets, skipped := BuildTargets([]string{
		"https://23met.ru/price/a",
		"https://23MET.ru/price/a#x",
		"/url?q=junk",
		"https://23met.ru/price/b",
	}, "*/*", nil)
	assert.Equal(t, []Target{
		{URL: "https://23met.ru/price/a", Accept: "*/*"},
		{URL: "https://23met.ru/price/b", Accept: "*/*"},
	}, targets)
	assert.Equal(t, []string{"/url?q=junk"}, skipped)
}

func TestBuildTargetsAvoidsSnapshotNameCollisions(t *testing.T) {
	t.Parallel()

	urls := []string{
		"https://23met.ru/plist/ural",
		"https://23met.ru/price/ural",
		"https://spb.23met.ru/plist/ural",
	}

	targets, _ := BuildTargets(urls, "*/*", fixedHasher{digest: "0123456789abcdef"})
	require.Len(t, targets, 3)
	names := make([]string, 0, len(targets))
	for _, target := range targets {
		names = append(names, SnapshotName(target, fixedHasher{digest: "0123456789abcdef"}))
	}
	assert.Equal(t, []string{"ural.html", "0123456789abcdef.html", "ural_2.html"}, names)
	assert.Empty(t, targets[0].Name, "first owner keeps the derived name")

	targets, _ = BuildTargets(urls[:2], "*/*", nil)
	assert.Equal(t, "ural_2.html", targets[1].Name)
}
