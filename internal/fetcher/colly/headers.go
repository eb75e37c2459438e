package collyfetcher

import (
	"math/rand/v2"
	"net/http"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 YaBrowser/24.4.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

var acceptLanguages = []string{
	"ru,en;q=0.9",
	"ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
	"ru-RU,ru;q=0.8,en;q=0.6",
}

// headerSource builds browser-like header sets. Accept-Encoding is left to the
// transport so compressed bodies are decoded transparently.
type headerSource struct {
	agents  []string
	referer string
}

func newHeaderSource(agents []string, referer string) *headerSource {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &headerSource{agents: agents, referer: referer}
}

func (h *headerSource) userAgent() string {
	return h.agents[rand.IntN(len(h.agents))]
}

func (h *headerSource) build(accept string, proxied bool, extra http.Header) http.Header {
	if accept == "" {
		accept = "*/*"
	}
	hdr := http.Header{}
	hdr.Set("Accept", accept)
	hdr.Set("User-Agent", h.userAgent())
	hdr.Set("Accept-Language", acceptLanguages[rand.IntN(len(acceptLanguages))])
	hdr.Set("Connection", "keep-alive")
	hdr.Set("Upgrade-Insecure-Requests", "1")
	hdr.Set("Sec-Fetch-Dest", "document")
	hdr.Set("Sec-Fetch-Mode", "navigate")
	hdr.Set("Sec-Fetch-Site", "none")
	hdr.Set("Sec-Fetch-User", "?1")
	if proxied && h.referer != "" {
		hdr.Set("Referer", h.referer)
	}
	for key, values := range extra {
		hdr.Del(key)
		for _, v := range values {
			hdr.Add(key, v)
		}
	}
	return hdr
}
