// Package proxy harvests free proxy sockets from a paginated listing site,
// checks them against the price-list host, and stores the survivors for the
// fetch client.
package proxy

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Socket is a proxy endpoint discovered on a listing page.
type Socket struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

// URL returns the proxy URL the fetch client expects, e.g. "https://1.2.3.4:8080".
func (s Socket) URL() string {
	return strings.ToLower(s.Protocol) + "://" + s.Address
}

// ExtractSockets parses one listing page. Addresses come from the anchors
// that copy them to the clipboard; protocols come from "Free <PROTOCOL> ..."
// anchor titles. The two sequences are paired in document order.
func ExtractSockets(doc *goquery.Document) []Socket {
	var addresses, protocols []string
	doc.Find("td").Each(func(_ int, td *goquery.Selection) {
		if a := td.Find("a[onclick]").First(); a.Length() > 0 {
			onclick, _ := a.Attr("onclick")
			if strings.Contains(onclick, "copyToClipboard") {
				addresses = append(addresses, strings.TrimSpace(a.Text()))
			}
		}
		if title, ok := td.Find("a").First().Attr("title"); ok && strings.HasPrefix(title, "Free") {
			if fields := strings.Fields(title); len(fields) > 1 {
				protocols = append(protocols, strings.ToUpper(fields[1]))
			}
		}
	})

	n := min(len(addresses), len(protocols))
	out := make([]Socket, 0, n)
	for i := range n {
		out = append(out, Socket{Protocol: protocols[i], Address: addresses[i]})
	}
	return out
}
