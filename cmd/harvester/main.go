// Package main hosts the harvester entrypoint.
//
// A run reads the cached URL list (or rebuilds it through the metered search
// API), fetches every page under a global rate limit with optional proxy
// rotation, stores the pages that look like price lists and then unifies and
// normalizes their tables into two CSV files. The normalized table can also
// be uploaded to GCS, written to Postgres and announced on Pub/Sub.
package main

import (
	"github.com/JakeFAU/metal-price-harvester/cmd"
)

func main() {
	cmd.Execute()
}
