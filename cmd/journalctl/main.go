// Command journalctl inspects stored journal collections: it lists users
// and entries, prints dashboard stats and exports a user's entries.
package main

import (
	"fmt"
	"os"
	"time"
)

var (
	version = "dev"
	commit  = "unknown"

	nowFunc = time.Now
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
