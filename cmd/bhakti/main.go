// bhakti - offline-first daily practice tracker CLI.
//
// Tracks mantra counters and ritual activities locally in sqlite and syncs
// them against a tracker server whenever it is reachable. Every command
// works without the server; changes made offline push on the next sync.
package main

import (
	"fmt"
	"os"

	"github.com/bhaktidev/bhakti-sync/internal/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
