package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhaktidev/bhakti-sync/record"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		// A load doubles as the connectivity probe.
		today := record.FormatDate(time.Now())
		if _, err := engine.Load(context.Background(), today); err != nil {
			return err
		}

		st := engine.Status().Snapshot()
		fmt.Printf("server:   %s\n", cfg.ServerURL)
		if st.Online {
			fmt.Println("state:    online")
		} else {
			fmt.Println("state:    offline")
		}
		fmt.Printf("pending:  %d\n", st.PendingCount)
		if !st.LastSync.IsZero() {
			fmt.Printf("last sync: %s\n", st.LastSync.Format(time.RFC3339))
		}
		return nil
	},
}
