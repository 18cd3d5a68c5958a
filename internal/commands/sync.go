package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [date]",
	Short: "Reconcile a day with the server",
	Long: `Reconcile local records for a day (default today) against the server
and print the merged view. Dirty records across all days are swept into the
push queue. Works offline: the local view is printed unchanged and the
status line shows the connection state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := resolveDate(args)
		if err != nil {
			return err
		}

		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx := context.Background()
		if err := engine.SyncAll(ctx, date); err != nil {
			return err
		}

		day, err := engine.LocalDay(ctx, date)
		if err != nil {
			return err
		}

		fmt.Printf("%s\n\nMantras:\n", date)
		for _, c := range day.Counters {
			fmt.Println(formatCounter(c))
		}
		fmt.Println("\nActivities:")
		for _, a := range day.Checklist {
			fmt.Println(formatActivity(a))
		}

		st := engine.Status().Snapshot()
		if st.Online {
			fmt.Println("\nsynced")
		} else {
			fmt.Printf("\noffline, %d change(s) pending\n", st.PendingCount)
		}
		return nil
	},
}
