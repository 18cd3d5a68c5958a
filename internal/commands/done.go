package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var doneDate string

var doneCmd = &cobra.Command{
	Use:   "done <name>",
	Short: "Toggle a ritual activity",
	Long: `Toggle a checklist activity between done and not done. Like count,
the change is durable locally first and synced opportunistically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := resolveDate(dateArgs(doneDate))
		if err != nil {
			return err
		}

		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx := context.Background()
		if _, err := engine.LocalDay(ctx, date); err != nil {
			return err
		}

		rec, err := engine.ToggleChecklistItem(ctx, args[0], date)
		if err != nil {
			return err
		}

		_ = engine.SyncAll(ctx, date)

		fmt.Println(formatActivity(rec))
		return nil
	},
}

func init() {
	doneCmd.Flags().StringVar(&doneDate, "date", "", "day to record against (YYYY-MM-DD, default today)")
}
