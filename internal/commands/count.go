package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var countDate string

var countCmd = &cobra.Command{
	Use:   "count <name>",
	Short: "Increment a mantra counter",
	Long: `Increment a mantra counter by one. The increment is durable locally
before the command returns; the push to the server happens in the same run
when the server is reachable and is retried on the next sync otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := resolveDate(dateArgs(countDate))
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

		rec, err := engine.IncrementCounter(ctx, args[0], date)
		if err != nil {
			return err
		}

		// Best effort: reconcile now so the push lands before the process
		// exits. Failure just leaves the record dirty for the next run.
		_ = engine.SyncAll(ctx, date)

		fmt.Println(formatCounter(rec))
		if rec.Complete() {
			fmt.Printf("%s target reached for %s\n", rec.Name, date)
		}
		return nil
	},
}

func init() {
	countCmd.Flags().StringVar(&countDate, "date", "", "day to record against (YYYY-MM-DD, default today)")
}

// dateArgs adapts an optional --date flag value to resolveDate's argument
// form.
func dateArgs(flag string) []string {
	if flag == "" {
		return nil
	}
	return []string{flag}
}
