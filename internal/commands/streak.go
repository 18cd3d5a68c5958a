package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhaktidev/bhakti-sync/record"
	"github.com/bhaktidev/bhakti-sync/stats"
	"github.com/bhaktidev/bhakti-sync/storage/sqlite"
)

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the practice streak and the last week's counts",
	Long: `Show how many consecutive days every targeted mantra met its target,
plus per-mantra counts for the last seven days. Derived entirely from local
records; no network access.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := sqlite.NewWithDataSource(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening local store: %w", err)
		}
		defer store.Close()

		ctx := context.Background()
		today := time.Now()

		streak, err := stats.Streak(ctx, store, today)
		if err != nil {
			return err
		}
		week, err := stats.WeeklyTotals(ctx, store, today)
		if err != nil {
			return err
		}

		fmt.Printf("streak: %d day(s)\n\n", streak)
		for _, day := range week {
			fmt.Printf("%s ", day.Date)
			if len(day.Counts) == 0 {
				fmt.Println("-")
				continue
			}
			names := make([]string, 0, len(day.Counts))
			for name := range day.Counts {
				names = append(names, name)
			}
			sort.Slice(names, func(i, j int) bool {
				oi, oj := record.CounterOrder(names[i]), record.CounterOrder(names[j])
				if oi != oj {
					return oi < oj
				}
				return names[i] < names[j]
			})
			for i, name := range names {
				if i > 0 {
					fmt.Print(", ")
				}
				fmt.Printf("%s %d", name, day.Counts[name])
			}
			fmt.Println()
		}
		return nil
	},
}
