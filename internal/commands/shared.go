package commands

import (
	"fmt"
	"time"

	bhaktisync "github.com/bhaktidev/bhakti-sync"
	"github.com/bhaktidev/bhakti-sync/record"
	"github.com/bhaktidev/bhakti-sync/storage/sqlite"
	"github.com/bhaktidev/bhakti-sync/transport/httptransport"
)

// openEngine wires the local store and remote client into an engine from
// the loaded configuration. The caller owns Close.
func openEngine() (*bhaktisync.Engine, error) {
	store, err := sqlite.NewWithDataSource(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	client := httptransport.NewClient(cfg.ServerURL,
		httptransport.WithTimeout(cfg.RequestTimeout()))

	engine, err := bhaktisync.NewEngine(store, client,
		bhaktisync.WithRetryPolicy(cfg.Retry.MaxAttempts, time.Second, cfg.BackoffCap()))
	if err != nil {
		store.Close()
		client.Close()
		return nil, err
	}
	return engine, nil
}

// resolveDate turns an optional positional date argument into a concrete
// day, defaulting to today.
func resolveDate(args []string) (string, error) {
	if len(args) == 0 {
		return record.FormatDate(time.Now()), nil
	}
	if err := record.ValidateDate(args[0]); err != nil {
		return "", err
	}
	return args[0], nil
}

// formatCounter renders one counter line for terminal output.
func formatCounter(c *record.CounterRecord) string {
	marker := " "
	if c.Dirty {
		marker = "*"
	}
	if c.Target == nil {
		return fmt.Sprintf("%s %-12s %d", marker, c.Name, c.Count)
	}
	return fmt.Sprintf("%s %-12s %d/%d (%.0f%%)", marker, c.Name, c.Count, *c.Target, c.Progress()*100)
}

// formatActivity renders one checklist line for terminal output.
func formatActivity(a *record.ChecklistRecord) string {
	box := "[ ]"
	if a.Completed {
		box = "[x]"
	}
	marker := " "
	if a.Dirty {
		marker = "*"
	}
	return fmt.Sprintf("%s %s %s", marker, box, a.DisplayLabel)
}
