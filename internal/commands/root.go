// Package commands implements the bhakti CLI commands.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/bhaktidev/bhakti-sync/config"
	"github.com/bhaktidev/bhakti-sync/logging"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bhakti",
	Short: "Offline-first daily practice tracker",
	Long: `bhakti tracks daily mantra counters and ritual activities against a
remote tracker server. Every command works offline: mutations are durable
locally and sync to the server when it is reachable.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		logging.Init(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.FileName, "path to the configuration file")
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(doneCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(streakCmd)
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
