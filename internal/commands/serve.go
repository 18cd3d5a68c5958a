package commands

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhaktidev/bhakti-sync/logging"
	"github.com/bhaktidev/bhakti-sync/server"
)

var (
	serveAddr string
	serveDB   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker server",
	Long: `Run the HTTP server the sync engine talks to. The server keeps its
own sqlite database, separate from the client's local store.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := server.OpenStore(serveDB)
		if err != nil {
			return fmt.Errorf("opening server store: %w", err)
		}
		defer store.Close()

		srv := &http.Server{
			Addr:         serveAddr,
			Handler:      server.NewHandler(store).Routes(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		logging.Default().Info("tracker server listening",
			"addr", serveAddr, "db", serveDB)
		return srv.ListenAndServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":3000", "listen address")
	serveCmd.Flags().StringVar(&serveDB, "db", "bhakti-server.db", "server database path")
}
