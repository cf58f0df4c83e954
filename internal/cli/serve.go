package cli

import (
	"log/slog"
	"os"

	"github.com/ayusman/facultyid/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registration API and live recognition stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := e.cfg
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}

			// The service logs JSON to stdout for collection.
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(logger)

			application, err := e.newApp(cfg, logger)
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.StartRefresh(cfg.RefreshInterval); err != nil {
				return err
			}

			srv := server.New(server.Config{
				StaticDir:   cfg.StaticDir,
				App:         application,
				CORSOrigins: cfg.CORSOrigins,
				Logger:      logger.With("component", "server"),
			})
			return srv.ListenAndServe(cmd.Context(), cfg.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8000", "Listen address")
	return cmd
}
