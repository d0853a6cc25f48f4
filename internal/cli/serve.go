package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/auditai/internal/app"
	"github.com/raysh454/auditai/internal/logging"
	"github.com/raysh454/auditai/internal/server"
)

func newServeCommand(o *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the scan and analysis API until interrupted.

Configuration comes from --config, then AUDITAI_* environment variables
(for example AUDITAI_SERVER_ADDR), then the legacy OLLAMA_* and GROQ_*
variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(o.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if o.verbose {
				cfg.Log.Level = "debug"
			}
			return serve(cmd.Context(), o, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

// serve runs the API until ctx is done, then closes the HTTP listener
// before the application so streams end ahead of the jobs feeding them.
func serve(ctx context.Context, o *rootOptions, cfg *app.Config) error {
	a, err := o.newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring application: %w", err)
	}

	runErr := server.New(a).Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		a.Logger.Error("closing application", logging.Err(err))
	}
	a.Logger.Info("shutdown complete")
	return runErr
}
