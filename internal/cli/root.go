// Package cli is the auditai command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raysh454/auditai/internal/app"
	"github.com/raysh454/auditai/internal/logging"
)

type rootOptions struct {
	configPath string
	verbose    bool
	// appOpts replace application collaborators; tests inject doubles here.
	appOpts []app.Option
}

// NewRootCmd creates the root command. opts are handed to every
// application the subcommands wire.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	o := &rootOptions{appOpts: opts}

	rootCmd := &cobra.Command{
		Use:           "auditai",
		Short:         "Passive web security scanner with streamed AI analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "show application logs on stderr")

	rootCmd.AddCommand(
		newServeCommand(o),
		newScanCommand(o),
		newProvidersCommand(o),
		NewVersionCommand(),
		NewDemoServerCommand(),
	)
	return rootCmd
}

// Execute runs the auditai command tree and returns the exit code.
func Execute() int {
	return Run(NewRootCmd())
}

// Run executes cmd until it finishes or the process is interrupted, and
// returns the exit code.
func Run(cmd *cobra.Command) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		return 1
	}
	return 0
}

// consoleConfig loads the configuration for a one-shot command: logs go to
// w as text, and only warnings unless --verbose is set.
func (o *rootOptions) consoleConfig(w io.Writer) (*app.Config, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Log.Format = "text"
	cfg.Log.Output = w
	if !o.verbose {
		cfg.Log.Level = "warn"
	}
	return cfg, nil
}

func (o *rootOptions) newApp(ctx context.Context, cfg *app.Config) (*app.Application, error) {
	logger := logging.NewLogrusLogger("auditai", cfg.Log)
	return app.New(ctx, cfg, logger, o.appOpts...)
}
