package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raysh454/auditai/internal/demoserver"
	"github.com/raysh454/auditai/internal/logging"
)

// NewDemoServerCommand creates the command running the deliberately weak
// demo site. It is also the root command of the demoserver binary.
func NewDemoServerCommand() *cobra.Command {
	cfg := demoserver.DefaultConfig()
	var level int

	cmd := &cobra.Command{
		Use:   "demoserver",
		Short: "Serve a deliberately weak site to scan locally",
		Long: `Serve a small site with known weaknesses for local scans.

Pages start at the given hardening level (1 weak, 2 partial, 3 hardened)
and can be changed from the control panel at /demo/control. With --waf
every page answers with a bot challenge, which scans report as blocked.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Port < 1 || cfg.Port > 65535 {
				return fmt.Errorf("invalid port %d", cfg.Port)
			}
			cfg.Level = demoserver.Level(level)
			if !cfg.Level.Valid() {
				return fmt.Errorf("invalid level %d", level)
			}

			fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render("auditai demo server"))
			fmt.Fprintf(cmd.OutOrStdout(), "%s http://localhost:%d  %s %s  %s %t\n",
				labelStyle.Render("site"), cfg.Port,
				labelStyle.Render("level"), cfg.Level,
				labelStyle.Render("waf"), cfg.WAF)

			logger := logging.NewLogrusLogger("demoserver", logging.Config{
				Format: "text",
				Output: cmd.ErrOrStderr(),
			})
			return demoserver.NewDemoServer(cfg, logger).Run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	f.BoolVar(&cfg.WAF, "waf", cfg.WAF, "answer every page with a bot challenge")
	f.IntVar(&level, "level", int(cfg.Level), "starting hardening level (1-3)")
	return cmd
}
