package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/raysh454/auditai/internal/provider"
)

func newProvidersCommand(o *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Check which AI providers can serve analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.consoleConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			// Nothing is scanned here, so history is not needed.
			cfg.Archive.Path = ""
			a, err := o.newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("wiring application: %w", err)
			}
			defer a.Close(cmd.Context())

			statuses := a.Providers.Statuses(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(statuses)
			}
			printStatuses(cmd.OutOrStdout(), a.Providers.Names(), statuses)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the statuses as JSON")
	return cmd
}

// printStatuses lists providers in registration order.
func printStatuses(out io.Writer, names []string, statuses map[string]provider.Status) {
	for _, name := range names {
		st := statuses[name]
		state := okStyle.Render("available")
		if !st.Available {
			state = errStyle.Render("unavailable")
		}
		fmt.Fprintf(out, "%-8s %-6s %-12s %s\n", name, st.Kind, state, labelStyle.Render(st.Model))
		if st.Error != "" {
			fmt.Fprintf(out, "         %s\n", warnStyle.Render(st.Error))
		}
	}
}
