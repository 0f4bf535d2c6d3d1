package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Checks that the crawl engine can be imported",
		Long: `Runs the same probe as GET /health and exits non-zero when the engine is
unavailable. Suitable for container health checks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			h := a.Pipeline().Probe(cmd.Context())
			if !h.Healthy {
				return fmt.Errorf("%s", h.Detail)
			}
			fmt.Fprintln(cmd.OutOrStdout(), h.Detail)
			return nil
		},
	}
}
