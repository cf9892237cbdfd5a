package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gamecatalog/internal/bgg"
	"gamecatalog/internal/preflight"
	"gamecatalog/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against directories, inputs, and upstream hosts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var fetcher preflight.Fetcher
			if !offline {
				fetcher = bgg.New(
					bgg.WithToken(cfg.BGG.APIToken),
					bgg.WithUserAgent(cfg.BGG.UserAgent),
					bgg.WithTimeout(cfg.RequestTimeout()),
				)
			}
			results := preflight.RunAll(cmd.Context(), cfg, fetcher)

			w := newStatusWriter(cmd.OutOrStdout())
			w.section("Preflight")
			failed := 0
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
					failed++
				}
				w.status(result.Name, kind, result.Detail)
			}
			if failed > 0 {
				return services.Wrap(services.ErrConfiguration, "cli", "check", fmt.Sprintf("%d of %d checks failed", failed, len(results)), nil)
			}
			fmt.Fprintln(w.out, "All checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip upstream host probes")
	return cmd
}
