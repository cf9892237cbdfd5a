package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/dataset"
	"gamecatalog/internal/history"
	"gamecatalog/internal/pipeline"
	"gamecatalog/internal/preflight"
	"gamecatalog/internal/services"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var idFlags []string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch upstream records, merge overrides, and publish the dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			extra, err := parseIdentifiers(append(idFlags, args...))
			if err != nil {
				return err
			}
			if check := preflight.CheckDirectoryAccess("Data directory", cfg.Paths.DataDir); !check.Passed {
				return services.Wrap(services.ErrConfiguration, "cli", "preflight", check.Detail, nil)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			return ctx.withHistory(func(store *history.Store) error {
				runner, err := pipeline.NewRunner(cfg, pipeline.WithHistory(store), pipeline.WithLogger(logger))
				if err != nil {
					return err
				}
				summary, runErr := runner.Run(cmd.Context(), pipeline.Request{ExtraIDs: extra, DryRun: dryRun})
				printSummary(newStatusWriter(cmd.OutOrStdout()), summary, runErr)
				return runErr
			})
		},
	}

	cmd.Flags().StringSliceVar(&idFlags, "id", nil, "Additional BGG identifiers to fetch (repeatable or comma separated)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the dataset plan without writing it")
	return cmd
}

func parseIdentifiers(values []string) ([]catalog.Identifier, error) {
	set := &catalog.IdentifierSet{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := catalog.ParseIdentifier(part)
			if err != nil {
				return nil, services.Wrap(services.ErrValidation, "cli", "parse id", part, err)
			}
			set.Add(id)
		}
	}
	return set.Slice(), nil
}

func printSummary(w *statusWriter, summary pipeline.Summary, runErr error) {
	w.section("Run " + summary.RunID)
	w.fieldf("Requested", "%d", summary.Requested)
	w.status("Resolved", coverageKind(summary.Resolved, summary.Requested), fmt.Sprintf("%d", summary.Resolved))
	if summary.Failed > 0 {
		w.status("Failed", statusWarn, fmt.Sprintf("%d (%s)", summary.Failed, catalog.JoinIdentifiers(summary.FailedIdentifiers())))
	}
	if summary.Unresolved > 0 {
		w.status("Unresolved rows", statusWarn, fmt.Sprintf("%d rows without bgg_id", summary.Unresolved))
	}
	w.fieldf("Records", "%d (fan-out %d)", summary.Records, summary.FanOut)
	w.fieldf("Requests", "%d%s", summary.Requests, formatHostUsage(summary.HostUsage))
	if summary.Images > 0 {
		w.fieldf("Version images", "%d", summary.Images)
	}

	switch {
	case runErr != nil:
		w.status("Result", statusError, runErr.Error())
	case summary.Mode == "":
		w.status("Result", statusInfo, "no plan")
	default:
		mode := cases.Title(language.English).String(string(summary.Mode))
		detail := fmt.Sprintf("%s (yield %d, min %d)", mode, summary.Yield, summary.Threshold)
		kind := statusOK
		if summary.Mode == dataset.ModeIncremental {
			detail += fmt.Sprintf("; %d updated, %d kept, %d added", summary.Updated, summary.Kept, summary.Added)
			if summary.Interrupted {
				detail += "; interrupted"
			}
			kind = statusWarn
		}
		w.status("Plan", kind, detail)
		if summary.Written {
			w.status("Dataset", statusOK, "written to "+summary.DatasetPath)
		} else if summary.DryRun {
			w.status("Dataset", statusInfo, "dry run; not written")
		}
	}

	if len(summary.Failures) > 0 {
		rows := make([][]string, 0, len(summary.Failures))
		for _, failure := range summary.Failures {
			rows = append(rows, []string{failure.ID.String(), string(failure.Reason)})
		}
		w.table(tableSpec{
			title:   "Failed identifiers",
			headers: []string{"BGG ID", "Reason"},
			rows:    rows,
			aligns:  []columnAlignment{alignRight, alignLeft},
		})
	}
}

func formatHostUsage(usage map[string]int) string {
	if len(usage) == 0 {
		return ""
	}
	hosts := make([]string, 0, len(usage))
	for host := range usage {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	parts := make([]string, 0, len(hosts))
	for _, host := range hosts {
		parts = append(parts, fmt.Sprintf("%s=%d", host, usage[host]))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
