package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent fetch runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out, renderTable(historyTable(runs)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d runs\n", removed)
				return nil
			})
		},
	})
	return cmd
}

func historyTable(runs []history.Run) tableSpec {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		mode := run.Mode
		if mode == "" {
			mode = "aborted"
		}
		if run.DryRun {
			mode += " (dry)"
		}
		rows = append(rows, []string{
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			mode,
			strconv.Itoa(run.Requested),
			strconv.Itoa(run.Resolved),
			strconv.Itoa(run.Failed),
			strconv.Itoa(run.Records),
			run.Duration().Round(time.Millisecond).String(),
			runNote(run),
		})
	}
	return tableSpec{
		title:   "Recent runs",
		headers: []string{"Started", "Mode", "Requested", "Resolved", "Failed", "Records", "Duration", "Notes"},
		rows:    rows,
		aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft},
		widths:  []int{0, 0, 0, 0, 0, 0, 0, 60},
	}
}

func runNote(run history.Run) string {
	if run.Error != "" {
		return run.Error
	}
	if len(run.FailedIDs) > 0 {
		return "failed: " + catalog.JoinIdentifiers(run.FailedIDs)
	}
	return ""
}
