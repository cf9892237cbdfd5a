package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"gamecatalog/internal/catalog"
	"gamecatalog/internal/dataset"
	"gamecatalog/internal/logging"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Summarize the published dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store := dataset.NewStore(cfg.Paths.DatasetPath, false, logging.NewNop())
			ds, err := store.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ds == nil {
				fmt.Fprintf(out, "No dataset at %s\n", cfg.Paths.DatasetPath)
				return nil
			}
			printDataset(newStatusWriter(out), cfg.Paths.DatasetPath, ds, limit)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of records to list (0 lists none, negative lists all)")
	return cmd
}

func printDataset(w *statusWriter, path string, ds *catalog.Dataset, limit int) {
	locked, manual := 0, 0
	for _, record := range ds.Records {
		if record.ImageLocked {
			locked++
		}
		if record.ManualOverride != "" {
			manual++
		}
	}
	generated := "unknown"
	if !ds.GeneratedAt.IsZero() {
		generated = ds.GeneratedAt.Local().Format("2006-01-02 15:04:05")
	}

	w.field("Path", path)
	w.field("Schema", strconv.Itoa(ds.SchemaVersion))
	w.field("Generated", generated)
	if ds.RunID != "" {
		w.field("Run", ds.RunID)
	}
	w.field("Records", strconv.Itoa(ds.Len()))
	w.field("Identifiers", strconv.Itoa(len(ds.Identifiers())))
	w.field("Fetched", strconv.Itoa(ds.FetchedCount()))
	w.field("Image locked", strconv.Itoa(locked))
	w.field("Manual", strconv.Itoa(manual))

	if limit == 0 || ds.Len() == 0 {
		return
	}
	records := ds.Records
	footer := ""
	if limit > 0 && len(records) > limit {
		footer = fmt.Sprintf("%d more records not shown", len(records)-limit)
		records = records[:limit]
	}
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.ID.String(),
			displayName(record),
			optionalInt(record.Year),
			optionalInt(record.Price),
			record.Category,
			yesNo(record.Fetched),
		})
	}
	w.table(tableSpec{
		headers: []string{"BGG ID", "Name", "Year", "Price", "Category", "Fetched"},
		rows:    rows,
		aligns:  []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
		widths:  []int{0, 40, 0, 0, 24, 0},
		footer:  footer,
	})
}

func displayName(record catalog.MergedRecord) string {
	switch {
	case record.NameZh != "" && record.Name != "" && record.NameZh != record.Name:
		return record.NameZh + " / " + record.Name
	case record.NameZh != "":
		return record.NameZh
	default:
		return record.Name
	}
}

func optionalInt(value *int) string {
	if value == nil {
		return "-"
	}
	return strconv.Itoa(*value)
}
