package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gamecatalog/internal/imagecache"
	"gamecatalog/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the version image cache",
	}

	openCache := func() (*imagecache.Cache, string, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, "", err
		}
		path := cfg.Paths.VersionImageCache
		return imagecache.NewCache(imagecache.NewFileStore(path), logging.NewNop()), path, nil
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached version images",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, path, err := openCache()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			entries := cache.List()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No cached version images in %s\n", path)
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				cachedAt := "-"
				if !entry.CachedAt.IsZero() {
					cachedAt = entry.CachedAt.Local().Format("2006-01-02 15:04")
				}
				rows = append(rows, []string{entry.VersionID.String(), entry.ImageURL, cachedAt})
			}
			fmt.Fprintln(out, renderTable(tableSpec{
				title:   "Version images",
				headers: []string{"Version", "Image URL", "Cached"},
				rows:    rows,
				aligns:  []columnAlignment{alignRight, alignLeft, alignLeft},
				widths:  []int{0, 80, 0},
				footer:  fmt.Sprintf("%d entries", len(entries)),
			}))
			return nil
		},
	})

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached version image",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, path, err := openCache()
			if err != nil {
				return err
			}
			count := cache.Count()
			if err := cache.Clear(); err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached version images from %s\n", count, path)
			return nil
		},
	})

	return cacheCmd
}
