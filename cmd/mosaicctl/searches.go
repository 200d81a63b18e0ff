package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rkm/pgstac-mosaic/internal/config"
	"github.com/rkm/pgstac-mosaic/internal/registry"
	"github.com/rkm/pgstac-mosaic/internal/stac"
	"github.com/rkm/pgstac-mosaic/internal/translate"
)

// withStore opens the registry for the duration of fn.
func withStore(cmd *cobra.Command, flags *globalFlags, openStore storeFactory, fn func(context.Context, registry.Store, *slog.Logger) error) error {
	dbCfg, err := flags.database()
	if err != nil {
		return err
	}
	logger := flags.logger(cmd)
	store, release, err := openStore(cmd.Context(), dbCfg, logger)
	if err != nil {
		return err
	}
	defer release()
	return fn(cmd.Context(), store, logger)
}

func newRegisterCmd(flags *globalFlags, openStore storeFactory) *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:   "register --file search.json [--file other.json]",
		Short: "Register searches from JSON files",
		Long: `Register one or more searches and print the resulting entries as JSON.

Each file holds a "search" object (collections, ids, bbox, intersects,
datetime, filter, filter-lang, all) and an optional "metadata" object.
Registering the same search twice returns the same id.

Examples:
  mosaicctl register --file searches/sentinel.json
  mosaicctl register -f a.json -f b.json | jq '.[].id'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, openStore, func(ctx context.Context, store registry.Store, logger *slog.Logger) error {
				normalizer := translate.NewNormalizer(logger)
				registered := make([]any, 0, len(files))
				for _, file := range files {
					seed, err := config.LoadSearchFile(file)
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					def, err := normalizer.Normalize(seed.Search)
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					entry, err := store.Register(ctx, def, seed.Metadata)
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					registered = append(registered, entry)
				}
				return writeJSON(cmd.OutOrStdout(), registered)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "search file to register (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newListCmd(flags *globalFlags, openStore storeFactory) *cobra.Command {
	var (
		limit   int
		offset  int
		sortby  string
		filters []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered searches",
		Long: `List registered searches as JSON. Listing does not count as usage.

Examples:
  mosaicctl list --sortby -lastused --limit 20
  mosaicctl list --filter type=mosaic --filter name=sentinel`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params := registry.ListParams{Limit: limit, Offset: offset}
			if limit < 1 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}
			if offset < 0 {
				return fmt.Errorf("offset must be non-negative, got %d", offset)
			}
			if sortby != "" {
				item, err := stac.ParseSortby(sortby)
				if err != nil {
					return err
				}
				params.Sortby = item
			}
			for _, f := range filters {
				key, value, ok := strings.Cut(f, "=")
				if !ok || key == "" {
					return fmt.Errorf("invalid filter %q, expected key=value", f)
				}
				params.Filters = append(params.Filters, stac.MetadataFilter{Key: key, Value: value})
			}

			return withStore(cmd, flags, openStore, func(ctx context.Context, store registry.Store, _ *slog.Logger) error {
				page, err := store.List(ctx, params)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"searches": page.Entries,
					"matched":  page.Matched,
					"returned": len(page.Entries),
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of searches to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of searches to skip")
	cmd.Flags().StringVar(&sortby, "sortby", "", "sort key, prefix with - for descending (e.g. -usecount)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata equality filter key=value (repeatable)")
	return cmd
}

func newInfoCmd(flags *globalFlags, openStore storeFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "info <search-id>",
		Short: "Print one registered search",
		Long:  `Print one registered search as JSON. Unlike the HTTP info endpoint this does not count as usage.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, flags, openStore, func(ctx context.Context, store registry.Store, _ *slog.Logger) error {
				entry, err := store.Peek(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entry)
			})
		},
	}
}
