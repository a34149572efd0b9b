package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/modlens/modlens/internal/config"
	"github.com/modlens/modlens/internal/core"
	"github.com/modlens/modlens/internal/core/engine"
	"github.com/modlens/modlens/internal/core/fetcher"
	"github.com/modlens/modlens/internal/core/store"
	"github.com/modlens/modlens/internal/output"
)

var fetchOutputFormat string

var fetchCmd = &cobra.Command{
	Use:   "fetch <key>...",
	Short: "Fetch mod metadata from the upstream API",
	Long: `Fetch metadata for one or more mod keys synchronously.

Fetches go through the same token bucket the server uses, so a burst of keys
larger than the configured capacity will see rate-limited results. Fetched
records are written to the snapshot store when it is enabled.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(fetchOutputFormat)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		bucket := engine.NewTokenBucket(cfg.Engine.BucketCapacity, cfg.Engine.RefillRatePerSecond)
		cache := engine.NewMetadataCache()
		upstream := &fetcher.WorkshopClient{
			Client:  &http.Client{Timeout: cfg.Upstream.Timeout},
			BaseURL: cfg.Upstream.BaseURL,
			APIKey:  cfg.Upstream.APIKey,
		}
		scheduler := &engine.FetchScheduler{
			Bucket:         bucket,
			Cache:          cache,
			Upstream:       upstream,
			TTL:            cfg.Engine.TTL,
			BaseRetryDelay: cfg.Engine.BaseRetryDelay,
			MaxRetryDelay:  cfg.Engine.MaxRetryDelay,
			MaxRetries:     cfg.Engine.MaxRetries,
		}

		if cfg.Store.Enabled {
			snapshots, err := store.Open(cmd.Context(), cfg.Store)
			if err == nil {
				defer snapshots.Close() // nolint:errcheck // best-effort cleanup
				scheduler.Persist = func(ctx context.Context, record *core.ModRecord) {
					_ = snapshots.UpsertRecord(ctx, record)
				}
			}
		}

		controller := engine.NewSyncController(scheduler, 0)

		records := make([]*core.ModRecord, 0, len(args))
		failures := 0
		for _, key := range args {
			record, outcome := controller.Fetch(cmd.Context(), key)
			if record == nil {
				record = &core.ModRecord{Key: key, FetchState: core.FetchStateFailed}
			}
			if outcome != engine.OutcomeFetched {
				failures++
			}
			records = append(records, record)
		}

		formatter := output.NewFormatter(format)
		rendered, err := formatter.FormatRecords(records)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		if failures > 0 {
			return fmt.Errorf("%d of %d fetches did not complete", failures, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVar(&fetchOutputFormat, "output-format", string(output.FormatTable), "Output format: table|json")
}
