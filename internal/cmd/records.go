package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modlens/modlens/internal/config"
	"github.com/modlens/modlens/internal/core/store"
	"github.com/modlens/modlens/internal/output"
)

var recordsOutputFormat string

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Inspect persisted mod record snapshots",
}

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mod records from the snapshot store",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(recordsOutputFormat)
		if err != nil {
			return err
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		snapshots, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		defer snapshots.Close() // nolint:errcheck // best-effort cleanup

		records, err := snapshots.ListRecords(cmd.Context())
		if err != nil {
			return err
		}

		if len(records) == 0 && format == output.FormatTable {
			fmt.Println("(no persisted mod records)")
			return nil
		}

		formatter := output.NewFormatter(format)
		rendered, err := formatter.FormatRecords(records)
		if err != nil {
			return err
		}
		fmt.Println(rendered)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	recordsCmd.AddCommand(recordsListCmd)

	recordsListCmd.Flags().StringVar(&recordsOutputFormat, "output-format", string(output.FormatTable), "Output format: table|json")
}
