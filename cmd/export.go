package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hyperke/client-health/internal/export"
	"github.com/hyperke/client-health/internal/store"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the current snapshot and unmatched report to an XLSX file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("export"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initMigratedStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snaps, err := st.ListSnapshots(ctx, store.SnapshotFilter{})
		if err != nil {
			return eris.Wrap(err, "export: list snapshots")
		}
		entries, err := st.ListUnmatched(ctx)
		if err != nil {
			return eris.Wrap(err, "export: list unmatched")
		}
		if err := export.WriteFile(exportOut, snaps, entries); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %d clients to %s\n", len(snaps), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "client_health.xlsx", "output file")
	rootCmd.AddCommand(exportCmd)
}
