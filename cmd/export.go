package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunegate/resolver/internal/export"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a canonical-entity snapshot as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := newStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return eris.Wrap(err, "export: create output file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		n, err := export.Snapshot(cmd.Context(), st, out)
		if err != nil {
			return err
		}
		zap.L().Info("export complete", zap.Int("entities", n))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write snapshot to file (default: stdout)")
	rootCmd.AddCommand(exportCmd)
}
