package cli

import (
	"github.com/spf13/cobra"
)

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a full integrity scan, classifying and repairing corrupted replicas",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := e.IntegrityScan(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(report)
			}
			p.kv([][2]string{
				{"Files scanned", itoa(report.FilesTotal)},
				{"Files corrupted", itoa(report.FilesCorrupted)},
				{"Chunks scanned", itoa(report.ChunksTotal)},
				{"Chunks corrupted", itoa(report.ChunksCorrupted)},
				{"Elapsed", report.Elapsed.String()},
			})
			return nil
		},
	}
}
