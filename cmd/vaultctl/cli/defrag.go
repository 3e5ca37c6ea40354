package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

func newDefragCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defrag",
		Short: "Coalesce the free list",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := e.Defragment()
			if err != nil {
				return err
			}

			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(report)
			}
			p.kv([][2]string{
				{"Extents before", itoa(report.ExtentsBefore)},
				{"Extents after", itoa(report.ExtentsAfter)},
				{"Elapsed", report.Elapsed.String()},
			})
			return nil
		},
	}
}

func newRebalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance-tiers",
		Short: "Recompute every object's advisory access tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return e.TierRebalance()
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim orphaned chunks left by cancelled writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			report, err := e.SweepOrphans(cmd.Context())
			if err != nil {
				return err
			}

			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(report)
			}
			p.kv([][2]string{
				{"Chunks swept", itoa(report.ChunksSwept)},
				{"Bytes reclaimed", itoa64(report.BytesReclaimed)},
			})
			return nil
		},
	}
}

func itoa(n int) string { return strconv.Itoa(n) }

func itoa64(n uint64) string { return strconv.FormatUint(n, 10) }
