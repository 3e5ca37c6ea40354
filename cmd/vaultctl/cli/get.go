package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vaultfs/internal/objectindex"
	"vaultfs/internal/vaultid"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id> [file]",
		Short: "Read an object, writing to file or stdout",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := vaultid.ParseObjectID(args[0])
			if err != nil {
				return fmt.Errorf("invalid object id %q: %w", args[0], err)
			}
			graceful, _ := cmd.Flags().GetBool("graceful")
			minRate, _ := cmd.Flags().GetFloat64("min-recovery-rate")

			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			var data []byte
			if graceful {
				var report objectindex.CorruptionReport
				data, report, err = e.ReadGraceful(cmd.Context(), id, objectindex.ReadOptions{
					MinRecoveryRate: minRate,
					Fill:            objectindex.Fill{Kind: objectindex.FillZeros},
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "recovery rate: %.1f%% (%d/%d chunks corrupted)\n",
					report.RecoveryRate, report.CorruptedChunks, report.TotalChunks)
			} else {
				data, err = e.Read(cmd.Context(), id)
				if err != nil {
					return err
				}
			}

			out := os.Stdout
			if len(args) == 2 {
				f, err := os.Create(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			_, err = out.Write(data)
			return err
		},
	}
	cmd.Flags().Bool("graceful", false, "tolerate corrupted chunks instead of failing the read")
	cmd.Flags().Float64("min-recovery-rate", 0, "minimum acceptable recovery rate percent for --graceful reads")
	return cmd
}
