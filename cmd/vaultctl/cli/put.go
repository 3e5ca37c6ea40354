package cli

import (
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <name> <owner> [file]",
		Short: "Write an object, reading from file or stdin",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			redundancy, _ := cmd.Flags().GetInt("redundancy")

			var r io.Reader = os.Stdin
			if len(args) == 3 {
				f, err := os.Open(args[2])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}

			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			id, err := e.Write(cmd.Context(), args[0], args[1], data, redundancy)
			if err != nil {
				return err
			}

			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(map[string]string{"id": id.String(), "size": strconv.Itoa(len(data))})
			}
			p.kv([][2]string{
				{"ID", id.String()},
				{"Size", humanize.Bytes(uint64(len(data)))},
			})
			return nil
		},
	}
	cmd.Flags().Int("redundancy", 0, "replica count override for this write (0 uses the configured default)")
	return cmd
}
