package cli

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"vaultfs/internal/objectindex"
)

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List objects matching an optional filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			nameSub, _ := cmd.Flags().GetString("name-contains")
			tierFlag, _ := cmd.Flags().GetString("tier")

			filter := objectindex.SearchFilter{Owner: owner, NameSubstring: nameSub}
			if tierFlag != "" {
				tier, err := parseTier(tierFlag)
				if err != nil {
					return err
				}
				filter.Tier = &tier
			}

			e, cleanup, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			records, err := e.List(filter)
			if err != nil {
				return err
			}

			p := newPrinter(outputFormat(cmd))
			if outputFormat(cmd) == "json" {
				return p.json(records)
			}
			var rows [][]string
			for _, rec := range records {
				rows = append(rows, []string{
					rec.ID.String(), rec.Name, rec.Owner,
					humanize.Bytes(rec.Size), rec.Tier.String(),
					rec.ModifiedAt.Format("2006-01-02T15:04:05"),
				})
			}
			p.table([]string{"ID", "NAME", "OWNER", "SIZE", "TIER", "MODIFIED"}, rows)
			return nil
		},
	}
	cmd.Flags().String("owner", "", "filter by exact owner")
	cmd.Flags().String("name-contains", "", "filter by name substring")
	cmd.Flags().String("tier", "", "filter by tier: hot, warm, or cold")
	return cmd
}

func parseTier(s string) (objectindex.Tier, error) {
	switch s {
	case "hot", "HOT":
		return objectindex.TierHot, nil
	case "warm", "WARM":
		return objectindex.TierWarm, nil
	case "cold", "COLD":
		return objectindex.TierCold, nil
	default:
		return 0, fmt.Errorf("unknown tier %q (want hot, warm, or cold)", s)
	}
}
