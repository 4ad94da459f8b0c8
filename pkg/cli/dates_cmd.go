package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"talk2data/internal/dates"
)

func newDatesCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "dates TEXT",
		Short: "Rewrite relative date phrases as explicit dates",
		Example: `  talk2data dates "Umsatz letzten Monat"
  talk2data dates "orders since last week"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := strings.Join(args, " ")
			normalized := dates.NormalizeWithLogger(in, s.logger)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{"input": in, "normalized": normalized})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), normalized)
			return nil
		},
	}
}
