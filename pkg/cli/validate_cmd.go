package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"talk2data/internal/sqlguard"
)

func newValidateCmd(_ *settings) *cobra.Command {
	var rules bool

	cmd := &cobra.Command{
		Use:   "validate SQL",
		Short: "Check SQL against the safety policy",
		Example: `  talk2data validate "SELECT COUNT(*) FROM fact_sales"
  talk2data validate --rules`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := sqlguard.New()
			out := cmd.OutOrStdout()
			if rules {
				_, _ = fmt.Fprintln(out, v.Rules())
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("SQL argument is required")
			}
			res := v.Validate(strings.Join(args, " "))
			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(out, res); err != nil {
					return err
				}
			} else if res.OK {
				_, _ = fmt.Fprintln(out, "OK")
			} else {
				for _, violation := range strings.Split(res.ErrorMessage, "; ") {
					_, _ = fmt.Fprintf(out, "- %s\n", violation)
				}
			}
			if !res.OK {
				return fmt.Errorf("validation failed (%s)", res.ErrorCode)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&rules, "rules", false, "Print the safety rules instead")
	return cmd
}
