package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"talk2data/internal/domain"
)

func newJoinPathCmd(s *settings) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:     "join-path TABLE...",
		Short:   "Show how tables of a schema are joined",
		Example: `  talk2data join-path --schema retail_demo dim_store fact_sales dim_date`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := s.schemas()
			if err != nil {
				return err
			}
			doc, err := schemas.Document(cmd.Context(), s.user, schemaName)
			if err != nil {
				return err
			}
			if missing := doc.MissingTables(args); len(missing) > 0 {
				return &domain.SchemaValidationError{Missing: missing, Available: doc.TableNames()}
			}
			path, ok := doc.FindJoinPath(args)
			if !ok {
				return &domain.JoinPathError{Tables: args}
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{
					"tables":      path.Tables,
					"join_sql":    path.ToSQL(),
					"from_clause": path.FromClause(),
				})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path.FromClause())
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaName, "schema", "", "Schema name")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}
