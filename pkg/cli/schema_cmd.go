package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSchemaCmd(s *settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage stored schema documents",
	}
	cmd.AddCommand(newSchemaListCmd(s))
	cmd.AddCommand(newSchemaShowCmd(s))
	cmd.AddCommand(newSchemaPutCmd(s))
	cmd.AddCommand(newSchemaDeleteCmd(s))
	cmd.AddCommand(newSchemaSummaryCmd(s))
	return cmd
}

func newSchemaListCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List schema names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			schemas, err := s.schemas()
			if err != nil {
				return err
			}
			names, err := schemas.List(cmd.Context(), s.user)
			if err != nil {
				return err
			}
			if names == nil {
				names = []string{}
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string][]string{"schemas": names})
			}
			rows := make([][]string, len(names))
			for i, n := range names {
				rows[i] = []string{n}
			}
			PrintTable(cmd.OutOrStdout(), []string{"name"}, rows)
			return nil
		},
	}
}

func newSchemaShowCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Print a stored schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := s.schemas()
			if err != nil {
				return err
			}
			raw, err := schemas.Get(cmd.Context(), s.user, args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	}
}

func newSchemaPutCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:     "put NAME FILE",
		Short:   "Validate and store a JSON or YAML schema document",
		Example: `  talk2data schema put shop ./shop.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read schema file: %w", err)
			}
			schemas, err := s.schemas()
			if err != nil {
				return err
			}
			if err := schemas.Put(cmd.Context(), s.user, args[0], raw); err != nil {
				return err
			}
			doc, err := schemas.Document(cmd.Context(), s.user, args[0])
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{"name": args[0], "tables": doc.TableNames()})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored schema %q (%d tables)\n", args[0], len(doc.Tables))
			return nil
		},
	}
}

func newSchemaDeleteCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := s.schemas()
			if err != nil {
				return err
			}
			if err := schemas.Delete(cmd.Context(), s.user, args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted schema %q\n", args[0])
			return nil
		},
	}
}

func newSchemaSummaryCmd(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "summary NAME",
		Short: "Show the tables and KPIs the model sees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas, err := s.schemas()
			if err != nil {
				return err
			}
			doc, err := schemas.Document(cmd.Context(), s.user, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, map[string]interface{}{
					"name":    args[0],
					"tables":  doc.TableNames(),
					"flat":    doc.IsFlat(),
					"summary": doc.SchemaSummary(),
					"kpis":    doc.KPIsSummary(),
				})
			}
			PrintDetail(out, map[string]string{
				"Name":   args[0],
				"Tables": strings.Join(doc.TableNames(), ", "),
				"Flat":   strconv.FormatBool(doc.IsFlat()),
			})
			_, _ = fmt.Fprintf(out, "\n%s\n", doc.SchemaSummary())
			if kpis := doc.KPIsSummary(); kpis != "" {
				_, _ = fmt.Fprintf(out, "\n%s\n", kpis)
			}
			return nil
		},
	}
}
