package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"talk2data/internal/engine"
	"talk2data/internal/service/assistant"
)

// askFlags are shared by generate and query.
type askFlags struct {
	schema     string
	tables     []string
	maxRetries int
	threshold  float64
}

func (f *askFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.schema, "schema", "", "Schema name")
	cmd.Flags().StringSliceVar(&f.tables, "table", nil, "Actual table name for a flat schema (repeatable)")
	cmd.Flags().IntVar(&f.maxRetries, "max-retries", assistant.DefaultMaxRetries, "Correction attempts after the first")
	cmd.Flags().Float64Var(&f.threshold, "threshold", assistant.DefaultConfidenceThreshold, "Minimum confidence score")
	_ = cmd.MarkFlagRequired("schema")
}

func (f *askFlags) request(question string) assistant.AskRequest {
	return assistant.AskRequest{
		Question:            question,
		SchemaName:          f.schema,
		ActualTableNames:    f.tables,
		MaxRetries:          &f.maxRetries,
		ConfidenceThreshold: &f.threshold,
	}
}

func newGenerateCmd(s *settings) *cobra.Command {
	var f askFlags

	cmd := &cobra.Command{
		Use:   "generate QUESTION",
		Short: "Generate validated SQL for a question",
		Example: `  talk2data generate "Revenue per region in 2024" --schema retail_demo
  talk2data generate "How many orders last month?" --schema orders --table orders_2024`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := s.assistant()
			if err != nil {
				return err
			}
			ans, err := svc.Ask(cmd.Context(), s.user, f.request(strings.Join(args, " ")))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(out, ans); err != nil {
					return err
				}
			} else {
				printAnswer(out, ans)
			}
			if !ans.ValidationPassed {
				return fmt.Errorf("no valid SQL: %s", ans.Message)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func printAnswer(w io.Writer, ans *assistant.Answer) {
	_, _ = fmt.Fprintf(w, "%s\n\n", ans.SQL)
	PrintDetail(w, map[string]string{
		"Confidence": strconv.FormatFloat(ans.Confidence, 'f', 2, 64),
		"Attempts":   strconv.Itoa(ans.Attempts),
		"Valid":      strconv.FormatBool(ans.ValidationPassed),
		"Tables":     strings.Join(ans.Tables, ", "),
		"Message":    ans.Message,
		"Duration":   strconv.FormatInt(ans.DurationMs, 10) + "ms",
	})
}

func newQueryCmd(s *settings) *cobra.Command {
	var (
		f       askFlags
		files   []string
		maxRows int
	)

	cmd := &cobra.Command{
		Use:   "query QUESTION",
		Short: "Generate SQL and run it on data files with DuckDB",
		Long: "Each file becomes a view named after its file stem. Local paths and s3://, gs://, az:// " +
			"or https:// URIs are accepted; CSV, Parquet and JSON are detected by extension.",
		Example: `  talk2data query "Total amount per city" --schema shop --file orders.csv --file customers.parquet`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 {
				return fmt.Errorf("at least one --file is required")
			}
			svc, err := s.assistant()
			if err != nil {
				return err
			}
			items := make([]engine.FileItem, len(files))
			for i, src := range files {
				items[i] = engine.FileItem{Source: src}
			}
			res, err := svc.Execute(cmd.Context(), s.user, f.request(strings.Join(args, " ")), items,
				engine.Options{MaxRows: maxRows, Logger: s.logger})
			out := cmd.OutOrStdout()
			if err != nil {
				if res != nil && res.Answer != nil && getOutputFormat(cmd) != "json" {
					printAnswer(out, res.Answer)
				}
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, res)
			}
			_, _ = fmt.Fprintf(out, "%s\n\n", res.Answer.SQL)
			rows := make([][]string, len(res.Result.Rows))
			for i, row := range res.Result.Rows {
				rows[i] = make([]string, len(row))
				for j, v := range row {
					rows[i][j] = cellString(v)
				}
			}
			PrintTable(out, res.Result.Columns, rows)
			if res.Result.Truncated {
				_, _ = fmt.Fprintf(out, "(showing first %d rows)\n", res.Result.RowCount)
			}
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringArrayVar(&files, "file", nil, "Data file to query (repeatable)")
	cmd.Flags().IntVar(&maxRows, "max-rows", engine.DefaultMaxRows, "Maximum rows to print")
	return cmd
}
