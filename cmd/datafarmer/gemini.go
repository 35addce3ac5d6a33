package main

import (
	"errors"
	"fmt"

	"github.com/datafarmer/datafarmer/internal/generation"
	"github.com/datafarmer/datafarmer/internal/platform/bigquery"
	"github.com/spf13/cobra"
)

// outputSchema is the schema of the (id, result) table written to BigQuery.
var outputSchema = []bigquery.Field{
	{Name: generation.ColumnID, Type: "STRING", Mode: "NULLABLE"},
	{Name: generation.ColumnResult, Type: "STRING", Mode: "NULLABLE"},
}

func geminiCmd(a *app) *cobra.Command {
	var (
		project     string
		table       string
		destination string
		mode        string
		flags       genFlags
	)

	cmd := &cobra.Command{
		Use:   "gemini",
		Short: "Generate Gemini output for every row of a BigQuery table",
		Long: "Reads dataset.table from BigQuery, runs Gemini over its prompt column and " +
			"writes the id,result table to the destination (default <table>_output). " +
			"Missing values are prompted for when stdin is a terminal.",
		Example: "datafarmer gemini --project my-project --table reviews.raw --destination reviews.labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			p := newPrompter(cmd.InOrStdin(), out)
			if p.interactive {
				fmt.Fprintf(out, "%s\n%s\n", a.ui.title("datafarmer gemini"),
					a.ui.info("Generating LLM output from BigQuery data. Please enter the values below."))
			}

			project = p.ask(a.ui.info("- Google Cloud project id"), project, a.cfg.GCP.ProjectID)
			if project == "" {
				return errors.New("project is required (--project or gcp.project_id)")
			}
			// The managed Gemini endpoint bills the same project as BigQuery.
			a.cfg.GCP.ProjectID = project
			table = p.ask(a.ui.info("- Source table (dataset.table)"), table, "")
			if table == "" {
				return errors.New("--table is required")
			}
			destination = p.ask(a.ui.info("- Destination table"), destination, destinationTable(table, ""))

			writeMode, err := bigquery.ParseWriteMode(mode)
			if err != nil {
				return err
			}
			srcProject, srcDataset, srcTable, err := bigquery.ParseTableRef(table, project)
			if err != nil {
				return err
			}
			dstProject, dstDataset, dstTable, err := bigquery.ParseTableRef(destination, project)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, cleanup, err := a.generationClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			bq, err := bigquery.NewClient(ctx, project, a.logger)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "bigquery", bq)

			a.logger.Info("Loading data from BigQuery", "table", fmt.Sprintf("%s.%s.%s", srcProject, srcDataset, srcTable))
			stop := startSpinner("Loading data from BigQuery...")
			f, err := bq.Read(ctx, sourceQuery(srcProject, srcDataset, srcTable))
			stop()
			if err != nil {
				return err
			}

			result, resultErr := func() (*generation.Result, error) {
				outFrame, result, err := runGeneration(ctx, a, client, cmd.ErrOrStderr(), f, &flags)
				if err != nil {
					return result, err
				}
				stop := startSpinner("Writing output to BigQuery...")
				defer stop()
				return result, bq.Write(ctx, outFrame, dstProject+"."+dstDataset, dstTable, bigquery.WriteOptions{
					Mode:   writeMode,
					Schema: outputSchema,
				})
			}()
			if result != nil {
				printSummary(out, a.ui, result)
			}
			if resultErr != nil {
				return resultErr
			}

			a.logger.Info("Output saved to BigQuery", "table", fmt.Sprintf("%s.%s.%s", dstProject, dstDataset, dstTable))
			fmt.Fprintf(out, "%s Output written to %s.%s.%s\n", a.ui.ok("[OK]"), dstProject, dstDataset, dstTable)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "Google Cloud project (default gcp.project_id)")
	cmd.Flags().StringVar(&table, "table", "", "Source table as dataset.table or project.dataset.table")
	cmd.Flags().StringVar(&destination, "destination", "", "Destination table (default <table>_output)")
	cmd.Flags().StringVar(&mode, "mode", string(bigquery.WriteTruncate), "Write mode: truncate|append|empty")
	flags.register(cmd)
	return cmd
}

// destinationTable returns dest, or the source table suffixed with _output.
func destinationTable(table, dest string) string {
	if dest != "" {
		return dest
	}
	return table + "_output"
}

func sourceQuery(project, dataset, table string) string {
	return fmt.Sprintf("SELECT * FROM `%s.%s.%s`", project, dataset, table)
}
