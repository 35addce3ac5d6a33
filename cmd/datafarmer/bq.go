package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/datafarmer/datafarmer/internal/platform/bigquery"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func bqCmd(a *app) *cobra.Command {
	var project string

	client := func(cmd *cobra.Command) (*bigquery.Client, error) {
		project = firstNonEmpty(project, a.cfg.GCP.ProjectID)
		if project == "" {
			return nil, errors.New("project is required (--project or gcp.project_id)")
		}
		return bigquery.NewClient(cmd.Context(), project, a.logger)
	}

	preview := &cobra.Command{
		Use:     "preview <query>",
		Short:   "Show how much data a query would process",
		Example: "datafarmer bq preview 'SELECT * FROM reviews.raw'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bq, err := client(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "bigquery", bq)

			stop := startSpinner("Estimating...")
			size, err := bq.Preview(cmd.Context(), args[0])
			stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s This query will process %s when run.\n", a.ui.info("[INFO]"), size)
			return nil
		},
	}

	schema := &cobra.Command{
		Use:   "schema <dataset>",
		Short: "Print the schema of every table in a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bq, err := client(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "bigquery", bq)

			stop := startSpinner("Reading dataset schema...")
			schemas, err := bq.DatasetSchema(cmd.Context(), args[0])
			stop()
			if err != nil {
				return err
			}
			return printYAML(cmd, schemas)
		},
	}

	info := &cobra.Command{
		Use:   "info <dataset.table>",
		Short: "Print table metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refProject, dataset, table, err := bigquery.ParseTableRef(args[0], firstNonEmpty(project, a.cfg.GCP.ProjectID))
			if err != nil {
				return err
			}
			project = refProject

			bq, err := client(cmd)
			if err != nil {
				return err
			}
			defer closeQuietly(a, "bigquery", bq)

			meta, err := bq.Info(cmd.Context(), dataset, table)
			if err != nil {
				return err
			}
			return printYAML(cmd, meta)
		},
	}

	cmd := &cobra.Command{
		Use:   "bq",
		Short: "BigQuery helpers",
	}
	cmd.PersistentFlags().StringVar(&project, "project", "", "Google Cloud project (default gcp.project_id)")
	cmd.AddCommand(preview, schema, info)
	return cmd
}

func printYAML(cmd *cobra.Command, v any) error {
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err := fmt.Fprint(cmd.OutOrStdout(), b.String())
	return err
}
