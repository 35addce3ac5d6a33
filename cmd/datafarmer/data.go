package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/datafarmer/datafarmer/internal/platform/gdrive"
	"github.com/datafarmer/datafarmer/internal/platform/sheets"
	"github.com/datafarmer/datafarmer/internal/profile"
	"github.com/spf13/cobra"
)

func profileCmd(a *app) *cobra.Command {
	var nulls bool

	cmd := &cobra.Command{
		Use:   "profile <csv>",
		Short: "Summarize the columns of a CSV file",
		Long: "Prints one row per column with its inferred type and distinct values, " +
			"or with --nulls the null count and proportion of every column that has nulls.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readCSVFile(args[0])
			if err != nil {
				return err
			}

			report := profile.Features
			if nulls {
				report = profile.NullProportion
			}
			out, err := report(f)
			if err != nil {
				return err
			}
			a.logger.Debug("Profiled table", "path", args[0], "rows", f.Len(), "columns", len(f.Columns()))
			return out.WriteCSV(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&nulls, "nulls", false, "Report null proportions instead of features")
	return cmd
}

func driveCmd(a *app) *cobra.Command {
	var (
		folder string
		name   string
	)

	upload := &cobra.Command{
		Use:     "upload <csv>",
		Short:   "Upload a CSV file to a Drive folder",
		Example: "datafarmer drive upload labels.csv --folder exports",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if folder == "" {
				return errors.New("--folder is required")
			}
			f, err := readCSVFile(args[0])
			if err != nil {
				return err
			}

			client, err := gdrive.NewClient(cmd.Context(), a.cfg.GCP.ProjectID, a.logger)
			if err != nil {
				return err
			}

			stop := startSpinner("Uploading...")
			file, err := client.WriteFile(cmd.Context(), f, firstNonEmpty(name, filepath.Base(args[0])), folder)
			stop()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Uploaded %s (%s)\n", a.ui.ok("[OK]"), file.Name, file.WebViewLink)
			return nil
		},
	}
	upload.Flags().StringVar(&folder, "folder", "", "Destination folder name")
	upload.Flags().StringVar(&name, "name", "", "File name in Drive (default the local file name)")

	cmd := &cobra.Command{
		Use:   "drive",
		Short: "Google Drive helpers",
	}
	cmd.AddCommand(upload)
	return cmd
}

func sheetCmd(a *app) *cobra.Command {
	var (
		sheetID   string
		sheetName string
		output    string
	)

	read := &cobra.Command{
		Use:     "read",
		Short:   "Export a sheet to CSV",
		Example: "datafarmer sheet read --id 1AbC... --name Prompts --output prompts.csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sheetID == "" || sheetName == "" {
				return errors.New("--id and --name are required")
			}

			client, err := sheets.NewClient(cmd.Context(), a.logger)
			if err != nil {
				return err
			}
			f, err := client.Read(cmd.Context(), sheetID, sheetName)
			if err != nil {
				return err
			}

			if output == "" {
				return f.WriteCSV(cmd.OutOrStdout())
			}
			if err := writeCSVFile(output, f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d rows written to %s\n", a.ui.ok("[OK]"), f.Len(), output)
			return nil
		},
	}
	read.Flags().StringVar(&sheetID, "id", "", "Spreadsheet id")
	read.Flags().StringVar(&sheetName, "name", "", "Sheet (tab) name")
	read.Flags().StringVarP(&output, "output", "o", "", "Output CSV file (default stdout)")

	cmd := &cobra.Command{
		Use:   "sheet",
		Short: "Google Sheets helpers",
	}
	cmd.AddCommand(read)
	return cmd
}
