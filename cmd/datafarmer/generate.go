package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/datafarmer/datafarmer/internal/frame"
	"github.com/datafarmer/datafarmer/internal/generation"
	"github.com/spf13/cobra"
)

// maxListedFailures bounds the failed rows echoed after a run.
const maxListedFailures = 5

func generateCmd(a *app) *cobra.Command {
	var (
		input  string
		output string
		flags  genFlags
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a result for every row of a CSV file",
		Long: "Reads a CSV file with a prompt column (and optional id, audio_file_path and " +
			"image_file_path columns) and writes an id,result CSV of the successful rows.",
		Example: "datafarmer generate --input reviews.csv --output labels.csv --schema label.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("--input is required")
			}
			output = firstNonEmpty(output, defaultOutputPath(input))

			f, err := readCSVFile(input)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, cleanup, err := a.generationClient(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			out, result, err := runGeneration(ctx, a, client, cmd.ErrOrStderr(), f, &flags)
			if result != nil {
				printSummary(cmd.OutOrStdout(), a.ui, result)
			}
			if err != nil {
				return err
			}

			if err := writeCSVFile(output, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Output written to %s\n", a.ui.ok("[OK]"), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Input CSV file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV file (default <input>_output.csv)")
	flags.register(cmd)
	return cmd
}

// runGeneration runs client over f and returns the result table,
// post-processed according to flags.
func runGeneration(
	ctx context.Context,
	a *app,
	client *generation.Client,
	stderr io.Writer,
	f *frame.Frame,
	flags *genFlags,
) (*frame.Frame, *generation.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.serveMetrics(ctx)

	opts, err := flags.callOptions(client.Config())
	if err != nil {
		return nil, nil, err
	}
	opts = append(opts, generation.WithProgress(progressFunc(stderr, f.Len(), "Generating")))

	out, result, err := client.GenerateFrame(ctx, f, opts...)
	if err != nil {
		return nil, result, err
	}

	if flags.extractJSON {
		var failed int
		out, failed, err = extractJSON(out)
		if err != nil {
			return nil, result, err
		}
		if failed > 0 {
			a.logger.Warn("Some results contain no parseable JSON", "rows", failed)
		}
	}
	return out, result, nil
}

func printSummary(w io.Writer, u *ui, result *generation.Result) {
	succeeded := len(result.Succeeded())
	tag := u.ok("[OK]")
	if succeeded < result.Total {
		tag = u.warn("[WARN]")
	}
	fmt.Fprintf(w, "%s %d/%d rows succeeded (%.2f%%)\n", tag, succeeded, result.Total, result.SuccessRate()*100)

	failed := result.Failed()
	for i, o := range failed {
		if i == maxListedFailures {
			fmt.Fprintf(w, "  %s\n", u.dim(fmt.Sprintf("... and %d more", len(failed)-maxListedFailures)))
			break
		}
		fmt.Fprintf(w, "  %s %s\n", u.err(o.ID), u.dim(o.Text))
	}
}

func defaultOutputPath(input string) string {
	base := strings.TrimSuffix(input, ".csv")
	return base + "_output.csv"
}

func readCSVFile(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	f, err := frame.ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return f, nil
}

func writeCSVFile(path string, f *frame.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := f.WriteCSV(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}
