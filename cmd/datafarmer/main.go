// Package main implements the datafarmer command line tool, which runs
// batch Gemini generation over BigQuery tables and CSV files and offers a
// few data helpers around it: BigQuery previews, table profiling, and
// Drive and Sheets transfers.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := newApp()
	root := newRootCmd(a)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, a.ui.err("[ERROR]"), err.Error())
		cancel()
		os.Exit(1)
	}
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "datafarmer",
		Short: "Batch Gemini generation over tabular data",
		Long: "datafarmer runs Gemini over every row of a BigQuery table or CSV file " +
			"and writes the (id, result) table back, with helpers for BigQuery, Drive and Sheets.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Environment file loaded before configuration")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during a run")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.init(cmd.ErrOrStderr())
	}

	root.AddCommand(testCmd(a))
	root.AddCommand(geminiCmd(a))
	root.AddCommand(generateCmd(a))
	root.AddCommand(bqCmd(a))
	root.AddCommand(profileCmd(a))
	root.AddCommand(driveCmd(a))
	root.AddCommand(sheetCmd(a))
	root.AddCommand(ragCmd(a))
	return root
}

func testCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the CLI is working",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s the %s CLI is working\n", a.ui.ok("[OK]"), a.ui.title("datafarmer"))
			fmt.Fprintf(out, "%s backend=%s model=%s\n", a.ui.dim("[CONFIG]"), a.cfg.Gemini.Backend, a.cfg.Gemini.Model)
			return nil
		},
	}
}

func closeQuietly(a *app, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		a.logger.Warn("Failed to close client", "client", name, "error", err)
	}
}
