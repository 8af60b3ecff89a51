package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidbrief/internal/models"
	"github.com/jmylchreest/vidbrief/internal/pipeline"
	"github.com/jmylchreest/vidbrief/pkg/format"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process the inbox once",
	Long: `Process every media file currently in the inbox and exit.

Each file over the size ceiling is compressed, then uploaded, summarized,
recorded and announced. The run report is printed when it finishes.

Exit status is non-zero when the run could not start or every item failed.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("json", false, "print the run report as JSON")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.orchestrator.Run(ctx, models.RunTriggerCLI)
	if report == nil {
		return fmt.Errorf("running pipeline: %w", err)
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return fmt.Errorf("encoding report: %w", encErr)
		}
	} else {
		printReport(cmd, report)
	}

	if err != nil {
		a.logger.Error("run failed", slog.String("error", err.Error()))
		return err
	}
	if report.Status == models.RunStatusFailed {
		return fmt.Errorf("run %s failed", report.RunID)
	}
	return nil
}

func printReport(cmd *cobra.Command, report *pipeline.RunReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %s (%s)\n", report.RunID, report.Status, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(out, "  found %d, processed %d, skipped %d, failed %d\n",
		report.ItemsFound, report.ItemsProcessed, report.ItemsSkipped, report.ItemsFailed)
	for _, item := range report.Items {
		fmt.Fprintf(out, "  - %s: %s", item.Name, item.Outcome)
		if item.Transcode == models.TranscodeActionCompressed {
			fmt.Fprintf(out, " (%s -> %s in %d attempts)",
				format.Bytes(item.OriginalSize), format.Bytes(item.FinalSize), item.Attempts)
		}
		if item.Title != "" {
			fmt.Fprintf(out, " %q", item.Title)
		}
		if item.Error != "" {
			fmt.Fprintf(out, " error=%s", item.Error)
		}
		fmt.Fprintln(out)
	}
	if report.Error != "" {
		fmt.Fprintf(out, "  error: %s\n", report.Error)
	}
}
