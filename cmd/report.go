package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mindmarionette/marionette/core/reporting"
)

var (
	reportArchivePath string
	reportRunID       string
	reportFormat      string
	reportOutput      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List or render archived run reports",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportArchivePath, "archive", "marionette_reports.db", "archive database path")
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "run ID to render (omit to list runs)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "json", "output format: json or html")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(_ *cobra.Command, _ []string) error {
	archive, err := reporting.OpenArchive(reportArchivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	if reportRunID == "" {
		runs, err := archive.Runs()
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no archived runs")
			return nil
		}
		for _, run := range runs {
			fmt.Printf("%s  %s  %s\n", run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"), run.ScenarioID)
		}
		return nil
	}

	report, err := archive.LoadRun(reportRunID)
	if err != nil {
		return err
	}

	out := os.Stdout
	if reportOutput != "" {
		file, err := os.Create(reportOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	switch reportFormat {
	case "json":
		return report.RenderJSON(out)
	case "html":
		return report.RenderHTML(out)
	default:
		return fmt.Errorf("unsupported format %q (want json or html)", reportFormat)
	}
}
