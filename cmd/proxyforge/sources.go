package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FlickerMi/proxyforge/pkg/cli"
	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/fetcher"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/logging"
)

var sourcesFlags struct {
	output string
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Probe every configured listing source once",
	Long: `Fetch from each configured proxy listing source and report how many
candidates every source yields, sorted by yield. Useful for pruning dead
listings from a sources file.`,
	RunE: runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)

	sourcesCmd.Flags().StringVarP(&sourcesFlags.output, "output", "o", "text", "output format (text, json)")
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	// Log only errors so probe noise stays out of the report. Without a log
	// file, error records still go to stdout.
	if _, _, err := logging.Setup("error", cfg.Logging.Format, cfg.Logging.File); err != nil {
		return cli.NewConfigError("logging", err.Error())
	}

	proxyFetcher, _, err := fetcher.NewFromConfig(cfg.Fetcher, nil)
	if err != nil {
		return cli.NewCommandError("sources", err)
	}

	report := proxyFetcher.TestSources(cmd.Context())

	switch cli.OutputFormat(sourcesFlags.output) {
	case cli.FormatJSON:
		return cli.WriteJSON(os.Stdout, report)
	default:
		table := cli.NewTable(os.Stdout, "SOURCE", "COUNT", "STATUS", "ERROR")
		for _, result := range report.Sources {
			table.Row(result.Source, result.Count, result.Status, result.Error)
		}
		if err := table.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d/%d sources returned proxies, %d candidates total\n",
			report.SuccessfulSources, report.TotalSources, report.TotalProxies)
		return nil
	}
}
