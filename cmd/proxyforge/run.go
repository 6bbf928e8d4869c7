package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FlickerMi/proxyforge/pkg/cli"
	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/fetcher"
	"github.com/FlickerMi/proxyforge/pkg/forwarder"
	"github.com/FlickerMi/proxyforge/pkg/gateway"
	"github.com/FlickerMi/proxyforge/pkg/pool"
	"github.com/FlickerMi/proxyforge/pkg/server"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/logging"
	"github.com/FlickerMi/proxyforge/pkg/telemetry/metrics"
	"github.com/FlickerMi/proxyforge/pkg/validator"
)

var runFlags struct {
	listenPort int
	logLevel   string
	dryRun     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ProxyForge service",
	Long: `Start the proxy pool and the HTTP gateway.

Examples:
  # Start with default config
  proxyforge run

  # Start with custom config
  proxyforge run --config /etc/proxyforge/config.yaml

  # Override the listen port
  proxyforge run --port 8080

  # Validate config without starting
  proxyforge run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&runFlags.listenPort, "port", "p", 0, "override listen port")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the service")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	if runFlags.listenPort != 0 {
		cfg.Server.Port = runFlags.listenPort
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}
	if cfg.Server.Debug {
		cfg.Logging.Level = "debug"
	}

	_, closeLog, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return cli.NewConfigError("logging", err.Error())
	}
	defer closeLog()

	if runFlags.dryRun {
		fmt.Println("configuration valid")
		return nil
	}

	slog.Info("proxyforge starting", "version", Version)

	collector := metrics.NewCollector(cfg.Metrics, nil)

	proxyFetcher, registry, err := fetcher.NewFromConfig(cfg.Fetcher, collector)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	proxyValidator := validator.New(cfg.Validator, collector)
	proxyPool := pool.New(cfg.Pool, proxyFetcher, proxyValidator, collector)
	fwd := forwarder.New(cfg.Request, collector)

	gw := gateway.New(cfg, proxyPool, proxyFetcher, fwd, collector, gateway.Info{
		Name:        "ProxyForge",
		Version:     Version,
		Description: "代理服务 API",
		Docs:        "https://github.com/FlickerMi/proxyforge",
	})

	ctx := cli.SetupSignalHandler()

	if err := proxyPool.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer proxyPool.Stop()

	if cfg.Fetcher.WatchSources && cfg.Fetcher.SourcesFile != "" {
		watcher := fetcher.NewWatcher(registry, cfg.Fetcher)
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				slog.Error("sources watcher exited", "error", err)
			}
		}()
	}

	srv := server.New(cfg.Server, gw.Routes())
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	slog.Info("proxyforge stopped")
	return nil
}
