package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencontrail/vrouter-agent/pkg/agent"
	"github.com/opencontrail/vrouter-agent/pkg/config"
	"github.com/opencontrail/vrouter-agent/pkg/log"
	"github.com/opencontrail/vrouter-agent/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "vrouter-agent",
	Short:   "Virtual router control-agent core",
	Version: Version,
	RunE:    runAgent,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"vrouter-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to the agent's YAML configuration file")
	rootCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Int("http-server-port", 0, "Sandesh/introspection HTTP port (spec.md section 6)")
	rootCmd.Flags().String("metrics-addr", "", "Address the /metrics endpoint listens on")
	rootCmd.Flags().String("health-addr", "", "Address the /healthz, /readyz, /livez endpoints listen on")
	rootCmd.Flags().Int("scheduler-workers", 0, "Scheduler worker pool size (0 = CPU count)")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("vrouter-agent starting")

	a := agent.New(cfg, nil, nil)
	a.Start()
	log.Info("agent started")

	health := metrics.NewHealthChecker(a)
	health.SetVersion(Version)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics endpoint listening")

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/healthz", health.HealthHandler())
		mux.Handle("/readyz", health.ReadyHandler())
		mux.Handle("/livez", health.LivenessHandler())
		if err := http.ListenAndServe(cfg.HealthAddr, mux); err != nil {
			log.Logger.Error().Err(err).Msg("health server stopped")
		}
	}()
	log.Logger.Info().Str("addr", cfg.HealthAddr).Msg("health endpoints listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	a.Stop()
	log.Info("shutdown complete")
	return nil
}
