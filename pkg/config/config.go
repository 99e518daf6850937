// Package config loads the agent's process configuration: a YAML file
// overridden by CLI flags, with flags taking precedence over the file
// and the file taking precedence over Defaults().
package config

import (
	"fmt"
	"os"

	"github.com/opencontrail/vrouter-agent/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// TunnelType re-exports types.TunnelType so callers of this package
// don't need a second import for the tunnel_type option's value.
type TunnelType = types.TunnelType

const (
	TunnelMPLSoUDP = types.TunnelMPLSUDP
	TunnelVXLAN    = types.TunnelVXLAN
	TunnelMPLSGRE  = types.TunnelMPLSGRE
)

// ParseTunnelType maps the configured string to a TunnelType, defaulting
// to MPLSoGRE for anything unrecognized (spec.md section 6).
func ParseTunnelType(s string) TunnelType {
	return types.ParseTunnelType(s)
}

// Config holds every recognized process option: spec.md section 6's
// literal set plus SPEC_FULL's scheduler/db/flow additions needed to
// make the adaptive-pacing formulas configurable.
type Config struct {
	XMPPServer1 string `yaml:"xmpp_server_1"`
	XMPPServer2 string `yaml:"xmpp_server_2"`

	DNSServer1 string `yaml:"dns_server_1"`
	DNSServer2 string `yaml:"dns_server_2"`

	DiscoveryServer   string `yaml:"discovery_server"`
	XMPPInstanceCount int    `yaml:"xmpp_instance_count"`

	VHostName   string `yaml:"vhost_name"`
	EthPort     string `yaml:"eth_port"`
	HostName    string `yaml:"host_name"`
	ProgramName string `yaml:"program_name"`

	HTTPServerPort int `yaml:"http_server_port"`

	TunnelType string `yaml:"tunnel_type"`

	LogLocal    bool   `yaml:"log_local"`
	LogCategory string `yaml:"log_category"`
	LogLevel    string `yaml:"log_level"`

	Collector     string `yaml:"collector"`
	CollectorPort int    `yaml:"collector_port"`

	MetadataSharedSecret string `yaml:"metadata_shared_secret"`

	// SchedulerWorkers sizes the task scheduler's worker pool. 0 means
	// runtime.NumCPU() (scheduler.New's own default).
	SchedulerWorkers int `yaml:"scheduler_workers"`

	// DBQueueHighWatermark overrides db.DefaultQueueHighWatermark for
	// every table constructed at bootstrap.
	DBQueueHighWatermark int `yaml:"db_queue_high_watermark"`

	// FlowDefaultIntervalMs, FlowAgeTimeMs, and FlowCountPerPassMin feed
	// flow.Config, making section 4.5's adaptive-pacing formula
	// configurable rather than hardcoded.
	FlowDefaultIntervalMs int `yaml:"flow_default_interval_ms"`
	FlowAgeTimeMs         int `yaml:"flow_age_time_ms"`
	FlowCountPerPassMin   int `yaml:"flow_count_per_pass_min"`

	// MetricsAddr and HealthAddr are the bootstrap command's own
	// listener addresses, not part of spec.md's enumerated set but
	// needed to actually serve the metrics/health ambient stack.
	MetricsAddr string `yaml:"metrics_addr"`
	HealthAddr  string `yaml:"health_addr"`
}

// Defaults returns a Config with every option at its spec-mandated or
// otherwise sensible default.
func Defaults() Config {
	return Config{
		HTTPServerPort:        8085,
		TunnelType:            TunnelMPLSGRE.String(),
		LogLevel:              "info",
		SchedulerWorkers:      0,
		DBQueueHighWatermark:  4096,
		FlowDefaultIntervalMs: 1000,
		FlowAgeTimeMs:         180000,
		FlowCountPerPassMin:   100,
		MetricsAddr:           "127.0.0.1:9091",
		HealthAddr:            "127.0.0.1:9092",
	}
}

// Load reads path (if non-empty) as YAML over Defaults(), then applies
// any flag set on cmd that matches a recognized option name.
func Load(path string, cmd *cobra.Command) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cmd == nil {
		return cfg, nil
	}
	applyFlagOverrides(&cfg, cmd)
	return cfg, nil
}

func applyFlagOverrides(cfg *Config, cmd *cobra.Command) {
	flags := cmd.Flags()
	if v, err := flags.GetString("log-level"); err == nil && flags.Changed("log-level") {
		cfg.LogLevel = v
	}
	if v, err := flags.GetInt("http-server-port"); err == nil && flags.Changed("http-server-port") {
		cfg.HTTPServerPort = v
	}
	if v, err := flags.GetString("metrics-addr"); err == nil && flags.Changed("metrics-addr") {
		cfg.MetricsAddr = v
	}
	if v, err := flags.GetString("health-addr"); err == nil && flags.Changed("health-addr") {
		cfg.HealthAddr = v
	}
	if v, err := flags.GetInt("scheduler-workers"); err == nil && flags.Changed("scheduler-workers") {
		cfg.SchedulerWorkers = v
	}
}
