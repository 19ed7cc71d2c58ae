// Package config loads the ticknet runtime configuration: a pflag-parsed
// set of flags optionally overlaid with a YAML file, replacing the
// teacher's hardcoded struct literal in core/main.go with the config layer
// the rest of the reference pack uses (pflag + yaml.v3).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Shared holds the simulation-wide knobs from spec.md §6 "shared.*".
type Shared struct {
	TickDuration       time.Duration `yaml:"tick_duration"`
	ServerSendInterval time.Duration `yaml:"server_send_interval"`
}

// Netcode holds the authenticator inputs from spec.md §6 "netcode.*".
type Netcode struct {
	ProtocolID uint64 `yaml:"protocol_id"`
	Key        string `yaml:"key"`
}

// Ping holds the RTT bootstrap knobs from spec.md §6 "ping.*".
type Ping struct {
	InitialEstimate time.Duration `yaml:"initial_estimate"`
	SampleCount     int           `yaml:"sample_count"`
}

// Interpolation holds the client-side interpolation clock delay.
type Interpolation struct {
	Delay time.Duration `yaml:"delay"`
}

// LinkConditioner holds dev-only simulated transport impairments. Neither
// cmd binary reads these fields; they take effect only where a
// transport.LinkConditioner is built from them.
type LinkConditioner struct {
	Enabled bool          `yaml:"enabled"`
	Latency time.Duration `yaml:"latency"`
	Jitter  time.Duration `yaml:"jitter"`
	Loss    float64       `yaml:"loss"`
}

// Config aggregates every configuration knob spec.md §6 enumerates, plus
// the host/port/player-count fields the teacher's main.go assembled inline.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	MaxPlayers int    `yaml:"max_players"`
	ServerName string `yaml:"server_name"`

	Shared          Shared          `yaml:"shared"`
	Netcode         Netcode         `yaml:"netcode"`
	Ping            Ping            `yaml:"ping"`
	Interpolation   Interpolation   `yaml:"interpolation"`
	LinkConditioner LinkConditioner `yaml:"link_conditioner"`
}

// Default returns the configuration a fresh install would ship with.
func Default() Config {
	return Config{
		Host:       "0.0.0.0",
		Port:       7777,
		MaxPlayers: 64,
		ServerName: "ticknet server",
		Shared: Shared{
			TickDuration:       time.Second / 60,
			ServerSendInterval: time.Second / 20,
		},
		Netcode: Netcode{
			ProtocolID: 0x7469636b,
			Key:        "",
		},
		Ping: Ping{
			InitialEstimate: 100 * time.Millisecond,
			SampleCount:     8,
		},
		Interpolation: Interpolation{
			Delay: 100 * time.Millisecond,
		},
	}
}

// LoadFlags registers flags on fs (pass pflag.CommandLine for a standalone
// binary) seeded from Default(), then parses args. A non-empty --config
// path is loaded first and flags override whatever it sets, mirroring the
// usual "file for defaults, flags for overrides" precedence.
func LoadFlags(fs *pflag.FlagSet, args []string) (Config, error) {
	cfg := Default()

	var configPath string
	fs.StringVar(&configPath, "config", "", "path to a YAML config file")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "address to bind")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "UDP port to bind")
	fs.IntVar(&cfg.MaxPlayers, "max-players", cfg.MaxPlayers, "maximum concurrent peers")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "server display name")
	fs.DurationVar(&cfg.Shared.TickDuration, "tick-duration", cfg.Shared.TickDuration, "nominal simulation step")
	fs.DurationVar(&cfg.Shared.ServerSendInterval, "send-interval", cfg.Shared.ServerSendInterval, "datagram send cadence")
	fs.Uint64Var(&cfg.Netcode.ProtocolID, "protocol-id", cfg.Netcode.ProtocolID, "authenticator protocol id")
	fs.StringVar(&cfg.Netcode.Key, "netcode-key", cfg.Netcode.Key, "authenticator shared key")
	fs.DurationVar(&cfg.Ping.InitialEstimate, "ping-initial-estimate", cfg.Ping.InitialEstimate, "RTT bootstrap estimate")
	fs.IntVar(&cfg.Ping.SampleCount, "ping-sample-count", cfg.Ping.SampleCount, "sync samples required before Synced (one per client update once a pong has arrived)")
	fs.DurationVar(&cfg.Interpolation.Delay, "interpolation-delay", cfg.Interpolation.Delay, "interpolation clock trail behind server tick")
	fs.BoolVar(&cfg.LinkConditioner.Enabled, "link-conditioner", cfg.LinkConditioner.Enabled, "enable simulated latency/jitter/loss (not applied by the cmd binaries)")
	fs.DurationVar(&cfg.LinkConditioner.Latency, "link-latency", cfg.LinkConditioner.Latency, "simulated one-way latency")
	fs.DurationVar(&cfg.LinkConditioner.Jitter, "link-jitter", cfg.LinkConditioner.Jitter, "simulated latency jitter")
	fs.Float64Var(&cfg.LinkConditioner.Loss, "link-loss", cfg.LinkConditioner.Loss, "simulated packet loss fraction [0,1]")

	// A first pass just to pick up --config before the real parse applies
	// flag overrides on top of it.
	preArgs := append([]string(nil), args...)
	pre := pflag.NewFlagSet(fs.Name(), pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.StringVar(&configPath, "config", "", "")
	_ = pre.Parse(preArgs)

	if configPath != "" {
		if err := loadYAMLInto(&cfg, configPath); err != nil {
			return Config{}, err
		}
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAMLInto(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}
	return nil
}
