// Command ticknet-server runs a standalone ticknet server process: it
// binds a UDP socket, accepts peers through the insecure dev authenticator,
// and drives the Receive → ReceiveFlush → FixedUpdate → Sync → Send loop
// spec.md §5 describes. Mirrors the shape of the teacher's core/main.go
// (banner, config load, signal-driven graceful shutdown) with zerolog and
// pflag/yaml in place of the teacher's hand-rolled logger and struct
// literal config.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/internal/clock"
	"github.com/ticknet-go/ticknet/internal/config"
	"github.com/ticknet-go/ticknet/internal/telemetry"
	"github.com/ticknet-go/ticknet/netcode"
	"github.com/ticknet-go/ticknet/ping"
	"github.com/ticknet-go/ticknet/replication"
	"github.com/ticknet-go/ticknet/server"
	"github.com/ticknet-go/ticknet/transport"
)

// buildRegistry registers every protocol-level channel every build of this
// server and its clients must agree on. Client and server call the
// identical function so their compact wire ids line up without
// coordinating integer constants by hand (channel.Kind is content
// addressed; only registration order needs to match, and it matches here
// by construction).
func buildRegistry() *channel.Registry {
	r := channel.NewRegistry()
	r.Register(ping.Kind, ping.Settings())
	r.Register(replication.LifecycleKind, replication.LifecycleSettings())
	return r.Freeze()
}

func main() {
	telemetry.Info("ticknet-server starting")

	cfg, err := config.LoadFlags(pflag.CommandLine, os.Args[1:])
	if err != nil {
		telemetry.Error("failed to load configuration", err, nil)
		os.Exit(1)
	}

	telemetry.Info("configuration loaded", map[string]any{
		"host": cfg.Host, "port": cfg.Port, "max_players": cfg.MaxPlayers,
		"tick_duration": cfg.Shared.TickDuration.String(),
	})

	io, err := transport.ListenUDP(cfg.Host, cfg.Port)
	if err != nil {
		telemetry.Error("failed to bind UDP socket", err, nil)
		os.Exit(1)
	}
	defer io.Close()

	auth := netcode.NewInsecure(10*time.Second, clock.Real{})
	registry := buildRegistry()

	srv := server.New(io, auth, registry, server.Config{
		TickDuration:   cfg.Shared.TickDuration,
		SendInterval:   cfg.Shared.ServerSendInterval,
		PingInitialRTT: cfg.Ping.InitialEstimate,
		MaxParseErrors: 32,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Shared.TickDuration)
	defer ticker.Stop()

	telemetry.Info("ticknet-server ready", map[string]any{"addr": io.LocalAddr().String()})

	for {
		select {
		case sig := <-sigChan:
			telemetry.Warn("received shutdown signal", map[string]any{"signal": sig.String()})
			return
		case now := <-ticker.C:
			if err := srv.Update(now); err != nil {
				telemetry.Error("server update failed", err, nil)
				continue
			}
			srv.AdvanceTick()
			if err := srv.SendPackets(now); err != nil {
				telemetry.Error("server send_packets failed", err, nil)
			}
		}
	}
}
