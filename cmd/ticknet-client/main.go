// Command ticknet-client runs a standalone ticknet client process: it
// opens a UDP socket, connects to a configured server address, and drives
// the client-side FixedUpdate/Sync/Send loop until it receives a shutdown
// signal, logging once when the client-side sync bootstrap completes and
// gameplay sends are no longer discarded as NotSynced (spec.md §7).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/client"
	"github.com/ticknet-go/ticknet/internal/config"
	"github.com/ticknet-go/ticknet/internal/telemetry"
	"github.com/ticknet-go/ticknet/ping"
	"github.com/ticknet-go/ticknet/replication"
	"github.com/ticknet-go/ticknet/timesync"
	"github.com/ticknet-go/ticknet/transport"
)

func buildRegistry() *channel.Registry {
	r := channel.NewRegistry()
	r.Register(ping.Kind, ping.Settings())
	r.Register(replication.LifecycleKind, replication.LifecycleSettings())
	return r.Freeze()
}

func main() {
	fs := pflag.CommandLine
	serverAddr := fs.String("server", "127.0.0.1:7777", "address of the ticknet server to connect to")

	cfg, err := config.LoadFlags(fs, os.Args[1:])
	if err != nil {
		telemetry.Error("failed to load configuration", err, nil)
		os.Exit(1)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", *serverAddr)
	if err != nil {
		telemetry.Error("failed to resolve server address", err, map[string]any{"addr": *serverAddr})
		os.Exit(1)
	}

	io, err := transport.ListenUDP("0.0.0.0", 0)
	if err != nil {
		telemetry.Error("failed to bind UDP socket", err, nil)
		os.Exit(1)
	}
	defer io.Close()

	registry := buildRegistry()
	c := client.New(io, udpAddr, registry, client.Config{
		TickDuration:   cfg.Shared.TickDuration,
		SendInterval:   cfg.Shared.ServerSendInterval,
		PingInitialRTT: cfg.Ping.InitialEstimate,
		Sync: timesync.Config{
			TickDuration:       cfg.Shared.TickDuration,
			InterpolationDelay: cfg.Interpolation.Delay,
			InputBufferTicks:   2,
			SnapThresholdTicks: 10,
			RequiredSamples:    cfg.Ping.SampleCount,
			StddevThreshold:    2.0,
		},
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Shared.TickDuration)
	defer ticker.Stop()

	telemetry.Info("ticknet-client connecting", map[string]any{"server": udpAddr.String()})

	wasSynced := false
	for {
		select {
		case sig := <-sigChan:
			telemetry.Warn("received shutdown signal", map[string]any{"signal": sig.String()})
			return
		case now := <-ticker.C:
			if err := c.Update(now); err != nil {
				telemetry.Error("client update failed", err, nil)
				continue
			}
			c.AdvanceTick()
			if err := c.SendPackets(now); err != nil {
				telemetry.Error("client send_packets failed", err, nil)
			}
			if c.Synced() && !wasSynced {
				wasSynced = true
				telemetry.Info("client sync bootstrap complete", map[string]any{
					"tick": fmt.Sprintf("%d", c.Tick()), "rtt": c.RTT().String(),
				})
			}
		}
	}
}
