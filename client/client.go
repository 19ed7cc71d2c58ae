// Package client implements the Client side of the protocol (spec.md §4,
// "Client"): one Connection to a server address, plus the per-frame
// bookkeeping to drive the client-side sync state machine.
package client

import (
	"fmt"
	"time"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/connection"
	"github.com/ticknet-go/ticknet/internal/telemetry"
	"github.com/ticknet-go/ticknet/replication"
	"github.com/ticknet-go/ticknet/timesync"
	"github.com/ticknet-go/ticknet/transport"
	"github.com/ticknet-go/ticknet/wire"
)

// Config carries the tunables the single server Connection is built with.
type Config struct {
	TickDuration   time.Duration
	SendInterval   time.Duration
	MTU            int
	PingInitialRTT time.Duration
	Sync           timesync.Config
	// Unified bypasses the sync state machine for client/server sharing
	// one process (spec.md §4.6 "Unified mode").
	Unified bool
}

type serverSender struct {
	io         transport.PacketIo
	serverAddr transport.Addr
}

func (s *serverSender) Send(payload []byte) error {
	return s.io.Send(payload, s.serverAddr)
}

// Client owns one Connection to a server and the local simulation tick.
type Client struct {
	io         transport.PacketIo
	serverAddr transport.Addr
	conn       *connection.Connection
	cfg        Config

	tick wire.Tick

	interp timesync.InterpolationClock

	lastSend time.Time
}

func New(io transport.PacketIo, serverAddr transport.Addr, registry *channel.Registry, cfg Config) *Client {
	sync := cfg.Sync
	conn := connection.New(registry, connection.Config{
		TickDuration:   cfg.TickDuration,
		PingInitialRTT: cfg.PingInitialRTT,
		MTU:            cfg.MTU,
		Sync:           &sync,
		Unified:        cfg.Unified,
	}, &serverSender{io: io, serverAddr: serverAddr})

	return &Client{io: io, serverAddr: serverAddr, conn: conn, cfg: cfg}
}

// Tick returns the client's current local simulation tick.
func (c *Client) Tick() wire.Tick { return c.tick }

// InterpolationTick returns the interpolation clock's tick. The client
// starts it at 0 and advances it by one per Update; it does not align it to
// the server tick or apply the interpolation delay.
func (c *Client) InterpolationTick() wire.Tick { return c.interp.Tick() }

// Synced reports whether the client-side sync state machine has completed
// bootstrap (spec.md §4.6): no gameplay input should be sent before this
// is true.
func (c *Client) Synced() bool { return c.conn.Synced() }

// Update runs the Receive/Sync phases for one frame: drains the transport
// into the connection, runs ping/sync bookkeeping, applies any resulting
// TickEvent, and advances the interpolation clock.
func (c *Client) Update(now time.Time) error {
	for {
		data, addr, ok := c.io.Recv()
		if !ok {
			break
		}
		if addr != nil && addr.String() != c.serverAddr.String() {
			continue // spec.md §7 UnknownPeer: datagram not from the server
		}
		telemetry.PacketsReceived.Inc()
		telemetry.BytesReceived.Add(len(data))
		if err := c.conn.RecvPacket(now, data); err != nil {
			telemetry.PacketsDropped.Inc()
			continue
		}
	}

	result, err := c.conn.Update(now, c.tick)
	if err != nil {
		return fmt.Errorf("client: update: %w", err)
	}
	c.applyTickEvent(result.TickEvent)
	c.interp.Advance()

	return nil
}

func (c *Client) applyTickEvent(ev timesync.TickEvent) {
	switch ev.Kind {
	case timesync.EventSnapBack:
		c.tick = ev.NewTick
	case timesync.EventSoftWarp:
		// A real simulation loop would scale its delta by ev.Multiplier for
		// this frame; the tick counter itself still advances by exactly one
		// step per FixedUpdate.
	}
}

// AdvanceTick steps the local simulation tick forward by one, called once
// per FixedUpdate phase.
func (c *Client) AdvanceTick() { c.tick = c.tick.Add(1) }

// SendPackets runs the Send phase, gated by cfg.SendInterval.
func (c *Client) SendPackets(now time.Time) error {
	if !c.lastSend.IsZero() && now.Sub(c.lastSend) < c.cfg.SendInterval {
		return nil
	}
	c.lastSend = now
	return c.conn.SendPackets(now, c.tick)
}

// BufferSend queues an application payload if sync has completed; before
// that it is silently discarded (spec.md §7 "NotSynced").
func (c *Client) BufferSend(kind channel.Kind, payload []byte) error {
	if !c.Synced() {
		return nil
	}
	return c.conn.BufferSend(kind, payload)
}

// ReadMessages drains kind's receiver.
func (c *Client) ReadMessages(kind channel.Kind) ([]channel.Message, error) {
	return c.conn.ReadMessages(kind)
}

// ApplyReplication drains and applies inbound replication changes to view.
func (c *Client) ApplyReplication(view replication.WorldView, componentKinds []replication.ComponentKind) error {
	return c.conn.ApplyReplication(view, componentKinds)
}

// RTT returns the current smoothed round-trip-time estimate to the server.
func (c *Client) RTT() time.Duration { return c.conn.RTT() }
