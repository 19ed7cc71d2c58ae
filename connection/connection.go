// Package connection implements the per-peer Connection (spec.md §4.7): it
// composes the MessageManager, PingManager, SyncManager and
// ReplicationManager that every established peer needs, and drives their
// per-frame protocol.
package connection

import (
	"time"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/internal/telemetry"
	"github.com/ticknet-go/ticknet/message"
	"github.com/ticknet-go/ticknet/packet"
	"github.com/ticknet-go/ticknet/ping"
	"github.com/ticknet-go/ticknet/replication"
	"github.com/ticknet-go/ticknet/timesync"
	"github.com/ticknet-go/ticknet/wire"
)

// Sender is the narrow capability Connection needs from whatever owns the
// actual socket: somewhere to push a finished datagram. Server and Client
// satisfy it by closing over PacketIo and a peer address.
type Sender interface {
	Send(payload []byte) error
}

// Config carries the per-connection tunables drawn from shared/ping
// configuration (spec.md §6).
type Config struct {
	TickDuration   time.Duration
	PingInitialRTT time.Duration
	MTU            int
	Sync           *timesync.Config // nil on server-side connections
	Unified        bool
}

// Connection aggregates one peer's channel state, RTT estimate, optional
// client-side sync state machine, and replication bookkeeping.
type Connection struct {
	registry *channel.Registry
	sender   Sender

	packetMgr *packet.Manager
	msgMgr    *message.Manager
	pingMgr   *ping.Manager
	syncMgr   *timesync.Manager // nil on the server side
	replMgr   *replication.Manager

	lastRecvAt time.Time
}

// New builds a Connection ready to exchange packets. registry must already
// be frozen and include ping.Kind and replication.LifecycleKind plus
// whatever component channels the application registered.
func New(registry *channel.Registry, cfg Config, sender Sender) *Connection {
	packetMgr := packet.NewManager(cfg.MTU)
	msgMgr := message.NewManager(registry, packetMgr)

	var syncMgr *timesync.Manager
	if cfg.Sync != nil {
		syncMgr = timesync.NewManager(*cfg.Sync, cfg.Unified)
	}

	return &Connection{
		registry:  registry,
		sender:    sender,
		packetMgr: packetMgr,
		msgMgr:    msgMgr,
		pingMgr:   ping.NewManager(cfg.TickDuration, cfg.PingInitialRTT),
		syncMgr:   syncMgr,
		replMgr:   replication.NewManager(msgMgr),
	}
}

// UpdateResult reports what the per-frame update produced for the caller
// to act on.
type UpdateResult struct {
	TickEvent timesync.TickEvent
}

// Update runs the ping exchange and (client-side) sync state machine for
// one tick: it answers any pings received since the last call, folds
// incoming pongs into the RTT estimate, and emits its own ping.
func (c *Connection) Update(now time.Time, tick wire.Tick) (UpdateResult, error) {
	if err := c.processPingChannel(now, tick); err != nil {
		return UpdateResult{}, err
	}

	outgoing := ping.EncodePing(c.pingMgr.BuildPing(now, tick))
	if err := c.msgMgr.BufferSend(ping.Kind, outgoing); err != nil {
		return UpdateResult{}, err
	}

	var result UpdateResult
	if c.syncMgr != nil {
		serverTick, ok := c.pingMgr.LatestReceivedServerTick()
		result.TickEvent = c.syncMgr.Update(tick, c.pingMgr.RTT(), ok, serverTick)
	}
	return result, nil
}

func (c *Connection) processPingChannel(now time.Time, tick wire.Tick) error {
	msgs, err := c.msgMgr.ReadMessages(ping.Kind)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		p, pong, err := ping.Decode(msg.Payload)
		if err != nil {
			continue // malformed ping payload: drop, don't kill the connection
		}
		switch {
		case p != nil:
			reply := ping.Pong{Seq: p.Seq, ServerRecvTick: tick, ServerSendTick: tick}
			if err := c.msgMgr.BufferSend(ping.Kind, ping.EncodePong(reply)); err != nil {
				return err
			}
		case pong != nil:
			c.pingMgr.HandlePong(now, *pong)
		}
	}
	return nil
}

// RecvPacket feeds one incoming datagram through the message layer.
func (c *Connection) RecvPacket(now time.Time, data []byte) error {
	if _, err := c.msgMgr.RecvPacket(data); err != nil {
		return err
	}
	c.lastRecvAt = now
	return nil
}

// SendPackets drains everything buffered across every channel into
// MTU-bounded datagrams and pushes them to the Sender.
func (c *Connection) SendPackets(now time.Time, tick wire.Tick) error {
	for _, bytes := range c.msgMgr.SendPackets(now, c.pingMgr.RTT(), tick) {
		if err := c.sender.Send(bytes); err != nil {
			return err
		}
		telemetry.PacketsSent.Inc()
		telemetry.BytesSent.Add(len(bytes))
	}
	return nil
}

// BufferSend queues an application payload on kind's channel.
func (c *Connection) BufferSend(kind channel.Kind, payload []byte) error {
	return c.msgMgr.BufferSend(kind, payload)
}

// ReadMessages drains kind's receiver. It does not filter kinds: called with
// ping.Kind or a replication channel kind it drains that channel, and
// Update/ApplyReplication then no longer see the drained messages.
func (c *Connection) ReadMessages(kind channel.Kind) ([]channel.Message, error) {
	return c.msgMgr.ReadMessages(kind)
}

// BufferReplicationChanges enqueues view's outbound spawn/despawn/component
// events onto the replication channels.
func (c *Connection) BufferReplicationChanges(view replication.WorldView) error {
	return c.replMgr.BufferChanges(view)
}

// ApplyReplication drains and applies inbound replication changes to view.
func (c *Connection) ApplyReplication(view replication.WorldView, componentKinds []replication.ComponentKind) error {
	return c.replMgr.ApplyIncoming(view, componentKinds)
}

// RTT returns the current smoothed round-trip-time estimate for this peer.
func (c *Connection) RTT() time.Duration { return c.pingMgr.RTT() }

// Synced reports whether the client-side sync state machine has completed
// bootstrap. Always true on server-side connections (no SyncManager).
func (c *Connection) Synced() bool {
	if c.syncMgr == nil {
		return true
	}
	return c.syncMgr.Synced()
}

// LastRecvAt returns the wall-clock time of the most recently received
// datagram. server.Server does not read it: keepalive timeout is tracked by
// the netcode.Authenticator.
func (c *Connection) LastRecvAt() time.Time { return c.lastRecvAt }

// PendingReliableCount exposes the outstanding reliable-ack count for
// diagnostics and tests (spec.md §8 "Ack convergence").
func (c *Connection) PendingReliableCount() int { return c.msgMgr.PendingReliableCount() }
