// Package server implements the Server multiplexer (spec.md §4.8): it owns
// the transport and authenticator, keeps one Connection per connected
// peer, routes inbound datagrams to the right one, and resolves
// replication targets against the live peer set.
package server

import (
	"time"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/connection"
	"github.com/ticknet-go/ticknet/internal/telemetry"
	"github.com/ticknet-go/ticknet/netcode"
	"github.com/ticknet-go/ticknet/replication"
	"github.com/ticknet-go/ticknet/transport"
	"github.com/ticknet-go/ticknet/wire"
)

// Config carries the tunables every accepted Connection is built with.
type Config struct {
	TickDuration   time.Duration
	SendInterval   time.Duration
	MTU            int
	PingInitialRTT time.Duration
	MaxParseErrors int
}

// Server is the per-process peer multiplexer. It runs entirely on the
// caller's goroutine: spec.md §5 declares the whole simulation loop
// single-threaded cooperative, so unlike the teacher's listener (which
// spawned one goroutine per inbound packet plus separate ticker
// goroutines), every Update/SendPackets call here runs synchronously and
// needs no locking.
type Server struct {
	io       transport.PacketIo
	auth     netcode.Authenticator
	registry *channel.Registry
	cfg      Config

	tick wire.Tick

	peers      map[netcode.PeerID]*connection.Connection
	addrToPeer map[string]netcode.PeerID
	parseErrs  map[netcode.PeerID]int

	lastUpdate time.Time
	lastSend   time.Time
}

func New(io transport.PacketIo, auth netcode.Authenticator, registry *channel.Registry, cfg Config) *Server {
	return &Server{
		io:         io,
		auth:       auth,
		registry:   registry,
		cfg:        cfg,
		peers:      make(map[netcode.PeerID]*connection.Connection),
		addrToPeer: make(map[string]netcode.PeerID),
		parseErrs:  make(map[netcode.PeerID]int),
	}
}

// Tick returns the server's current simulation tick.
func (s *Server) Tick() wire.Tick { return s.tick }

// AdvanceTick steps the simulation tick forward by one, called once per
// FixedUpdate phase by the owner's loop.
func (s *Server) AdvanceTick() { s.tick = s.tick.Add(1) }

// PeerCount returns the number of currently connected peers.
func (s *Server) PeerCount() int { return len(s.peers) }

// Update runs the Receive and ReceiveFlush phases (spec.md §5): it polls
// the authenticator for connect/disconnect events, drains the transport,
// and dispatches each datagram to its connection.
func (s *Server) Update(now time.Time) error {
	dt := now.Sub(s.lastUpdate)
	if s.lastUpdate.IsZero() {
		dt = 0
	}
	s.lastUpdate = now

	s.auth.TryUpdate(dt)
	s.applyAuthEvents()

	for {
		data, addr, ok := s.io.Recv()
		if !ok {
			break
		}
		s.dispatch(now, data, addr)
	}

	for peer, conn := range s.peers {
		if _, err := conn.Update(now, s.tick); err != nil {
			telemetry.Error("connection update failed", err, map[string]any{"peer": string(peer)})
		}
	}
	return nil
}

func (s *Server) applyAuthEvents() {
	for _, ev := range s.auth.DrainEvents() {
		switch ev.Kind {
		case netcode.EventConnected:
			conn := connection.New(s.registry, connection.Config{
				TickDuration:   s.cfg.TickDuration,
				PingInitialRTT: s.cfg.PingInitialRTT,
				MTU:            s.cfg.MTU,
			}, &peerSender{io: s.io, addr: ev.Addr})
			s.peers[ev.Peer] = conn
			s.addrToPeer[ev.Addr.String()] = ev.Peer
			telemetry.PeersConnected.Inc()
			telemetry.Info("peer connected", map[string]any{"peer": string(ev.Peer)})
		case netcode.EventDisconnected:
			delete(s.peers, ev.Peer)
			delete(s.parseErrs, ev.Peer)
			if ev.Addr != nil {
				delete(s.addrToPeer, ev.Addr.String())
			}
			telemetry.PeersConnected.Dec()
			telemetry.Info("peer disconnected", map[string]any{"peer": string(ev.Peer)})
		}
	}
}

func (s *Server) dispatch(now time.Time, data []byte, addr transport.Addr) {
	peer, known := s.addrToPeer[addr.String()]
	if !known {
		// UnknownPeer (spec.md §7): not yet a recognized connection. Resolve
		// it so the authenticator queues a Connected event for next Update,
		// and drop this datagram — the sender's reliable channels will
		// retransmit.
		s.auth.Resolve(addr)
		return
	}
	// Every datagram from a known peer refreshes its keepalive in the
	// authenticator.
	s.auth.Resolve(addr)

	telemetry.PacketsReceived.Inc()
	telemetry.BytesReceived.Add(len(data))

	conn := s.peers[peer]
	if err := conn.RecvPacket(now, data); err != nil {
		telemetry.PacketsDropped.Inc()
		s.parseErrs[peer]++
		if s.cfg.MaxParseErrors > 0 && s.parseErrs[peer] > s.cfg.MaxParseErrors {
			telemetry.Error("peer exceeded parse error threshold, disconnecting", err, map[string]any{"peer": string(peer)})
			delete(s.peers, peer)
			delete(s.addrToPeer, addr.String())
			delete(s.parseErrs, peer)
		}
		return
	}
	delete(s.parseErrs, peer)
}

// SendPackets runs the Send phase, gated by cfg.SendInterval.
func (s *Server) SendPackets(now time.Time) error {
	if !s.lastSend.IsZero() && now.Sub(s.lastSend) < s.cfg.SendInterval {
		return nil
	}
	s.lastSend = now

	for peer, conn := range s.peers {
		if err := conn.SendPackets(now, s.tick); err != nil {
			telemetry.Error("send_packets failed", err, map[string]any{"peer": string(peer)})
		}
	}
	return nil
}

// resolve returns the connections addressed by t, evaluated against the
// live peer set at call time (spec.md §4.8).
func (s *Server) resolve(t Target) []*connection.Connection {
	var out []*connection.Connection
	switch t.kind {
	case targetAll:
		for _, conn := range s.peers {
			out = append(out, conn)
		}
	case targetAllExcept:
		for peer, conn := range s.peers {
			if peer != t.peer {
				out = append(out, conn)
			}
		}
	case targetOnly:
		if conn, ok := s.peers[t.peer]; ok {
			out = append(out, conn)
		}
	}
	return out
}

// BufferReplication enqueues view's current changes onto every connection
// addressed by t. view's iterators are assumed idempotent within a tick —
// each addressed connection queries the same snapshot of changes
// independently, rather than the snapshot being drained once and fanned
// out, so a single WorldView can be replicated to an arbitrary target set
// without coordination.
func (s *Server) BufferReplication(t Target, view replication.WorldView) error {
	for _, conn := range s.resolve(t) {
		if err := conn.BufferReplicationChanges(view); err != nil {
			return err
		}
	}
	return nil
}

// BufferSend enqueues payload on kind for every connection addressed by t.
func (s *Server) BufferSend(t Target, kind channel.Kind, payload []byte) error {
	for _, conn := range s.resolve(t) {
		if err := conn.BufferSend(kind, payload); err != nil {
			return err
		}
	}
	return nil
}

// Peers returns the currently connected peer ids.
func (s *Server) Peers() []netcode.PeerID {
	out := make([]netcode.PeerID, 0, len(s.peers))
	for peer := range s.peers {
		out = append(out, peer)
	}
	return out
}

// Connection returns the Connection for a specific peer, if connected.
func (s *Server) Connection(peer netcode.PeerID) (*connection.Connection, bool) {
	conn, ok := s.peers[peer]
	return conn, ok
}
