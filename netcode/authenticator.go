// Package netcode reduces the handshake/credential protocol to the
// Authenticator contract consumed by Server (spec.md §6): an opaque
// component that yields validated peer-connect/disconnect events. It ships
// one "insecure" implementation suitable for trusted/dev deployments, where
// any previously-unseen transport address is trusted on first contact.
package netcode

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ticknet-go/ticknet/internal/clock"
	"github.com/ticknet-go/ticknet/transport"
)

// PeerID uniquely identifies one connected peer for the lifetime of its
// connection.
type PeerID string

// EventKind distinguishes the two lifecycle events an Authenticator emits.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
)

// Event reports one peer lifecycle transition.
type Event struct {
	Kind EventKind
	Peer PeerID
	Addr transport.Addr
}

// eventQueueSize bounds the MPSC queue the authenticator pushes events
// into (spec.md §5 "bounded MPSC queues consumed by the server during
// update"). Sized generously above any plausible per-tick connect/
// disconnect burst.
const eventQueueSize = 4096

// Authenticator is the external handshake/credential collaborator
// (spec.md §6).
type Authenticator interface {
	// TryUpdate advances internal state (e.g. keepalive timeout tracking).
	TryUpdate(dt time.Duration)
	// DrainEvents returns and clears every Connected/Disconnected event
	// queued since the last call.
	DrainEvents() []Event
	// Resolve maps an inbound datagram's source address to a PeerID,
	// registering it (and queuing a Connected event) on first contact.
	Resolve(addr transport.Addr) PeerID
	// AddrOf returns the transport address a peer was last seen at.
	AddrOf(peer PeerID) (transport.Addr, bool)
}

// Insecure is a dev/trusted-network Authenticator: it has no credential
// protocol at all. Any address is accepted as a new peer the first time a
// datagram arrives from it, and a peer is disconnected purely on
// keepalive timeout.
type Insecure struct {
	keepaliveTimeout time.Duration
	clk              clock.Clock

	mu       sync.Mutex
	byAddr   map[string]PeerID
	addrOf   map[PeerID]transport.Addr
	lastSeen map[PeerID]time.Time
	events   chan Event
}

func NewInsecure(keepaliveTimeout time.Duration, clk clock.Clock) *Insecure {
	return &Insecure{
		keepaliveTimeout: keepaliveTimeout,
		clk:              clk,
		byAddr:           make(map[string]PeerID),
		addrOf:           make(map[PeerID]transport.Addr),
		lastSeen:         make(map[PeerID]time.Time),
		events:           make(chan Event, eventQueueSize),
	}
}

func (a *Insecure) Resolve(addr transport.Addr) PeerID {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := addr.String()
	id, ok := a.byAddr[key]
	if !ok {
		id = PeerID(uuid.NewString())
		a.byAddr[key] = id
		a.addrOf[id] = addr
		a.push(Event{Kind: EventConnected, Peer: id, Addr: addr})
	}
	a.lastSeen[id] = a.clk.Now()
	return id
}

func (a *Insecure) TryUpdate(time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clk.Now()
	for id, seen := range a.lastSeen {
		if now.Sub(seen) <= a.keepaliveTimeout {
			continue
		}
		addr := a.addrOf[id]
		delete(a.lastSeen, id)
		delete(a.addrOf, id)
		if addr != nil {
			delete(a.byAddr, addr.String())
		}
		a.push(Event{Kind: EventDisconnected, Peer: id, Addr: addr})
	}
}

// push enqueues onto the bounded event channel without blocking the
// caller: a full queue means the server has stopped draining events
// entirely, at which point dropping rather than deadlocking the
// authenticator is the safer failure mode.
func (a *Insecure) push(ev Event) {
	select {
	case a.events <- ev:
	default:
	}
}

func (a *Insecure) DrainEvents() []Event {
	var out []Event
	for {
		select {
		case ev := <-a.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (a *Insecure) AddrOf(peer PeerID) (transport.Addr, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr, ok := a.addrOf[peer]
	return addr, ok
}
