package transport

import (
	"fmt"
	"sync"
)

// MemAddr is a lightweight Addr for MemoryTransport endpoints.
type MemAddr string

func (a MemAddr) Network() string { return "memory" }
func (a MemAddr) String() string  { return string(a) }

type inboundDatagram struct {
	payload []byte
	from    Addr
}

// MemoryNetwork is an in-process hub routing Send calls between
// MemoryTransport endpoints by address, for deterministic tests without a
// real socket.
type MemoryNetwork struct {
	mu    sync.Mutex
	peers map[string]*MemoryTransport
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{peers: make(map[string]*MemoryTransport)}
}

// NewTransport registers and returns a new endpoint bound to addr.
func (n *MemoryNetwork) NewTransport(addr MemAddr) *MemoryTransport {
	t := &MemoryTransport{addr: addr, net: n, inbox: make(chan inboundDatagram, 256)}
	n.mu.Lock()
	n.peers[string(addr)] = t
	n.mu.Unlock()
	return t
}

func (n *MemoryNetwork) lookup(addr Addr) (*MemoryTransport, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.peers[addr.String()]
	return t, ok
}

// MemoryTransport is a PacketIo endpoint on a MemoryNetwork.
type MemoryTransport struct {
	addr  MemAddr
	net   *MemoryNetwork
	inbox chan inboundDatagram
}

func (t *MemoryTransport) Send(payload []byte, addr Addr) error {
	peer, ok := t.net.lookup(addr)
	if !ok {
		return fmt.Errorf("transport: no memory peer registered at %s", addr)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case peer.inbox <- inboundDatagram{payload: cp, from: t.addr}:
	default:
		// inbox full: simulate a dropped datagram rather than block.
	}
	return nil
}

func (t *MemoryTransport) Recv() ([]byte, Addr, bool) {
	select {
	case d := <-t.inbox:
		return d.payload, d.from, true
	default:
		return nil, nil, false
	}
}

func (t *MemoryTransport) LocalAddr() Addr { return t.addr }

func (t *MemoryTransport) Close() error {
	t.net.mu.Lock()
	delete(t.net.peers, string(t.addr))
	t.net.mu.Unlock()
	return nil
}
