// Package transport reduces the socket layer to the PacketIo contract
// consumed by Server and Client (spec.md §6): non-blocking send/recv of
// raw datagrams addressed by peer, with no ordering or reliability
// assumed. It provides a real UDP implementation and an in-memory one for
// tests, plus a dev-only link conditioner.
package transport

import (
	"fmt"
	"net"
	"time"
)

// Addr identifies a peer at the transport level. net.UDPAddr satisfies it
// directly; MemoryTransport uses a lightweight string-backed stand-in.
type Addr = net.Addr

// PacketIo is the external transport collaborator (spec.md §6): send,
// non-blocking recv, local address.
type PacketIo interface {
	Send(payload []byte, addr Addr) error
	// Recv returns ok=false when there is nothing more to read right now;
	// it never blocks.
	Recv() (payload []byte, addr Addr, ok bool)
	LocalAddr() Addr
	Close() error
}

// UDP is a PacketIo backed by a real net.UDPConn (grounded in the teacher's
// net.ListenUDP/ReadFromUDP server loop).
type UDP struct {
	conn    *net.UDPConn
	maxSize int
}

const defaultMaxDatagram = 1500

// ListenUDP binds a UDP socket on host:port.
func ListenUDP(host string, port int) (*UDP, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind udp socket: %w", err)
	}
	return &UDP{conn: conn, maxSize: defaultMaxDatagram}, nil
}

func (u *UDP) Send(payload []byte, addr Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return fmt.Errorf("transport: addr %v is not a *net.UDPAddr", addr)
	}
	_, err := u.conn.WriteToUDP(payload, udpAddr)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

func (u *UDP) Recv() ([]byte, Addr, bool) {
	if err := u.conn.SetReadDeadline(time.Now()); err != nil {
		return nil, nil, false
	}
	buf := make([]byte, u.maxSize)
	n, addr, err := u.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, false
	}
	data := make([]byte, n)
	copy(data, buf[:n])
	return data, addr, true
}

func (u *UDP) LocalAddr() Addr { return u.conn.LocalAddr() }

func (u *UDP) Close() error { return u.conn.Close() }
