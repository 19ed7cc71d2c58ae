package transport

import (
	"math/rand"
	"time"

	"github.com/ticknet-go/ticknet/internal/clock"
	"github.com/ticknet-go/ticknet/internal/config"
)

type delayedDatagram struct {
	at      time.Time
	payload []byte
	addr    Addr
}

// LinkConditioner wraps a PacketIo to simulate latency, jitter and loss for
// local development (spec.md §6 "link_conditioner"). It must be pumped once
// per tick to move datagrams whose delay has elapsed from the staging
// queues into (or out of) the wrapped transport.
type LinkConditioner struct {
	inner PacketIo
	cfg   config.LinkConditioner
	clk   clock.Clock
	rng   *rand.Rand

	outbound []delayedDatagram
	inbound  []delayedDatagram
}

func NewLinkConditioner(inner PacketIo, cfg config.LinkConditioner, clk clock.Clock, seed int64) *LinkConditioner {
	return &LinkConditioner{
		inner: inner,
		cfg:   cfg,
		clk:   clk,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func (l *LinkConditioner) jitteredDelay() time.Duration {
	delay := l.cfg.Latency
	if l.cfg.Jitter > 0 {
		offset := time.Duration(l.rng.Int63n(int64(2*l.cfg.Jitter))) - l.cfg.Jitter
		delay += offset
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// Send stages payload for delivery after the configured delay, or silently
// drops it per the configured loss rate.
func (l *LinkConditioner) Send(payload []byte, addr Addr) error {
	if l.cfg.Loss > 0 && l.rng.Float64() < l.cfg.Loss {
		return nil
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	l.outbound = append(l.outbound, delayedDatagram{at: l.clk.Now().Add(l.jitteredDelay()), payload: cp, addr: addr})
	return nil
}

// Recv surfaces a staged inbound datagram whose delay has elapsed.
func (l *LinkConditioner) Recv() ([]byte, Addr, bool) {
	now := l.clk.Now()
	for i, d := range l.inbound {
		if !now.Before(d.at) {
			l.inbound = append(l.inbound[:i], l.inbound[i+1:]...)
			return d.payload, d.addr, true
		}
	}
	return nil, nil, false
}

func (l *LinkConditioner) LocalAddr() Addr { return l.inner.LocalAddr() }

func (l *LinkConditioner) Close() error { return l.inner.Close() }

// Pump flushes any outbound datagrams whose delay has elapsed to the
// wrapped transport, and pulls everything currently available from it into
// the inbound staging queue. Call once per tick.
func (l *LinkConditioner) Pump() error {
	now := l.clk.Now()

	remaining := l.outbound[:0]
	for _, d := range l.outbound {
		if !now.Before(d.at) {
			if err := l.inner.Send(d.payload, d.addr); err != nil {
				return err
			}
		} else {
			remaining = append(remaining, d)
		}
	}
	l.outbound = remaining

	for {
		payload, addr, ok := l.inner.Recv()
		if !ok {
			break
		}
		l.inbound = append(l.inbound, delayedDatagram{at: now.Add(l.jitteredDelay()), payload: payload, addr: addr})
	}
	return nil
}
