// Package ping implements RTT/jitter estimation via a ping/pong exchange on
// a dedicated unreliable channel (spec.md §4.5).
package ping

import (
	"fmt"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/wire"
)

// Kind identifies the ping channel in the ChannelRegistry. It is
// unordered-unreliable and bidirectional: a lost ping or pong is simply
// absent from the next RTT sample.
var Kind = channel.KindOf("ticknet.ping")

// Settings is the registration entry for Kind.
func Settings() channel.Settings {
	return channel.Settings{
		Mode:      channel.ModeUnorderedUnreliable,
		Direction: channel.DirectionBidirectional,
	}
}

const (
	tagPing byte = iota
	tagPong
)

// Ping is sent by either peer carrying the tick it was sent on.
type Ping struct {
	Seq      uint16
	SendTick wire.Tick
}

// Pong answers a Ping, reporting when the responder received and replied to
// it so the requester can subtract out processing time.
type Pong struct {
	Seq            uint16
	ServerRecvTick wire.Tick
	ServerSendTick wire.Tick
}

func EncodePing(p Ping) []byte {
	w := wire.NewWriter()
	w.WriteByte(tagPing)
	w.WriteUint16(p.Seq)
	w.WriteUint16(uint16(p.SendTick))
	return w.Bytes()
}

func EncodePong(p Pong) []byte {
	w := wire.NewWriter()
	w.WriteByte(tagPong)
	w.WriteUint16(p.Seq)
	w.WriteUint16(uint16(p.ServerRecvTick))
	w.WriteUint16(uint16(p.ServerSendTick))
	return w.Bytes()
}

// Decode parses a payload from the ping channel into either a Ping or a
// Pong, returning whichever was encoded.
func Decode(payload []byte) (ping *Ping, pong *Pong, err error) {
	r := wire.NewReader(payload)
	tag, err := r.ReadByte()
	if err != nil {
		return nil, nil, fmt.Errorf("ping: tag: %w", err)
	}
	switch tag {
	case tagPing:
		seq, err := r.ReadUint16()
		if err != nil {
			return nil, nil, fmt.Errorf("ping: seq: %w", err)
		}
		tick, err := r.ReadUint16()
		if err != nil {
			return nil, nil, fmt.Errorf("ping: send_tick: %w", err)
		}
		return &Ping{Seq: seq, SendTick: wire.Tick(tick)}, nil, nil
	case tagPong:
		seq, err := r.ReadUint16()
		if err != nil {
			return nil, nil, fmt.Errorf("ping: seq: %w", err)
		}
		recv, err := r.ReadUint16()
		if err != nil {
			return nil, nil, fmt.Errorf("ping: server_recv_tick: %w", err)
		}
		send, err := r.ReadUint16()
		if err != nil {
			return nil, nil, fmt.Errorf("ping: server_send_tick: %w", err)
		}
		return nil, &Pong{Seq: seq, ServerRecvTick: wire.Tick(recv), ServerSendTick: wire.Tick(send)}, nil
	default:
		return nil, nil, fmt.Errorf("ping: unknown tag %d", tag)
	}
}
