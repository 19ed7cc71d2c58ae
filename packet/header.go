// Package packet implements MTU-bounded framing: packing outgoing messages
// from multiple channels into datagrams, splitting oversize messages into
// fragments, parsing incoming datagrams, and resolving the sliding-window
// ack header into acknowledged local packet/message ids (spec.md §4.1, §6).
package packet

import (
	"fmt"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/wire"
)

const (
	// DefaultMTU is the default datagram budget (spec.md §6).
	DefaultMTU = 1200
	// HeaderSize is the fixed 11-byte packet header: packet_id(2) +
	// last_ack_packet_id(2) + ack_bitfield(4) + tick(2) + channel_count(1).
	HeaderSize = 11
	// overheadMargin reserves room for the per-channel and per-message
	// framing overhead so a single fragment always fits within one
	// datagram (spec.md §6 "MAX_FRAG = MTU - 32").
	overheadMargin = 32
)

// Header is the fixed packet header, on the wire as 11 bytes.
type Header struct {
	PacketID        wire.PacketID
	LastAckPacketID wire.PacketID
	AckBitfield     uint32
	Tick            wire.Tick
	ChannelCount    uint8
}

func (h Header) encode(w *wire.Writer) {
	w.WriteUint16(uint16(h.PacketID))
	w.WriteUint16(uint16(h.LastAckPacketID))
	w.WriteUint32(h.AckBitfield)
	w.WriteUint16(uint16(h.Tick))
	w.WriteByte(h.ChannelCount)
}

func decodeHeader(r *wire.Reader) (Header, error) {
	var h Header
	pid, err := r.ReadUint16()
	if err != nil {
		return h, fmt.Errorf("packet: header packet_id: %w", err)
	}
	last, err := r.ReadUint16()
	if err != nil {
		return h, fmt.Errorf("packet: header last_ack_packet_id: %w", err)
	}
	bitfield, err := r.ReadUint32()
	if err != nil {
		return h, fmt.Errorf("packet: header ack_bitfield: %w", err)
	}
	tick, err := r.ReadUint16()
	if err != nil {
		return h, fmt.Errorf("packet: header tick: %w", err)
	}
	count, err := r.ReadByte()
	if err != nil {
		return h, fmt.Errorf("packet: header channel_count: %w", err)
	}
	h.PacketID = wire.PacketID(pid)
	h.LastAckPacketID = wire.PacketID(last)
	h.AckBitfield = bitfield
	h.Tick = wire.Tick(tick)
	h.ChannelCount = count
	return h, nil
}

const (
	flagHasID      byte = 1 << 0
	flagIsFragment byte = 1 << 1
)

// Framed is a single message as it appears inside a channel block: either a
// whole message or one fragment of one.
type Framed struct {
	ID         *wire.MessageID
	IsFragment bool
	FragIndex  uint16
	FragTotal  uint16
	Payload    []byte
}

func (f Framed) wireSize() int {
	size := 1 // flags
	if f.ID != nil {
		size += 2
	}
	if f.IsFragment {
		size += 4
	}
	size += varintSize(uint64(len(f.Payload)))
	size += len(f.Payload)
	return size
}

func (f Framed) encode(w *wire.Writer) {
	flags := byte(0)
	if f.ID != nil {
		flags |= flagHasID
	}
	if f.IsFragment {
		flags |= flagIsFragment
	}
	w.WriteByte(flags)
	if f.ID != nil {
		w.WriteUint16(uint16(*f.ID))
	}
	if f.IsFragment {
		w.WriteUint16(f.FragIndex)
		w.WriteUint16(f.FragTotal)
	}
	w.WriteVarint(uint64(len(f.Payload)))
	w.WriteBytes(f.Payload)
}

func decodeFramed(r *wire.Reader) (Framed, error) {
	var f Framed
	flags, err := r.ReadByte()
	if err != nil {
		return f, fmt.Errorf("packet: message flags: %w", err)
	}
	if flags&flagHasID != 0 {
		id, err := r.ReadUint16()
		if err != nil {
			return f, fmt.Errorf("packet: message_id: %w", err)
		}
		mid := wire.MessageID(id)
		f.ID = &mid
	}
	if flags&flagIsFragment != 0 {
		f.IsFragment = true
		idx, err := r.ReadUint16()
		if err != nil {
			return f, fmt.Errorf("packet: frag_index: %w", err)
		}
		total, err := r.ReadUint16()
		if err != nil {
			return f, fmt.Errorf("packet: frag_total: %w", err)
		}
		f.FragIndex, f.FragTotal = idx, total
	}
	length, err := r.ReadVarint()
	if err != nil {
		return f, fmt.Errorf("packet: payload_len: %w", err)
	}
	payload, err := r.ReadBytes(int(length))
	if err != nil {
		return f, fmt.Errorf("packet: payload: %w", err)
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	f.Payload = buf
	return f, nil
}

func varintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// channelBlockSize returns the exact encoded size of one channel block:
// channel_id varint + message_count varint + each framed message.
func channelBlockSize(id channel.ID, msgs []Framed) int {
	size := varintSize(uint64(id)) + varintSize(uint64(len(msgs)))
	for _, m := range msgs {
		size += m.wireSize()
	}
	return size
}
