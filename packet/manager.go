package packet

import (
	"fmt"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/wire"
)

// sentRecord remembers, for one outgoing PacketID, which MessageIDs were
// placed into it on each channel — the only state needed to turn an
// incoming ack header into "these reliable messages are now delivered"
// without the PacketManager holding a reference back to any sender
// (spec.md §9 "Cyclic relationships").
type sentRecord map[channel.ID][]wire.MessageID

// Manager implements the framing contract of spec.md §4.1: it packs
// outgoing messages from multiple channels into MTU-bounded datagrams,
// fragments oversize messages, parses incoming datagrams, and resolves the
// sliding-window ack header into acknowledged message ids per channel.
type Manager struct {
	mtu     int
	maxFrag int

	nextPacketID wire.PacketID
	sentPackets  map[wire.PacketID]sentRecord

	// receive-side ack bookkeeping: the set of remote packet ids we've
	// seen, used to build the ack header we attach to our own packets.
	highestReceived wire.PacketID
	haveReceivedAny bool
	receivedSet     map[wire.PacketID]bool

	pending *frame
}

// NewManager returns a Manager bounded to mtu bytes per datagram. Passing 0
// selects DefaultMTU.
func NewManager(mtu int) *Manager {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Manager{
		mtu:         mtu,
		maxFrag:     mtu - overheadMargin,
		sentPackets: make(map[wire.PacketID]sentRecord),
		receivedSet: make(map[wire.PacketID]bool),
	}
}

// frame is the packet currently being assembled.
type frame struct {
	order    []channel.ID
	channels map[channel.ID][]Framed
}

func newFrame() *frame {
	return &frame{channels: make(map[channel.ID][]Framed)}
}

func (f *frame) size() int {
	total := HeaderSize
	for id, msgs := range f.channels {
		total += channelBlockSize(id, msgs)
	}
	return total
}

func (m *Manager) currentFrame() *frame {
	if m.pending == nil {
		m.pending = newFrame()
	}
	return m.pending
}

// PackMessagesWithinChannel greedily appends messages onto the current
// datagram while they fit, splitting any message too large for a single
// fragment across ⌈len/MAX_FRAG⌉ fragments sharing one MessageID. It
// returns the messages that didn't fit (to retry on the next datagram) and
// the ids of messages that did fit.
func (m *Manager) PackMessagesWithinChannel(id channel.ID, msgs []channel.Message) (remaining []channel.Message, sentIDs []wire.MessageID) {
	f := m.currentFrame()

	for i, msg := range msgs {
		candidates, ok := m.expand(msg)
		if !ok {
			// Oversize message without a MessageID: the unordered sender
			// rejects these at buffer_send time; drop it defensively
			// rather than wedge the connection.
			continue
		}

		trial := append(append([]Framed(nil), f.channels[id]...), candidates...)
		trialSize := f.size() - channelBlockSize(id, f.channels[id]) + channelBlockSize(id, trial)
		if trialSize > m.mtu {
			remaining = append(remaining, msgs[i:]...)
			return remaining, sentIDs
		}

		if _, seen := f.channels[id]; !seen {
			f.order = append(f.order, id)
		}
		f.channels[id] = trial
		if msg.ID != nil {
			sentIDs = append(sentIDs, *msg.ID)
		}
	}
	return remaining, sentIDs
}

// expand turns one channel.Message into one or more Framed wire entries,
// fragmenting if the payload exceeds maxFrag. Returns ok=false if the
// message is oversize and carries no MessageID, since fragments share their
// message's id for reassembly. Sequenced messages also carry an id; their
// sender rejects oversize payloads at BufferSend, so they never get here.
func (m *Manager) expand(msg channel.Message) ([]Framed, bool) {
	if len(msg.Payload) <= m.maxFrag {
		return []Framed{{ID: msg.ID, Payload: msg.Payload}}, true
	}
	if msg.ID == nil {
		return nil, false
	}
	total := (len(msg.Payload) + m.maxFrag - 1) / m.maxFrag
	out := make([]Framed, 0, total)
	for i := 0; i < total; i++ {
		start := i * m.maxFrag
		end := start + m.maxFrag
		if end > len(msg.Payload) {
			end = len(msg.Payload)
		}
		out = append(out, Framed{
			ID:         msg.ID,
			IsFragment: true,
			FragIndex:  uint16(i),
			FragTotal:  uint16(total),
			Payload:    msg.Payload[start:end],
		})
	}
	return out, true
}

// MaxFragmentSize returns the largest payload that fits in a single
// fragment, used by senders to decide whether BufferSend needs to reject an
// oversize non-reliable message (spec.md §7).
func (m *Manager) MaxFragmentSize() int { return m.maxFrag }

// HasPendingData reports whether the in-progress frame holds anything to
// flush.
func (m *Manager) HasPendingData() bool {
	return m.pending != nil && len(m.pending.channels) > 0
}

// FinishPacket serializes the in-progress frame into a datagram, assigns it
// the next PacketID, attaches the current ack header for tick, and records
// which message ids went out in it for later ack resolution.
func (m *Manager) FinishPacket(tick wire.Tick) []byte {
	f := m.currentFrame()
	m.pending = nil

	id := m.nextPacketID
	m.nextPacketID = m.nextPacketID.Next()

	record := make(sentRecord, len(f.channels))
	for chID, msgs := range f.channels {
		var ids []wire.MessageID
		for _, fm := range msgs {
			if fm.ID != nil {
				ids = append(ids, *fm.ID)
			}
		}
		if len(ids) > 0 {
			record[chID] = ids
		}
	}
	m.sentPackets[id] = record

	header := Header{
		PacketID:        id,
		LastAckPacketID: m.highestReceived,
		AckBitfield:     m.ackBitfield(),
		Tick:            tick,
		ChannelCount:    uint8(len(f.channels)),
	}

	w := wire.NewWriter()
	header.encode(w)
	for _, chID := range f.order {
		msgs := f.channels[chID]
		w.WriteVarint(uint64(chID))
		w.WriteVarint(uint64(len(msgs)))
		for _, fm := range msgs {
			fm.encode(w)
		}
	}
	return w.Bytes()
}

func (m *Manager) ackBitfield() uint32 {
	if !m.haveReceivedAny {
		return 0
	}
	var bitfield uint32
	for i := uint32(1); i <= 32; i++ {
		candidate := m.highestReceived.Add(-int32(i))
		if m.receivedSet[candidate] {
			bitfield |= 1 << (32 - i)
		}
	}
	return bitfield
}

// ParseResult is the decoded form of one incoming datagram.
type ParseResult struct {
	Header   Header
	Channels map[channel.ID][]channel.Message
	// Acked maps a channel to the MessageIDs now confirmed delivered,
	// resolved from the header's sliding-window ack bitfield against our
	// own sent-packet history.
	Acked map[channel.ID][]wire.MessageID
}

// Parse decodes a datagram into its header, per-channel messages, and the
// set of message ids the header's ack bitfield newly confirms.
func (m *Manager) Parse(data []byte) (ParseResult, error) {
	r := wire.NewReader(data)
	header, err := decodeHeader(r)
	if err != nil {
		return ParseResult{}, err
	}

	channels := make(map[channel.ID][]channel.Message, header.ChannelCount)
	for i := 0; i < int(header.ChannelCount); i++ {
		rawID, err := r.ReadVarint()
		if err != nil {
			return ParseResult{}, fmt.Errorf("packet: channel_id: %w", err)
		}
		count, err := r.ReadVarint()
		if err != nil {
			return ParseResult{}, fmt.Errorf("packet: message_count: %w", err)
		}
		chID := channel.ID(rawID)
		msgs := make([]channel.Message, 0, count)
		for j := uint64(0); j < count; j++ {
			fm, err := decodeFramed(r)
			if err != nil {
				return ParseResult{}, err
			}
			msgs = append(msgs, channel.Message{
				ID:         fm.ID,
				Payload:    fm.Payload,
				IsFragment: fm.IsFragment,
				FragIndex:  fm.FragIndex,
				FragTotal:  fm.FragTotal,
			})
		}
		channels[chID] = msgs
	}

	m.recordReceived(header.PacketID)
	acked := m.resolveAcks(header)

	return ParseResult{Header: header, Channels: channels, Acked: acked}, nil
}

func (m *Manager) recordReceived(id wire.PacketID) {
	if !m.haveReceivedAny {
		m.highestReceived = id
		m.haveReceivedAny = true
	} else if m.highestReceived.Before(id) {
		m.highestReceived = id
	}
	m.receivedSet[id] = true
	// Bound memory: forget anything more than 64 packets behind the
	// current high-water mark, well outside the 32-bit ack window.
	for pid := range m.receivedSet {
		if m.highestReceived.Distance(pid) < -64 {
			delete(m.receivedSet, pid)
		}
	}
}

// resolveAcks turns header's last_ack_packet_id + bitfield into the set of
// locally-sent MessageIDs now acknowledged, removing their sentPackets
// entries so a replayed ack is a no-op (idempotent ack, spec.md §8).
func (m *Manager) resolveAcks(header Header) map[channel.ID][]wire.MessageID {
	acked := make(map[channel.ID][]wire.MessageID)

	consume := func(pid wire.PacketID) {
		record, ok := m.sentPackets[pid]
		if !ok {
			return
		}
		delete(m.sentPackets, pid)
		for chID, ids := range record {
			acked[chID] = append(acked[chID], ids...)
		}
	}

	consume(header.LastAckPacketID)
	for i := uint32(1); i <= 32; i++ {
		if header.AckBitfield&(1<<(32-i)) != 0 {
			consume(header.LastAckPacketID.Add(-int32(i)))
		}
	}
	return acked
}
