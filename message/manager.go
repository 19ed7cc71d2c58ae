// Package message implements the MessageManager (spec.md §4.4): it owns one
// Sender and one Receiver per registered channel, drives the pack/flush loop
// against the packet layer, and routes incoming acks back to the senders
// that need them.
package message

import (
	"fmt"
	"time"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/packet"
	"github.com/ticknet-go/ticknet/wire"
)

// Manager fans application sends out across per-channel senders, packs them
// into datagrams via packet.Manager, and fans incoming datagrams back in.
type Manager struct {
	registry  *channel.Registry
	packetMgr *packet.Manager

	order     []channel.ID
	senders   map[channel.ID]channel.Sender
	receivers map[channel.ID]channel.Receiver
}

// NewManager builds one sender/receiver pair per kind registered in
// registry, chosen by its Settings.Mode.
func NewManager(registry *channel.Registry, packetMgr *packet.Manager) *Manager {
	m := &Manager{
		registry:  registry,
		packetMgr: packetMgr,
		senders:   make(map[channel.ID]channel.Sender),
		receivers: make(map[channel.ID]channel.Receiver),
	}
	for _, kind := range registry.Kinds() {
		id, _ := registry.IDFor(kind)
		settings, _ := registry.SettingsFor(kind)
		m.order = append(m.order, id)
		m.senders[id] = newSender(settings)
		m.receivers[id] = newReceiver(settings)
	}
	return m
}

func newSender(s channel.Settings) channel.Sender {
	switch s.Mode {
	case channel.ModeUnorderedUnreliable:
		return channel.NewUnorderedUnreliableSender()
	case channel.ModeSequencedUnreliable:
		return channel.NewSequencedUnreliableSender()
	default: // ModeReliableUnordered, ModeReliableOrdered
		return channel.NewReliableSender(s)
	}
}

func newReceiver(s channel.Settings) channel.Receiver {
	switch s.Mode {
	case channel.ModeUnorderedUnreliable:
		return channel.NewUnorderedUnreliableReceiver()
	case channel.ModeSequencedUnreliable:
		return channel.NewSequencedUnreliableReceiver()
	case channel.ModeReliableUnordered:
		return channel.NewReliableUnorderedReceiver()
	default: // ModeReliableOrdered
		return channel.NewReliableOrderedReceiver()
	}
}

// BufferSend queues payload for delivery on kind's channel.
func (m *Manager) BufferSend(kind channel.Kind, payload []byte) error {
	id, ok := m.registry.IDFor(kind)
	if !ok {
		return fmt.Errorf("message: channel %x is not registered", uint64(kind))
	}
	return m.senders[id].BufferSend(payload, m.packetMgr.MaxFragmentSize())
}

// SendPackets collects everything every sender has to send, packs it into
// as many MTU-bounded datagrams as needed, and returns their bytes in send
// order.
func (m *Manager) SendPackets(now time.Time, rtt time.Duration, tick wire.Tick) [][]byte {
	for _, id := range m.order {
		m.senders[id].CollectMessagesToSend(now, rtt)
	}

	var packets [][]byte
	for m.anyHasMessages() {
		progressed := false
		for _, id := range m.order {
			s := m.senders[id]
			msgs := s.TakeMessagesToSend()
			if len(msgs) == 0 {
				continue
			}
			remaining, sentIDs := m.packetMgr.PackMessagesWithinChannel(id, msgs)
			s.AcceptPacked(remaining, sentIDs)
			if len(sentIDs) > 0 {
				progressed = true
			}
		}
		if !progressed {
			if !m.packetMgr.HasPendingData() {
				// Nothing fit even into an empty datagram; every sender
				// with remaining messages is carrying something larger
				// than the MTU, which BufferSend should have already
				// rejected. Stop rather than spin.
				break
			}
			packets = append(packets, m.packetMgr.FinishPacket(tick))
		}
	}
	if m.packetMgr.HasPendingData() {
		packets = append(packets, m.packetMgr.FinishPacket(tick))
	}
	return packets
}

func (m *Manager) anyHasMessages() bool {
	for _, id := range m.order {
		if m.senders[id].HasMessagesToSend() {
			return true
		}
	}
	return false
}

// RecvPacket parses one incoming datagram, routes its messages to the
// matching receivers, and notifies senders of newly acknowledged ids.
func (m *Manager) RecvPacket(data []byte) (packet.Header, error) {
	result, err := m.packetMgr.Parse(data)
	if err != nil {
		return packet.Header{}, err
	}

	for id, msgs := range result.Channels {
		receiver, ok := m.receivers[id]
		if !ok {
			continue // unknown channel id: peer is ahead of our registry, ignore
		}
		for _, msg := range msgs {
			receiver.Receive(msg)
		}
	}

	for id, ids := range result.Acked {
		sender, ok := m.senders[id]
		if !ok {
			continue
		}
		for _, mid := range ids {
			sender.NotifyMessageDelivered(mid)
		}
	}

	return result.Header, nil
}

// ReadMessages drains everything kind's receiver has ready for the
// application, in that receiver's delivery order.
func (m *Manager) ReadMessages(kind channel.Kind) ([]channel.Message, error) {
	id, ok := m.registry.IDFor(kind)
	if !ok {
		return nil, fmt.Errorf("message: channel %x is not registered", uint64(kind))
	}
	return m.receivers[id].Drain(), nil
}

// PendingReliableCount sums unacked reliable messages across every reliable
// channel, used by tests and diagnostics (spec.md §8).
func (m *Manager) PendingReliableCount() int {
	total := 0
	for _, id := range m.order {
		if rs, ok := m.senders[id].(*channel.ReliableSender); ok {
			total += rs.PendingAckCount()
		}
	}
	return total
}
