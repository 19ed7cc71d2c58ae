package channel

import (
	"fmt"
	"time"

	"github.com/ticknet-go/ticknet/internal/telemetry"
	"github.com/ticknet-go/ticknet/wire"
)

// Sender is the capability set every channel send-half implements
// regardless of policy (spec.md §4.2). MessageManager drives it without
// knowing which concrete variant it holds.
type Sender interface {
	// BufferSend enqueues an outgoing payload. Returns MessageTooLarge if
	// the payload exceeds the fragment budget on a channel that can't
	// fragment (spec.md §7).
	BufferSend(payload []byte, maxUnfragmented int) error
	// CollectMessagesToSend decides, given the current time and RTT
	// estimate, which buffered/unacked messages should be handed to the
	// packet layer this pass.
	CollectMessagesToSend(now time.Time, rtt time.Duration)
	// TakeMessagesToSend drains the collected set for the packet layer to
	// pack. Call AcceptPacked afterward with whatever didn't fit.
	TakeMessagesToSend() []Message
	// AcceptPacked returns unpacked messages to the send queue and informs
	// the sender which message ids were actually placed into a datagram.
	AcceptPacked(remaining []Message, sentIDs []wire.MessageID)
	// NotifyMessageDelivered removes a reliable message from the unacked
	// set once its enclosing packet has been acknowledged. No-op for
	// non-reliable senders.
	NotifyMessageDelivered(id wire.MessageID)
	HasMessagesToSend() bool
}

// ErrMessageTooLarge is returned by BufferSend when a payload exceeds the
// fragment budget on a channel that cannot fragment (spec.md §7).
type ErrMessageTooLarge struct {
	Size, Limit int
}

func (e ErrMessageTooLarge) Error() string {
	return fmt.Sprintf("channel: message of %d bytes exceeds %d byte limit on a non-reliable channel", e.Size, e.Limit)
}

// --- UnorderedUnreliableSender ---------------------------------------

// UnorderedUnreliableSender delivers each buffered message at most once,
// with no retention after it has been handed to the packet layer.
type UnorderedUnreliableSender struct {
	queue  []Message
	toSend []Message
}

func NewUnorderedUnreliableSender() *UnorderedUnreliableSender {
	return &UnorderedUnreliableSender{}
}

func (s *UnorderedUnreliableSender) BufferSend(payload []byte, maxUnfragmented int) error {
	if len(payload) > maxUnfragmented {
		return ErrMessageTooLarge{Size: len(payload), Limit: maxUnfragmented}
	}
	s.queue = append(s.queue, Message{Payload: payload})
	return nil
}

func (s *UnorderedUnreliableSender) CollectMessagesToSend(time.Time, time.Duration) {
	s.toSend = append(s.toSend, s.queue...)
	s.queue = nil
}

func (s *UnorderedUnreliableSender) TakeMessagesToSend() []Message {
	out := s.toSend
	s.toSend = nil
	return out
}

func (s *UnorderedUnreliableSender) AcceptPacked(remaining []Message, _ []wire.MessageID) {
	s.toSend = append(remaining, s.toSend...)
}

func (s *UnorderedUnreliableSender) NotifyMessageDelivered(wire.MessageID) {}

func (s *UnorderedUnreliableSender) HasMessagesToSend() bool { return len(s.toSend) > 0 }

// --- SequencedUnreliableSender ----------------------------------------

// SequencedUnreliableSender stamps an incrementing MessageID on every
// message as it is collected, so the receiver can drop stale arrivals.
type SequencedUnreliableSender struct {
	queue  []Message
	toSend []Message
	nextID wire.MessageID
}

func NewSequencedUnreliableSender() *SequencedUnreliableSender {
	return &SequencedUnreliableSender{}
}

func (s *SequencedUnreliableSender) BufferSend(payload []byte, maxUnfragmented int) error {
	if len(payload) > maxUnfragmented {
		return ErrMessageTooLarge{Size: len(payload), Limit: maxUnfragmented}
	}
	s.queue = append(s.queue, Message{Payload: payload})
	return nil
}

func (s *SequencedUnreliableSender) CollectMessagesToSend(time.Time, time.Duration) {
	for _, msg := range s.queue {
		id := s.nextID
		s.nextID = s.nextID.Next()
		s.toSend = append(s.toSend, withID(id, msg.Payload))
	}
	s.queue = nil
}

func (s *SequencedUnreliableSender) TakeMessagesToSend() []Message {
	out := s.toSend
	s.toSend = nil
	return out
}

func (s *SequencedUnreliableSender) AcceptPacked(remaining []Message, _ []wire.MessageID) {
	s.toSend = append(remaining, s.toSend...)
}

func (s *SequencedUnreliableSender) NotifyMessageDelivered(wire.MessageID) {}

func (s *SequencedUnreliableSender) HasMessagesToSend() bool { return len(s.toSend) > 0 }

// --- ReliableSender -----------------------------------------------------

type unackedMessage struct {
	message  Message
	lastSent *time.Time
}

// ReliableSender maintains unacked_messages and resends anything that has
// gone longer than rtt_resend_factor*RTT without an ack (spec.md §4.2). The
// same implementation backs both ReliableOrdered and ReliableUnordered
// channels: the ordering guarantee lives entirely on the receiver.
type ReliableSender struct {
	settings Settings

	unackedOrder []wire.MessageID
	unacked      map[wire.MessageID]*unackedMessage
	nextID       wire.MessageID

	toSend         []Message
	idsPendingSend map[wire.MessageID]bool
}

func NewReliableSender(settings Settings) *ReliableSender {
	return &ReliableSender{
		settings:       settings,
		unacked:        make(map[wire.MessageID]*unackedMessage),
		idsPendingSend: make(map[wire.MessageID]bool),
	}
}

func (s *ReliableSender) BufferSend(payload []byte, _ int) error {
	id := s.nextID
	s.nextID = s.nextID.Next()
	s.unacked[id] = &unackedMessage{message: withID(id, payload)}
	s.unackedOrder = append(s.unackedOrder, id)
	return nil
}

func (s *ReliableSender) CollectMessagesToSend(now time.Time, rtt time.Duration) {
	resendDelay := time.Duration(s.settings.Reliable.RTTResendFactor * float64(rtt))

	compacted := s.unackedOrder[:0]
	for _, id := range s.unackedOrder {
		entry, ok := s.unacked[id]
		if !ok {
			continue // acked and removed; drop from the order slice
		}
		compacted = append(compacted, id)

		shouldSend := entry.lastSent == nil || now.Sub(*entry.lastSent) > resendDelay
		if !shouldSend {
			continue
		}
		if s.idsPendingSend[id] {
			// Already queued from a previous Collect this cycle that
			// hasn't been packed yet — never double-queue (spec.md §9
			// Open Question (a)).
			continue
		}
		if entry.lastSent != nil {
			telemetry.MessagesResent.Inc()
		}
		s.toSend = append(s.toSend, entry.message)
		s.idsPendingSend[id] = true
		sent := now
		entry.lastSent = &sent
	}
	s.unackedOrder = compacted
}

func (s *ReliableSender) TakeMessagesToSend() []Message {
	out := s.toSend
	s.toSend = nil
	return out
}

func (s *ReliableSender) AcceptPacked(remaining []Message, sentIDs []wire.MessageID) {
	s.toSend = append(remaining, s.toSend...)
	for _, id := range sentIDs {
		delete(s.idsPendingSend, id)
	}
}

func (s *ReliableSender) NotifyMessageDelivered(id wire.MessageID) {
	if _, ok := s.unacked[id]; ok {
		telemetry.MessagesAcked.Inc()
	}
	delete(s.unacked, id)
}

func (s *ReliableSender) HasMessagesToSend() bool { return len(s.toSend) > 0 }

// PendingAckCount reports how many reliable messages are still awaiting an
// ack, used by tests asserting ack convergence (spec.md §8).
func (s *ReliableSender) PendingAckCount() int { return len(s.unacked) }
