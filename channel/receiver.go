package channel

import "github.com/ticknet-go/ticknet/wire"

// Receiver is the capability set every channel receive-half implements
// (spec.md §4.3). The packet layer hands it raw Messages as they arrive;
// Drain surfaces whatever is now ready for the application in delivery
// order.
type Receiver interface {
	Receive(msg Message)
	Drain() []Message
}

// fragAssembly accumulates fragments of one reliable message until all
// FragTotal pieces have arrived (spec.md §4.1 "Fragment atomicity").
type fragAssembly struct {
	total int
	have  int
	parts [][]byte
}

func newFragAssembly(total int) *fragAssembly {
	return &fragAssembly{total: total, parts: make([][]byte, total)}
}

func (a *fragAssembly) add(index int, payload []byte) bool {
	if a.parts[index] == nil {
		a.have++
	}
	a.parts[index] = payload
	return a.have == a.total
}

func (a *fragAssembly) join() []byte {
	size := 0
	for _, p := range a.parts {
		size += len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range a.parts {
		out = append(out, p...)
	}
	return out
}

// --- UnorderedUnreliableReceiver ----------------------------------------

// UnorderedUnreliableReceiver surfaces every message as soon as it arrives.
// It never sees fragments: only reliable channels fragment (spec.md §4.1).
type UnorderedUnreliableReceiver struct {
	ready []Message
}

func NewUnorderedUnreliableReceiver() *UnorderedUnreliableReceiver {
	return &UnorderedUnreliableReceiver{}
}

func (r *UnorderedUnreliableReceiver) Receive(msg Message) {
	r.ready = append(r.ready, msg)
}

func (r *UnorderedUnreliableReceiver) Drain() []Message {
	out := r.ready
	r.ready = nil
	return out
}

// --- SequencedUnreliableReceiver -----------------------------------------

// SequencedUnreliableReceiver drops anything that arrives at or behind the
// most recently accepted MessageID.
type SequencedUnreliableReceiver struct {
	latest   wire.MessageID
	haveSeen bool
	ready    []Message
}

func NewSequencedUnreliableReceiver() *SequencedUnreliableReceiver {
	return &SequencedUnreliableReceiver{}
}

func (r *SequencedUnreliableReceiver) Receive(msg Message) {
	if msg.ID == nil {
		return
	}
	if r.haveSeen && !r.latest.Before(*msg.ID) {
		return // stale: at or behind what we've already accepted
	}
	r.latest = *msg.ID
	r.haveSeen = true
	r.ready = append(r.ready, msg)
}

func (r *SequencedUnreliableReceiver) Drain() []Message {
	out := r.ready
	r.ready = nil
	return out
}

// --- ReliableUnorderedReceiver --------------------------------------------

// ReliableUnorderedReceiver delivers each message exactly once, in whatever
// order it (fully reassembled) arrives.
type ReliableUnorderedReceiver struct {
	delivered map[wire.MessageID]bool
	frags     map[wire.MessageID]*fragAssembly
	ready     []Message
}

func NewReliableUnorderedReceiver() *ReliableUnorderedReceiver {
	return &ReliableUnorderedReceiver{
		delivered: make(map[wire.MessageID]bool),
		frags:     make(map[wire.MessageID]*fragAssembly),
	}
}

func (r *ReliableUnorderedReceiver) Receive(msg Message) {
	if msg.ID == nil {
		return
	}
	id := *msg.ID
	if r.delivered[id] {
		return
	}

	payload, complete := r.reassemble(id, msg)
	if !complete {
		return
	}
	r.delivered[id] = true
	r.ready = append(r.ready, Message{ID: msg.ID, Payload: payload})
}

func (r *ReliableUnorderedReceiver) reassemble(id wire.MessageID, msg Message) ([]byte, bool) {
	if !msg.IsFragment {
		return msg.Payload, true
	}
	asm, ok := r.frags[id]
	if !ok {
		asm = newFragAssembly(int(msg.FragTotal))
		r.frags[id] = asm
	}
	if !asm.add(int(msg.FragIndex), msg.Payload) {
		return nil, false
	}
	delete(r.frags, id)
	return asm.join(), true
}

func (r *ReliableUnorderedReceiver) Drain() []Message {
	out := r.ready
	r.ready = nil
	return out
}

// --- ReliableOrderedReceiver ----------------------------------------------

// ReliableOrderedReceiver buffers out-of-order arrivals and releases them
// to the application strictly in MessageID order.
type ReliableOrderedReceiver struct {
	nextExpected wire.MessageID
	buffered     map[wire.MessageID][]byte
	frags        map[wire.MessageID]*fragAssembly
	ready        []Message
}

func NewReliableOrderedReceiver() *ReliableOrderedReceiver {
	return &ReliableOrderedReceiver{
		buffered: make(map[wire.MessageID][]byte),
		frags:    make(map[wire.MessageID]*fragAssembly),
	}
}

func (r *ReliableOrderedReceiver) Receive(msg Message) {
	if msg.ID == nil {
		return
	}
	id := *msg.ID
	if id.Before(r.nextExpected) {
		return // already released
	}
	if r.alreadyBuffered(id) {
		return // already buffered, awaiting release
	}

	payload, complete := r.reassemble(id, msg)
	if !complete {
		return
	}
	r.buffered[id] = payload
	r.release()
}

func (r *ReliableOrderedReceiver) alreadyBuffered(id wire.MessageID) bool {
	_, ok := r.buffered[id]
	return ok
}

func (r *ReliableOrderedReceiver) reassemble(id wire.MessageID, msg Message) ([]byte, bool) {
	if !msg.IsFragment {
		return msg.Payload, true
	}
	asm, ok := r.frags[id]
	if !ok {
		asm = newFragAssembly(int(msg.FragTotal))
		r.frags[id] = asm
	}
	if !asm.add(int(msg.FragIndex), msg.Payload) {
		return nil, false
	}
	delete(r.frags, id)
	return asm.join(), true
}

// release drains consecutive ids starting at nextExpected into ready.
func (r *ReliableOrderedReceiver) release() {
	for {
		payload, ok := r.buffered[r.nextExpected]
		if !ok {
			return
		}
		delete(r.buffered, r.nextExpected)
		id := r.nextExpected
		r.ready = append(r.ready, Message{ID: &id, Payload: payload})
		r.nextExpected = r.nextExpected.Next()
	}
}

func (r *ReliableOrderedReceiver) Drain() []Message {
	out := r.ready
	r.ready = nil
	return out
}
