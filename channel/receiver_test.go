package channel

import (
	"testing"

	"github.com/ticknet-go/ticknet/wire"
)

func id(v uint16) *wire.MessageID {
	m := wire.MessageID(v)
	return &m
}

func TestUnorderedUnreliableReceiverDeliversEverything(t *testing.T) {
	r := NewUnorderedUnreliableReceiver()
	r.Receive(Message{Payload: []byte("a")})
	r.Receive(Message{Payload: []byte("b")})

	out := r.Drain()
	if len(out) != 2 {
		t.Fatalf("Drain() returned %d messages, want 2", len(out))
	}
}

func TestSequencedUnreliableReceiverDropsStaleArrivals(t *testing.T) {
	r := NewSequencedUnreliableReceiver()
	r.Receive(Message{ID: id(5), Payload: []byte("five")})
	r.Receive(Message{ID: id(3), Payload: []byte("three")}) // stale, dropped
	r.Receive(Message{ID: id(7), Payload: []byte("seven")})

	out := r.Drain()
	if len(out) != 2 {
		t.Fatalf("delivered %d messages, want 2 (stale id 3 must be dropped)", len(out))
	}
	if string(out[0].Payload) != "five" || string(out[1].Payload) != "seven" {
		t.Errorf("delivered payloads = %q, %q, want \"five\", \"seven\"", out[0].Payload, out[1].Payload)
	}
}

func TestSequencedUnreliableReceiverScenario2FromSpec(t *testing.T) {
	// spec.md §8 scenario 2: client sends M1..M10, network reorders to
	// M3,M1,M5,M4,M2,M6..M10; server delivers M3,M5,M6,M7,M8,M9,M10.
	r := NewSequencedUnreliableReceiver()
	order := []uint16{3, 1, 5, 4, 2, 6, 7, 8, 9, 10}
	for _, n := range order {
		r.Receive(Message{ID: id(n), Payload: []byte{byte(n)}})
	}

	out := r.Drain()
	want := []uint16{3, 5, 6, 7, 8, 9, 10}
	if len(out) != len(want) {
		t.Fatalf("delivered %d messages, want %d: %v", len(out), len(want), out)
	}
	for i, w := range want {
		if out[i].Payload[0] != byte(w) {
			t.Errorf("delivered[%d] = %d, want %d", i, out[i].Payload[0], w)
		}
	}
}

func TestReliableUnorderedReceiverDropsDuplicates(t *testing.T) {
	r := NewReliableUnorderedReceiver()
	r.Receive(Message{ID: id(1), Payload: []byte("x")})
	r.Receive(Message{ID: id(1), Payload: []byte("x")}) // duplicate

	out := r.Drain()
	if len(out) != 1 {
		t.Fatalf("delivered %d messages for a duplicated id, want 1", len(out))
	}
}

func TestReliableUnorderedReceiverDeliversImmediatelyOutOfOrder(t *testing.T) {
	r := NewReliableUnorderedReceiver()
	r.Receive(Message{ID: id(5), Payload: []byte("five")})
	r.Receive(Message{ID: id(1), Payload: []byte("one")})

	out := r.Drain()
	if len(out) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(out))
	}
	if string(out[0].Payload) != "five" {
		t.Errorf("reliable-unordered delivery reordered arrivals; got %q first, want \"five\"", out[0].Payload)
	}
}

func TestReliableOrderedReceiverBuffersAndDrainsInOrder(t *testing.T) {
	r := NewReliableOrderedReceiver()
	r.Receive(Message{ID: id(2), Payload: []byte("c")})
	if len(r.Drain()) != 0 {
		t.Error("delivered a message before its predecessors arrived")
	}

	r.Receive(Message{ID: id(1), Payload: []byte("b")})
	if len(r.Drain()) != 0 {
		t.Error("delivered messages before id 0 arrived")
	}

	r.Receive(Message{ID: id(0), Payload: []byte("a")})
	out := r.Drain()
	if len(out) != 3 {
		t.Fatalf("drained %d messages once the gap filled, want 3", len(out))
	}
	for i, want := range []string{"a", "b", "c"} {
		if string(out[i].Payload) != want {
			t.Errorf("delivered[%d] = %q, want %q", i, out[i].Payload, want)
		}
	}
}

func TestReliableOrderedReceiverDropsDuplicateAndReleased(t *testing.T) {
	r := NewReliableOrderedReceiver()
	r.Receive(Message{ID: id(0), Payload: []byte("a")})
	_ = r.Drain()

	// Replaying the already-released id must be a no-op, not re-delivered
	// or buffered (spec.md §8 "Idempotent ack" / duplicate suppression).
	r.Receive(Message{ID: id(0), Payload: []byte("a")})
	if len(r.Drain()) != 0 {
		t.Error("re-delivered an already-released message id")
	}

	r.Receive(Message{ID: id(1), Payload: []byte("b")})
	r.Receive(Message{ID: id(1), Payload: []byte("b")}) // duplicate of an id already released, not yet drained
	out := r.Drain()
	if len(out) != 1 {
		t.Fatalf("drained %d messages for a duplicated id, want 1", len(out))
	}
}

func TestReliableOrderedReceiverReassemblesFragments(t *testing.T) {
	r := NewReliableOrderedReceiver()
	mid := id(0)
	r.Receive(Message{ID: mid, IsFragment: true, FragIndex: 1, FragTotal: 2, Payload: []byte("World")})
	if len(r.Drain()) != 0 {
		t.Error("delivered a message before all fragments arrived")
	}
	r.Receive(Message{ID: mid, IsFragment: true, FragIndex: 0, FragTotal: 2, Payload: []byte("Hello ")})

	out := r.Drain()
	if len(out) != 1 {
		t.Fatalf("drained %d messages, want 1", len(out))
	}
	if string(out[0].Payload) != "Hello World" {
		t.Errorf("reassembled payload = %q, want %q", out[0].Payload, "Hello World")
	}
}
