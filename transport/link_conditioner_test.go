package transport

import (
	"testing"
	"time"

	"github.com/ticknet-go/ticknet/internal/clock"
	"github.com/ticknet-go/ticknet/internal/config"
)

func TestLinkConditionerDelaysDeliveryUntilLatencyElapses(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	b := net.NewTransport("b")
	clk := clock.NewMock()
	cond := NewLinkConditioner(a, config.LinkConditioner{Latency: 100 * time.Millisecond}, clk, 1)

	if err := cond.Send([]byte("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := cond.Pump(); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if _, _, ok := b.Recv(); ok {
		t.Fatal("datagram arrived at the wrapped transport before its latency elapsed")
	}

	clk.Advance(100 * time.Millisecond)
	if err := cond.Pump(); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	payload, _, ok := b.Recv()
	if !ok {
		t.Fatal("datagram never arrived after its latency elapsed")
	}
	if string(payload) != "hello" {
		t.Errorf("payload = %q, want %q", payload, "hello")
	}
}

func TestLinkConditionerFullLossDropsAllOutbound(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	b := net.NewTransport("b")
	clk := clock.NewMock()
	cond := NewLinkConditioner(a, config.LinkConditioner{Loss: 1.0}, clk, 1)

	for i := 0; i < 20; i++ {
		if err := cond.Send([]byte("x"), b.LocalAddr()); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	clk.Advance(time.Second)
	if err := cond.Pump(); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if _, _, ok := b.Recv(); ok {
		t.Error("a datagram arrived despite Loss=1.0")
	}
}

func TestLinkConditionerInboundAlsoDelayed(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	b := net.NewTransport("b")
	clk := clock.NewMock()
	cond := NewLinkConditioner(b, config.LinkConditioner{Latency: 50 * time.Millisecond}, clk, 1)

	if err := a.Send([]byte("hi"), b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := cond.Pump(); err != nil {
		t.Fatalf("Pump: %v", err)
	}
	if _, _, ok := cond.Recv(); ok {
		t.Fatal("inbound datagram surfaced before its simulated latency elapsed")
	}

	clk.Advance(50 * time.Millisecond)
	payload, from, ok := cond.Recv()
	if !ok {
		t.Fatal("inbound datagram never surfaced after its latency elapsed")
	}
	if string(payload) != "hi" || from.String() != "a" {
		t.Errorf("Recv() = %q, %v, want hi, a", payload, from)
	}
}
