package transport

import "testing"

func TestMemoryTransportDeliversBetweenTwoEndpoints(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	b := net.NewTransport("b")

	if err := a.Send([]byte("hello"), b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	payload, from, ok := b.Recv()
	if !ok {
		t.Fatal("Recv() returned ok=false, want a delivered datagram")
	}
	if string(payload) != "hello" {
		t.Errorf("payload = %q, want %q", payload, "hello")
	}
	if from.String() != "a" {
		t.Errorf("from = %v, want a", from)
	}
}

func TestMemoryTransportRecvIsNonBlockingWhenEmpty(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	_, _, ok := a.Recv()
	if ok {
		t.Error("Recv() on an empty inbox returned ok=true")
	}
}

func TestMemoryTransportSendToUnknownAddrReturnsError(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	if err := a.Send([]byte("x"), MemAddr("nobody")); err == nil {
		t.Error("Send to an unregistered address returned nil error, want an error")
	}
}

func TestMemoryTransportCloseUnregistersFromNetwork(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	b := net.NewTransport("b")

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Send([]byte("x"), MemAddr("a")); err == nil {
		t.Error("Send to a closed/unregistered endpoint returned nil error, want an error")
	}
}

func TestMemoryTransportCopiesPayloadOnSend(t *testing.T) {
	net := NewMemoryNetwork()
	a := net.NewTransport("a")
	b := net.NewTransport("b")

	buf := []byte("hello")
	if err := a.Send(buf, b.LocalAddr()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf[0] = 'X' // mutate the sender's buffer after Send returns

	payload, _, ok := b.Recv()
	if !ok {
		t.Fatal("Recv() returned ok=false")
	}
	if string(payload) != "hello" {
		t.Errorf("payload = %q, want %q (Send must copy, not alias, the caller's buffer)", payload, "hello")
	}
}
