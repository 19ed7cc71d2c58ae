package server

import (
	"testing"
	"time"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/client"
	"github.com/ticknet-go/ticknet/internal/clock"
	"github.com/ticknet-go/ticknet/netcode"
	"github.com/ticknet-go/ticknet/ping"
	"github.com/ticknet-go/ticknet/replication"
	"github.com/ticknet-go/ticknet/timesync"
	"github.com/ticknet-go/ticknet/transport"
)

const tickDuration = time.Second / 60

var appKind = channel.KindOf("test.app-reliable-ordered")
var posKind = replication.ComponentKindOf("position")

func buildTestRegistry() *channel.Registry {
	r := channel.NewRegistry()
	r.Register(ping.Kind, ping.Settings())
	r.Register(replication.LifecycleKind, replication.LifecycleSettings())
	r.Register(replication.ComponentChannelKind(posKind), replication.ComponentChannelSettings())
	r.Register(appKind, channel.Settings{
		Mode:     channel.ModeReliableOrdered,
		Reliable: channel.DefaultReliableSettings(),
	})
	r.Freeze()
	return r
}

// lossyOnce drops the next `remaining` Send calls, then behaves normally, to
// force a reliable channel's resend path.
type lossyOnce struct {
	transport.PacketIo
	remaining int
}

func (l *lossyOnce) Send(payload []byte, addr transport.Addr) error {
	if l.remaining > 0 {
		l.remaining--
		return nil
	}
	return l.PacketIo.Send(payload, addr)
}

func newHarness(t *testing.T) (*Server, *client.Client, *lossyOnce) {
	t.Helper()
	net := transport.NewMemoryNetwork()
	serverAddr := transport.MemAddr("server")
	clientAddr := transport.MemAddr("client")

	serverIO := net.NewTransport(serverAddr)
	clientRaw := net.NewTransport(clientAddr)
	clientIO := &lossyOnce{PacketIo: clientRaw}

	registry := buildTestRegistry()

	srv := New(serverIO, netcode.NewInsecure(30*time.Second, clock.Real{}), registry, Config{
		TickDuration:   tickDuration,
		SendInterval:   0,
		MTU:            1200,
		PingInitialRTT: 100 * time.Millisecond,
		MaxParseErrors: 10,
	})

	c := client.New(clientIO, serverAddr, registry, client.Config{
		TickDuration:   tickDuration,
		SendInterval:   0,
		MTU:            1200,
		PingInitialRTT: 100 * time.Millisecond,
		Sync: timesync.Config{
			TickDuration:       tickDuration,
			InterpolationDelay: 100 * time.Millisecond,
			InputBufferTicks:   2,
			SnapThresholdTicks: 1000,
			RequiredSamples:    3,
			StddevThreshold:    50.0,
		},
	})

	return srv, c, clientIO
}

// step drives one full tick of both endpoints: client first (so its send
// lands before the server's receive phase), then the server.
func step(t *testing.T, srv *Server, c *client.Client, now time.Time) {
	t.Helper()
	if err := c.Update(now); err != nil {
		t.Fatalf("client.Update: %v", err)
	}
	c.AdvanceTick()
	if err := c.SendPackets(now); err != nil {
		t.Fatalf("client.SendPackets: %v", err)
	}

	if err := srv.Update(now); err != nil {
		t.Fatalf("server.Update: %v", err)
	}
	srv.AdvanceTick()
	if err := srv.SendPackets(now); err != nil {
		t.Fatalf("server.SendPackets: %v", err)
	}
}

func TestClientReachesSyncedAfterHandshakeAndPingExchange(t *testing.T) {
	srv, c, _ := newHarness(t)
	start := time.Now()

	for i := 0; i < 120 && !c.Synced(); i++ {
		step(t, srv, c, start.Add(time.Duration(i)*tickDuration))
	}

	if !c.Synced() {
		t.Fatal("client never reached Synced() after 120 simulated ticks")
	}
	if srv.PeerCount() != 1 {
		t.Errorf("server.PeerCount() = %d, want 1", srv.PeerCount())
	}
}

func TestReliableChannelDeliversAcrossASimulatedDroppedDatagram(t *testing.T) {
	srv, c, clientIO := newHarness(t)
	start := time.Now()

	for i := 0; i < 120 && !c.Synced(); i++ {
		step(t, srv, c, start.Add(time.Duration(i)*tickDuration))
	}
	if !c.Synced() {
		t.Fatal("setup: client never reached Synced()")
	}

	clientIO.remaining = 1 // the next datagram the client sends is dropped
	if err := c.BufferSend(appKind, []byte("hello-server")); err != nil {
		t.Fatalf("BufferSend: %v", err)
	}

	peers := srv.Peers()
	if len(peers) != 1 {
		t.Fatalf("srv.Peers() = %v, want 1 peer", peers)
	}
	conn, _ := srv.Connection(peers[0])

	var got []channel.Message
	base := start.Add(121 * tickDuration)
	for i := 0; i < 60 && len(got) == 0; i++ {
		step(t, srv, c, base.Add(time.Duration(i)*tickDuration))
		msgs, err := conn.ReadMessages(appKind)
		if err != nil {
			t.Fatalf("ReadMessages: %v", err)
		}
		got = append(got, msgs...)
	}

	if len(got) != 1 || string(got[0].Payload) != "hello-server" {
		t.Fatalf("server received %v on the reliable channel, want exactly [hello-server] (despite one dropped datagram)", got)
	}
}

// fakeWorld is a minimal replication.WorldView for the integration test.
type fakeWorld struct {
	spawns    []replication.EntityID
	changes   []replication.ComponentChange
	nextLocal replication.EntityID
	spawned   []replication.EntityID
	applied   []replication.ComponentChange
}

func (w *fakeWorld) IterSpawns() []replication.EntityID { s := w.spawns; w.spawns = nil; return s }
func (w *fakeWorld) IterDespawns() []replication.EntityID { return nil }
func (w *fakeWorld) IterComponentChanges() []replication.ComponentChange {
	s := w.changes
	w.changes = nil
	return s
}
func (w *fakeWorld) ApplyDespawn(local replication.EntityID) {}
func (w *fakeWorld) ApplyComponent(local replication.EntityID, c replication.ComponentChange) {
	w.applied = append(w.applied, c)
}
func (w *fakeWorld) ApplySpawn(remote replication.EntityID) replication.EntityID {
	w.nextLocal++
	w.spawned = append(w.spawned, remote)
	return w.nextLocal
}

func TestReplicationSpawnAndComponentUpdateReachTheClient(t *testing.T) {
	srv, c, _ := newHarness(t)
	start := time.Now()

	for i := 0; i < 120 && !c.Synced(); i++ {
		step(t, srv, c, start.Add(time.Duration(i)*tickDuration))
	}
	if !c.Synced() {
		t.Fatal("setup: client never reached Synced()")
	}

	serverWorld := &fakeWorld{spawns: []replication.EntityID{42}}
	clientWorld := &fakeWorld{}

	base := start.Add(121 * tickDuration)
	now := base
	if err := srv.BufferReplication(All(), serverWorld); err != nil {
		t.Fatalf("BufferReplication: %v", err)
	}
	for i := 0; i < 10; i++ {
		now = base.Add(time.Duration(i) * tickDuration)
		step(t, srv, c, now)
		if err := c.ApplyReplication(clientWorld, []replication.ComponentKind{posKind}); err != nil {
			t.Fatalf("ApplyReplication: %v", err)
		}
	}
	if len(clientWorld.spawned) != 1 || clientWorld.spawned[0] != 42 {
		t.Fatalf("clientWorld.spawned = %v, want [42]", clientWorld.spawned)
	}

	serverWorld.changes = []replication.ComponentChange{{Entity: 42, Kind: posKind, Op: replication.OpUpdate, Payload: []byte("xyz")}}
	if err := srv.BufferReplication(All(), serverWorld); err != nil {
		t.Fatalf("BufferReplication: %v", err)
	}
	for i := 10; i < 20; i++ {
		now = base.Add(time.Duration(i) * tickDuration)
		step(t, srv, c, now)
		if err := c.ApplyReplication(clientWorld, []replication.ComponentKind{posKind}); err != nil {
			t.Fatalf("ApplyReplication: %v", err)
		}
	}

	if len(clientWorld.applied) != 1 || string(clientWorld.applied[0].Payload) != "xyz" {
		t.Fatalf("clientWorld.applied = %v, want one OpUpdate with payload xyz", clientWorld.applied)
	}
}
