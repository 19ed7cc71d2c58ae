package replication

import (
	"testing"
	"time"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/message"
	"github.com/ticknet-go/ticknet/packet"
)

// fakeWorld is a minimal WorldView: a test arms the outbound slices, then
// reads the applied/spawned/despawned slices afterward.
type fakeWorld struct {
	spawns   []EntityID
	despawns []EntityID
	changes  []ComponentChange

	nextLocal EntityID
	spawned   []EntityID
	despawned []EntityID
	applied   []appliedComponent
}

type appliedComponent struct {
	local  EntityID
	change ComponentChange
}

func (w *fakeWorld) IterSpawns() []EntityID                  { s := w.spawns; w.spawns = nil; return s }
func (w *fakeWorld) IterDespawns() []EntityID                { s := w.despawns; w.despawns = nil; return s }
func (w *fakeWorld) IterComponentChanges() []ComponentChange { s := w.changes; w.changes = nil; return s }
func (w *fakeWorld) ApplyDespawn(local EntityID)             { w.despawned = append(w.despawned, local) }
func (w *fakeWorld) ApplyComponent(local EntityID, c ComponentChange) {
	w.applied = append(w.applied, appliedComponent{local, c})
}
func (w *fakeWorld) ApplySpawn(remote EntityID) EntityID {
	w.nextLocal++
	w.spawned = append(w.spawned, remote)
	return w.nextLocal
}

func newTestPair(t *testing.T) (a, b *Manager, posKind ComponentKind) {
	t.Helper()
	posKind = ComponentKindOf("position")

	registry := channel.NewRegistry()
	registry.Register(LifecycleKind, LifecycleSettings())
	registry.Register(ComponentChannelKind(posKind), ComponentChannelSettings())
	registry.Freeze()

	a = NewManager(message.NewManager(registry, packet.NewManager(packet.DefaultMTU)))
	b = NewManager(message.NewManager(registry, packet.NewManager(packet.DefaultMTU)))
	return a, b, posKind
}

// send drives out, from a's outbound buffer, through the wire and into b's
// incoming application, applying everything to view.
func send(t *testing.T, from, to *Manager, out WorldView, view WorldView, componentKinds []ComponentKind) {
	t.Helper()
	if err := from.BufferChanges(out); err != nil {
		t.Fatalf("BufferChanges: %v", err)
	}
	for _, datagram := range from.msgMgr.SendPackets(time.Now(), 0, 0) {
		if _, err := to.msgMgr.RecvPacket(datagram); err != nil {
			t.Fatalf("RecvPacket: %v", err)
		}
	}
	if err := to.ApplyIncoming(view, componentKinds); err != nil {
		t.Fatalf("ApplyIncoming: %v", err)
	}
}

func TestSpawnThenComponentUpdateTranslatesEntityID(t *testing.T) {
	a, b, posKind := newTestPair(t)
	receiver := &fakeWorld{}

	send(t, a, b, &fakeWorld{spawns: []EntityID{100}}, receiver, nil)
	if len(receiver.spawned) != 1 || receiver.spawned[0] != 100 {
		t.Fatalf("receiver.spawned = %v, want [100]", receiver.spawned)
	}
	local, ok := b.remoteToLocal[100]
	if !ok {
		t.Fatal("remote entity 100 not present in remoteToLocal after spawn")
	}

	out := &fakeWorld{changes: []ComponentChange{{Entity: 100, Kind: posKind, Op: OpUpdate, Payload: []byte("xy")}}}
	send(t, a, b, out, receiver, []ComponentKind{posKind})

	if len(receiver.applied) != 1 {
		t.Fatalf("applied = %v, want 1 entry", receiver.applied)
	}
	if receiver.applied[0].local != local {
		t.Errorf("applied local id = %d, want %d (translated from remote 100)", receiver.applied[0].local, local)
	}
}

func TestComponentUpdateBeforeSpawnIsBufferedNotDroppedNotAppliedEarly(t *testing.T) {
	a, b, posKind := newTestPair(t)
	receiver := &fakeWorld{}

	out := &fakeWorld{changes: []ComponentChange{{Entity: 55, Kind: posKind, Op: OpUpdate, Payload: []byte("z")}}}
	send(t, a, b, out, receiver, []ComponentKind{posKind})

	if len(receiver.applied) != 0 {
		t.Fatalf("ApplyComponent invoked before the matching SpawnEntity arrived: %v", receiver.applied)
	}
	if len(b.pending[55]) != 1 {
		t.Fatalf("pending[55] = %d entries, want 1 (spec.md §4.9 invariant: buffer until spawn arrives)", len(b.pending[55]))
	}

	send(t, a, b, &fakeWorld{spawns: []EntityID{55}}, receiver, nil)

	if len(receiver.applied) != 1 {
		t.Fatalf("applied after spawn arrived = %d, want 1 (buffered change must flush)", len(receiver.applied))
	}
	if len(b.pending[55]) != 0 {
		t.Error("pending[55] not cleared after the spawn flushed it")
	}
}

func TestDespawnRemovesEntityMapping(t *testing.T) {
	a, b, _ := newTestPair(t)
	receiver := &fakeWorld{}

	send(t, a, b, &fakeWorld{spawns: []EntityID{7}}, receiver, nil)
	if _, ok := b.remoteToLocal[7]; !ok {
		t.Fatal("setup: spawn did not register remote 7")
	}

	send(t, a, b, &fakeWorld{despawns: []EntityID{7}}, receiver, nil)

	if len(receiver.despawned) != 1 {
		t.Fatalf("despawned = %v, want 1 entry", receiver.despawned)
	}
	if _, ok := b.remoteToLocal[7]; ok {
		t.Error("remoteToLocal[7] still present after despawn")
	}
}

func TestDespawnForUnknownEntityIsANoop(t *testing.T) {
	a, b, _ := newTestPair(t)
	receiver := &fakeWorld{}
	send(t, a, b, &fakeWorld{despawns: []EntityID{999}}, receiver, nil)
	if len(receiver.despawned) != 0 {
		t.Errorf("despawn for an entity never spawned invoked ApplyDespawn: %v", receiver.despawned)
	}
}
