// Package replication implements the ReplicationManager (spec.md §4.9):
// translating WorldView spawn/despawn/component events into channel
// messages, and applying the inbound side back onto a WorldView with
// remote-to-local entity id translation.
package replication

import (
	"fmt"
	"hash/fnv"

	"github.com/ticknet-go/ticknet/wire"
)

// EntityID is a sender-local entity handle. The receiver never reuses it
// directly: it maintains remote_entity → local_entity and translates on
// ingress.
type EntityID uint64

// ComponentKind is a stable, content-addressed identity for a component
// type, analogous to channel.Kind.
type ComponentKind uint64

func ComponentKindOf(name string) ComponentKind {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return ComponentKind(h.Sum64())
}

// Op distinguishes the three things that can happen to a component.
type Op int

const (
	OpInsert Op = iota
	OpUpdate
	OpRemove
)

// ComponentChange is one component-level event, outbound or inbound.
type ComponentChange struct {
	Entity EntityID
	Kind   ComponentKind
	Op     Op
	// Payload is the serialized component value. Unused for OpRemove.
	Payload []byte
}

// WorldView is the external simulation state (spec.md §6): it reports its
// own changes for replication out, and accepts translated changes in.
type WorldView interface {
	IterSpawns() []EntityID
	IterDespawns() []EntityID
	IterComponentChanges() []ComponentChange

	// ApplySpawn materializes a remote entity locally and returns the
	// local handle the receiver should use for all subsequent changes
	// against it.
	ApplySpawn(remote EntityID) (local EntityID)
	ApplyDespawn(local EntityID)
	ApplyComponent(local EntityID, change ComponentChange)
}

const (
	tagSpawn byte = iota
	tagDespawn
	tagComponentInsert
	tagComponentUpdate
	tagComponentRemove
)

func encodeSpawn(entity EntityID) []byte {
	w := wire.NewWriter()
	w.WriteByte(tagSpawn)
	w.WriteVarint(uint64(entity))
	return w.Bytes()
}

func encodeDespawn(entity EntityID) []byte {
	w := wire.NewWriter()
	w.WriteByte(tagDespawn)
	w.WriteVarint(uint64(entity))
	return w.Bytes()
}

func encodeComponent(change ComponentChange) []byte {
	w := wire.NewWriter()
	switch change.Op {
	case OpInsert:
		w.WriteByte(tagComponentInsert)
	case OpUpdate:
		w.WriteByte(tagComponentUpdate)
	case OpRemove:
		w.WriteByte(tagComponentRemove)
	}
	w.WriteVarint(uint64(change.Entity))
	w.WriteVarint(uint64(change.Kind))
	if change.Op != OpRemove {
		w.WriteVarint(uint64(len(change.Payload)))
		w.WriteBytes(change.Payload)
	}
	return w.Bytes()
}

// decoded is the union of everything that can arrive on a replication
// channel.
type decoded struct {
	isLifecycleSpawn   bool
	isLifecycleDespawn bool
	entity             EntityID
	change             ComponentChange
	hasChange          bool
}

func decodeMessage(payload []byte) (decoded, error) {
	r := wire.NewReader(payload)
	tag, err := r.ReadByte()
	if err != nil {
		return decoded{}, fmt.Errorf("replication: tag: %w", err)
	}
	switch tag {
	case tagSpawn:
		entity, err := r.ReadVarint()
		if err != nil {
			return decoded{}, fmt.Errorf("replication: spawn entity: %w", err)
		}
		return decoded{isLifecycleSpawn: true, entity: EntityID(entity)}, nil
	case tagDespawn:
		entity, err := r.ReadVarint()
		if err != nil {
			return decoded{}, fmt.Errorf("replication: despawn entity: %w", err)
		}
		return decoded{isLifecycleDespawn: true, entity: EntityID(entity)}, nil
	case tagComponentInsert, tagComponentUpdate, tagComponentRemove:
		entity, err := r.ReadVarint()
		if err != nil {
			return decoded{}, fmt.Errorf("replication: component entity: %w", err)
		}
		kind, err := r.ReadVarint()
		if err != nil {
			return decoded{}, fmt.Errorf("replication: component kind: %w", err)
		}
		change := ComponentChange{Entity: EntityID(entity), Kind: ComponentKind(kind)}
		switch tag {
		case tagComponentInsert:
			change.Op = OpInsert
		case tagComponentUpdate:
			change.Op = OpUpdate
		case tagComponentRemove:
			change.Op = OpRemove
		}
		if tag != tagComponentRemove {
			length, err := r.ReadVarint()
			if err != nil {
				return decoded{}, fmt.Errorf("replication: component payload_len: %w", err)
			}
			payload, err := r.ReadBytes(int(length))
			if err != nil {
				return decoded{}, fmt.Errorf("replication: component payload: %w", err)
			}
			buf := make([]byte, len(payload))
			copy(buf, payload)
			change.Payload = buf
		}
		return decoded{entity: EntityID(entity), change: change, hasChange: true}, nil
	default:
		return decoded{}, fmt.Errorf("replication: unknown tag %d", tag)
	}
}
