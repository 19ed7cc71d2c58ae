package replication

import (
	"strconv"

	"github.com/ticknet-go/ticknet/channel"
	"github.com/ticknet-go/ticknet/message"
)

// LifecycleKind identifies the reliable-ordered channel that carries spawn,
// despawn, component-insert and component-remove events — anything whose
// loss or reorder would corrupt the receiver's entity map.
var LifecycleKind = channel.KindOf("ticknet.replication.lifecycle")

// LifecycleSettings is the registration entry for LifecycleKind.
func LifecycleSettings() channel.Settings {
	return channel.Settings{
		Mode:      channel.ModeReliableOrdered,
		Direction: channel.DirectionBidirectional,
		Reliable:  channel.DefaultReliableSettings(),
	}
}

// ComponentChannelKind derives the stable channel identity used to carry
// OpUpdate changes for one component kind — frequent-overwrite state goes
// on its own sequenced-unreliable channel so a dropped update is simply
// superseded by the next one rather than queued for resend (spec.md §4.9,
// §9 "Input vs state channels").
func ComponentChannelKind(kind ComponentKind) channel.Kind {
	return channel.KindOf("ticknet.replication.component." + strconv.FormatUint(uint64(kind), 10))
}

// ComponentChannelSettings is the registration entry every
// ComponentChannelKind should use.
func ComponentChannelSettings() channel.Settings {
	return channel.Settings{
		Mode:      channel.ModeSequencedUnreliable,
		Direction: channel.DirectionBidirectional,
	}
}

// Manager translates WorldView events into channel messages on send, and
// channel messages back into WorldView calls on receive, maintaining the
// remote→local entity id map described in spec.md §4.9.
type Manager struct {
	msgMgr *message.Manager

	remoteToLocal map[EntityID]EntityID
	// pending holds component changes addressed to a remote entity whose
	// SpawnEntity hasn't arrived yet (spec.md §4.9 invariant).
	pending map[EntityID][]ComponentChange
}

func NewManager(msgMgr *message.Manager) *Manager {
	return &Manager{
		msgMgr:        msgMgr,
		remoteToLocal: make(map[EntityID]EntityID),
		pending:       make(map[EntityID][]ComponentChange),
	}
}

// BufferChanges reads every outbound change from view and enqueues it on
// the appropriate channel.
func (m *Manager) BufferChanges(view WorldView) error {
	for _, entity := range view.IterSpawns() {
		if err := m.msgMgr.BufferSend(LifecycleKind, encodeSpawn(entity)); err != nil {
			return err
		}
	}
	for _, entity := range view.IterDespawns() {
		if err := m.msgMgr.BufferSend(LifecycleKind, encodeDespawn(entity)); err != nil {
			return err
		}
	}
	for _, change := range view.IterComponentChanges() {
		payload := encodeComponent(change)
		target := LifecycleKind
		if change.Op == OpUpdate {
			target = ComponentChannelKind(change.Kind)
		}
		if err := m.msgMgr.BufferSend(target, payload); err != nil {
			return err
		}
	}
	return nil
}

// ApplyIncoming drains the lifecycle channel and every channel in
// componentKinds, decoding and applying each change to view in arrival
// order, translating entity ids and buffering updates addressed to
// not-yet-spawned entities.
func (m *Manager) ApplyIncoming(view WorldView, componentKinds []ComponentKind) error {
	if err := m.drainChannel(LifecycleKind, view); err != nil {
		return err
	}
	for _, kind := range componentKinds {
		if err := m.drainChannel(ComponentChannelKind(kind), view); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) drainChannel(kind channel.Kind, view WorldView) error {
	msgs, err := m.msgMgr.ReadMessages(kind)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		d, err := decodeMessage(msg.Payload)
		if err != nil {
			return err
		}
		m.apply(d, view)
	}
	return nil
}

func (m *Manager) apply(d decoded, view WorldView) {
	switch {
	case d.isLifecycleSpawn:
		local := view.ApplySpawn(d.entity)
		m.remoteToLocal[d.entity] = local
		for _, change := range m.pending[d.entity] {
			view.ApplyComponent(local, change)
		}
		delete(m.pending, d.entity)

	case d.isLifecycleDespawn:
		local, ok := m.remoteToLocal[d.entity]
		if !ok {
			return
		}
		view.ApplyDespawn(local)
		delete(m.remoteToLocal, d.entity)
		delete(m.pending, d.entity)

	case d.hasChange:
		local, ok := m.remoteToLocal[d.entity]
		if !ok {
			m.pending[d.entity] = append(m.pending[d.entity], d.change)
			return
		}
		view.ApplyComponent(local, d.change)
	}
}
