package channel

import "fmt"

// Registry maps a channel's stable Kind to its compact wire ID and back,
// plus the Settings it was registered with. Built once at process startup
// and shared read-only by every Connection thereafter (spec.md §5 "Shared
// resources"): no locking is needed once Freeze has been called.
type Registry struct {
	byKind   map[Kind]ID
	byID     map[ID]Kind
	settings map[Kind]Settings
	order    []Kind
	frozen   bool
}

// NewRegistry returns an empty registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{
		byKind:   make(map[Kind]ID),
		byID:     make(map[ID]Kind),
		settings: make(map[Kind]Settings),
	}
}

// Register assigns the next free compact ID to kind with the given
// settings. Panics if called after Freeze or if kind is already
// registered — both are programmer errors in startup wiring, not runtime
// conditions.
func (r *Registry) Register(kind Kind, s Settings) ID {
	if r.frozen {
		panic("channel: Register called on a frozen Registry")
	}
	if _, exists := r.byKind[kind]; exists {
		panic(fmt.Sprintf("channel: kind %x registered twice", uint64(kind)))
	}
	id := ID(len(r.order))
	r.byKind[kind] = id
	r.byID[id] = kind
	r.settings[kind] = s
	r.order = append(r.order, kind)
	return id
}

// Freeze marks the registry immutable. Call once at startup after all
// Register calls, before constructing any Connection.
func (r *Registry) Freeze() *Registry {
	r.frozen = true
	return r
}

// IDFor returns the wire ID for a registered kind.
func (r *Registry) IDFor(kind Kind) (ID, bool) {
	id, ok := r.byKind[kind]
	return id, ok
}

// KindFor returns the kind registered under a wire ID.
func (r *Registry) KindFor(id ID) (Kind, bool) {
	kind, ok := r.byID[id]
	return kind, ok
}

// SettingsFor returns the settings a kind was registered with.
func (r *Registry) SettingsFor(kind Kind) (Settings, bool) {
	s, ok := r.settings[kind]
	return s, ok
}

// Kinds returns every registered kind in registration order.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, len(r.order))
	copy(out, r.order)
	return out
}
