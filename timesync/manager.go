// Package timesync implements the client-only SyncManager (spec.md §4.6):
// aligning the local simulation tick to the server's tick plus one-way
// delay and input buffer. It also provides an interpolation clock type and
// TargetFromServerTick, which computes the server tick minus a configurable
// delay.
package timesync

import (
	"math"
	"time"

	"github.com/ticknet-go/ticknet/wire"
)

// EventKind distinguishes the three outcomes of a sync Update call.
type EventKind int

const (
	EventNone EventKind = iota
	// EventSnapBack is a hard warp: the caller must set its local tick to
	// NewTick directly.
	EventSnapBack
	// EventSoftWarp asks the caller to run the current tick at
	// Multiplier× normal speed rather than jumping.
	EventSoftWarp
)

// TickEvent reports what, if anything, the caller's tick clock should do
// this update.
type TickEvent struct {
	Kind       EventKind
	NewTick    wire.Tick
	Multiplier float64
}

// Config holds the tunables sync needs from the shared/ping/interpolation
// configuration sections (spec.md §6).
type Config struct {
	TickDuration       time.Duration
	InterpolationDelay time.Duration
	InputBufferTicks   int32
	// SnapThresholdTicks is K: differences within ±K are absorbed with a
	// speed multiplier, beyond it a hard SnapBack is issued.
	SnapThresholdTicks int32
	// RequiredSamples is N: the number of offset samples needed, with a
	// sufficiently low standard deviation, before transitioning to Synced.
	// Update records one sample per call once any server tick has been
	// observed, so samples accrue once per local tick, not once per pong.
	// Values below 3 are treated as 3.
	RequiredSamples int
	// StddevThreshold bounds the standard deviation (in ticks) of the last
	// RequiredSamples offset samples for the Synced transition to fire.
	StddevThreshold float64
}

// Manager runs the Unsynced→Synced state machine and reports TickEvents.
type Manager struct {
	cfg     Config
	unified bool
	synced  bool
	samples []float64
}

// NewManager returns a Manager in Unsynced state, or permanently Synced if
// unified is true (client and server share one process, spec.md §4.6
// "Unified mode").
func NewManager(cfg Config, unified bool) *Manager {
	return &Manager{cfg: cfg, unified: unified, synced: unified}
}

func (m *Manager) Synced() bool { return m.synced }

// Update folds in the latest RTT estimate and server tick observation and
// returns the TickEvent the caller should apply, if any. Call once per
// local tick after the ping manager has had a chance to process incoming
// pongs.
func (m *Manager) Update(localTick wire.Tick, rtt time.Duration, haveServerTick bool, serverTick wire.Tick) TickEvent {
	if m.unified || !haveServerTick {
		return TickEvent{}
	}

	oneWayTicks := (float64(rtt) / 2) / float64(m.cfg.TickDuration)
	targetOffset := int32(math.Round(oneWayTicks)) + m.cfg.InputBufferTicks
	targetTick := serverTick.Add(targetOffset)
	diff := localTick.Distance(targetTick)

	if !m.synced {
		m.recordSample(float64(diff))
		if m.readyToSync() {
			m.synced = true
			return TickEvent{Kind: EventSnapBack, NewTick: targetTick}
		}
		return TickEvent{}
	}

	if abs32(diff) > m.cfg.SnapThresholdTicks {
		return TickEvent{Kind: EventSnapBack, NewTick: targetTick}
	}
	if diff == 0 {
		return TickEvent{}
	}
	speed := 1.0 + clamp(float64(diff)/float64(m.cfg.SnapThresholdTicks)*0.1, -0.1, 0.1)
	return TickEvent{Kind: EventSoftWarp, Multiplier: speed}
}

func (m *Manager) recordSample(offset float64) {
	m.samples = append(m.samples, offset)
	if max := m.cfg.RequiredSamples * 2; len(m.samples) > max {
		m.samples = m.samples[len(m.samples)-max:]
	}
}

func (m *Manager) readyToSync() bool {
	n := m.cfg.RequiredSamples
	if n < 3 {
		n = 3
	}
	if len(m.samples) < n {
		return false
	}
	window := m.samples[len(m.samples)-n:]
	return stddev(window) < m.cfg.StddevThreshold
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	return math.Sqrt(variance)
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InterpolationClock is a tick counter for the interpolation timeline. It
// starts at 0 and moves only through Advance and Set; it does not observe
// the server tick or Config.InterpolationDelay itself.
// TargetFromServerTick computes the server-trailing tick.
type InterpolationClock struct {
	tick        wire.Tick
	initialized bool
}

// Advance steps the clock forward by one tick. Per spec.md §9 Open Question
// (b), this fires on every tick including the first, for determinism.
func (c *InterpolationClock) Advance() { c.tick = c.tick.Add(1) }

// Set snaps the clock directly to t. client.Client does not call it, in
// unified mode or otherwise.
func (c *InterpolationClock) Set(t wire.Tick) {
	c.tick = t
	c.initialized = true
}

func (c *InterpolationClock) Tick() wire.Tick { return c.tick }

// TargetFromServerTick computes the tick the interpolation clock should be
// tracking: the latest observed server tick minus the configured delay.
func TargetFromServerTick(serverTick wire.Tick, cfg Config) wire.Tick {
	delayTicks := int32(cfg.InterpolationDelay / cfg.TickDuration)
	return serverTick.Add(-delayTicks)
}
