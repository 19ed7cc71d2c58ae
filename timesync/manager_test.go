package timesync

import (
	"testing"
	"time"

	"github.com/ticknet-go/ticknet/wire"
)

func testConfig() Config {
	return Config{
		TickDuration:       time.Second / 60,
		InterpolationDelay: 100 * time.Millisecond,
		InputBufferTicks:   2,
		SnapThresholdTicks: 10,
		RequiredSamples:    5,
		StddevThreshold:    2.0,
	}
}

func TestUnifiedModeIsAlwaysSyncedAndEmitsNoEvents(t *testing.T) {
	m := NewManager(testConfig(), true)
	if !m.Synced() {
		t.Fatal("unified mode Manager is not Synced at construction")
	}
	ev := m.Update(0, 100*time.Millisecond, true, 10)
	if ev.Kind != EventNone {
		t.Errorf("unified mode Update produced event kind %v, want EventNone", ev.Kind)
	}
}

func TestBootstrapTransitionsToSyncedAfterStableSamples(t *testing.T) {
	m := NewManager(testConfig(), false)
	rtt := 100 * time.Millisecond // one-way ~3 ticks at 60Hz

	var lastEvent TickEvent
	for i := 0; i < 10 && !m.Synced(); i++ {
		lastEvent = m.Update(0, rtt, true, wire.Tick(i))
	}
	if !m.Synced() {
		t.Fatal("Manager did not reach Synced after repeated stable samples")
	}
	if lastEvent.Kind != EventSnapBack {
		t.Errorf("transition-to-Synced event kind = %v, want EventSnapBack", lastEvent.Kind)
	}
}

func TestNoEventWithoutAServerTickSample(t *testing.T) {
	m := NewManager(testConfig(), false)
	ev := m.Update(0, 0, false, 0)
	if ev.Kind != EventNone {
		t.Errorf("Update with haveServerTick=false produced %v, want EventNone", ev.Kind)
	}
}

func TestLargeDriftAfterSyncTriggersSnapBack(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, false)
	rtt := 100 * time.Millisecond
	for i := 0; i < 10 && !m.Synced(); i++ {
		m.Update(0, rtt, true, wire.Tick(i))
	}
	if !m.Synced() {
		t.Fatal("failed to reach Synced during test setup")
	}

	// A local tick wildly behind the server's target triggers a hard warp.
	ev := m.Update(0, rtt, true, 1000)
	if ev.Kind != EventSnapBack {
		t.Errorf("large drift produced event kind %v, want EventSnapBack", ev.Kind)
	}
}

func TestSmallDriftAfterSyncTriggersSoftWarpNotSnap(t *testing.T) {
	cfg := testConfig()
	m := NewManager(cfg, false)
	rtt := 100 * time.Millisecond
	var localTick wire.Tick
	for i := 0; i < 10 && !m.Synced(); i++ {
		m.Update(localTick, rtt, true, wire.Tick(i))
		localTick++
	}
	if !m.Synced() {
		t.Fatal("failed to reach Synced during test setup")
	}

	ev := m.Update(localTick, rtt, true, localTick.Add(3))
	if ev.Kind == EventSnapBack {
		t.Error("a small (within-K) drift produced EventSnapBack, want EventSoftWarp or EventNone")
	}
}

func TestInterpolationClockAdvancesEveryTickIncludingFirst(t *testing.T) {
	var c InterpolationClock
	if c.Tick() != 0 {
		t.Fatalf("zero-value InterpolationClock tick = %d, want 0", c.Tick())
	}
	c.Advance()
	if c.Tick() != 1 {
		t.Errorf("InterpolationClock.Tick() after first Advance = %d, want 1 (spec.md §9 Open Question (b): advance on every tick including the first)", c.Tick())
	}
}

func TestTargetFromServerTickSubtractsDelay(t *testing.T) {
	cfg := Config{TickDuration: time.Second / 60, InterpolationDelay: 100 * time.Millisecond}
	got := TargetFromServerTick(wire.Tick(20), cfg)
	if got != 14 {
		t.Errorf("TargetFromServerTick(20) = %d, want 14 (100ms at 60Hz = 6 ticks of delay)", got)
	}
}
