package ping

import (
	"time"

	"github.com/ticknet-go/ticknet/wire"
)

const (
	meanAlpha = 0.125
	varAlpha  = 0.25
	// maxInFlight bounds memory if pongs are never answered (peer gone,
	// or packet loss past the reorder window).
	maxInFlight = 64
)

type sentPing struct {
	at   time.Time
	tick wire.Tick
}

// Manager estimates RTT and jitter from a ping/pong exchange, mirroring the
// standard TCP RTT estimator (spec.md §4.5): EWMA with α≈0.125 for the mean
// and 0.25 for the variance.
type Manager struct {
	tickDuration time.Duration

	rttMean float64 // seconds
	rttVar  float64 // seconds
	samples int

	nextSeq  uint16
	inFlight map[uint16]sentPing

	latestServerTick     wire.Tick
	haveLatestServerTick bool
}

// NewManager seeds the estimator from config.Ping.InitialEstimate so early
// resend timing isn't based on a zero RTT.
func NewManager(tickDuration, initialEstimate time.Duration) *Manager {
	return &Manager{
		tickDuration: tickDuration,
		rttMean:      initialEstimate.Seconds(),
		rttVar:       initialEstimate.Seconds() / 2,
		inFlight:     make(map[uint16]sentPing),
	}
}

// BuildPing stamps and records an outgoing ping for later RTT computation
// once its pong (if any) arrives.
func (m *Manager) BuildPing(now time.Time, tick wire.Tick) Ping {
	m.pruneStale(now)

	seq := m.nextSeq
	m.nextSeq++
	m.inFlight[seq] = sentPing{at: now, tick: tick}
	return Ping{Seq: seq, SendTick: tick}
}

func (m *Manager) pruneStale(now time.Time) {
	if len(m.inFlight) < maxInFlight {
		return
	}
	for seq, p := range m.inFlight {
		if now.Sub(p.at) > 10*time.Second {
			delete(m.inFlight, seq)
		}
	}
}

// HandlePong consumes a pong, computing a fresh RTT sample with the
// responder's own processing delay subtracted out, and folds it into the
// running mean/variance.
func (m *Manager) HandlePong(now time.Time, pong Pong) {
	sent, ok := m.inFlight[pong.Seq]
	if !ok {
		return // stale or duplicate pong; ignore
	}
	delete(m.inFlight, pong.Seq)

	processingTicks := pong.ServerRecvTick.Distance(pong.ServerSendTick)
	processing := time.Duration(processingTicks) * m.tickDuration

	sample := now.Sub(sent.at) - processing
	if sample < 0 {
		sample = 0
	}

	err := sample.Seconds() - m.rttMean
	m.rttMean += meanAlpha * err
	if err < 0 {
		err = -err
	}
	m.rttVar += varAlpha * (err - m.rttVar)
	m.samples++

	if !m.haveLatestServerTick || m.latestServerTick.Before(pong.ServerSendTick) {
		m.latestServerTick = pong.ServerSendTick
		m.haveLatestServerTick = true
	}
}

// RTT returns the current smoothed round-trip-time estimate.
func (m *Manager) RTT() time.Duration {
	return time.Duration(m.rttMean * float64(time.Second))
}

// Jitter returns the current smoothed RTT variance estimate.
func (m *Manager) Jitter() time.Duration {
	return time.Duration(m.rttVar * float64(time.Second))
}

// SampleCount reports how many pongs have contributed to the estimate.
// timesync.Manager does not read it; it counts its own samples.
func (m *Manager) SampleCount() int { return m.samples }

// LatestReceivedServerTick returns the newest server tick observed via a
// pong, if any have arrived yet.
func (m *Manager) LatestReceivedServerTick() (wire.Tick, bool) {
	return m.latestServerTick, m.haveLatestServerTick
}
