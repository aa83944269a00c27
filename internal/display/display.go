// Package display derives what the dashboard shows from the latest accepted
// snapshot: a freshness state from elapsed time and a severity per metric.
package display

import (
	"sync/atomic"
	"time"

	"github.com/Dicklesworthstone/telelink/internal/model"
)

// Freshness classifies how recently a valid snapshot was accepted.
type Freshness int

const (
	Offline Freshness = iota
	Delayed
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "FRESH"
	case Delayed:
		return "DELAYED"
	default:
		return "OFFLINE"
	}
}

// Thresholds bound the freshness states: FRESH below FreshAfter, DELAYED
// until OfflineAfter, OFFLINE from then on.
type Thresholds struct {
	FreshAfter   time.Duration
	OfflineAfter time.Duration
}

func DefaultThresholds() Thresholds {
	return Thresholds{FreshAfter: 5 * time.Second, OfflineAfter: 15 * time.Second}
}

// Classify is a pure function of elapsed time with no hysteresis.
// A negative elapsed (receiver clock stepped back) counts as fresh.
func (t Thresholds) Classify(elapsed time.Duration) Freshness {
	switch {
	case elapsed < t.FreshAfter:
		return Fresh
	case elapsed < t.OfflineAfter:
		return Delayed
	default:
		return Offline
	}
}

// Severity colours a single metric.
type Severity int

const (
	Normal Severity = iota
	Warning
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "normal"
	}
}

// Band holds the lower bounds of the warning and critical ranges. The
// warning bound is inclusive; the critical bound is exclusive, so a value
// equal to Critical is still a warning.
type Band struct {
	Warning  float64
	Critical float64
}

var (
	UsageBand       = Band{Warning: 60, Critical: 80}
	MemoryBand      = Band{Warning: 70, Critical: 85}
	TemperatureBand = Band{Warning: 65, Critical: 80}
)

func (b Band) Classify(v float64) Severity {
	switch {
	case v > b.Critical:
		return Critical
	case v >= b.Warning:
		return Warning
	default:
		return Normal
	}
}

// Accepted is a decoded snapshot stamped by the receiving side.
type Accepted struct {
	Snapshot  model.Snapshot
	Seq       uint64
	ArrivedAt time.Time
}

// Store holds the one latest accepted snapshot. A single writer publishes;
// any number of readers load it concurrently and always see a whole value.
type Store struct {
	latest atomic.Pointer[Accepted]
	seq    atomic.Uint64
}

// Publish replaces the latest snapshot, stamping it with arrivedAt from the
// local clock.
func (s *Store) Publish(snap model.Snapshot, arrivedAt time.Time) Accepted {
	acc := &Accepted{Snapshot: snap, Seq: s.seq.Add(1), ArrivedAt: arrivedAt}
	s.latest.Store(acc)
	return *acc
}

// Latest returns the current snapshot, if any was ever accepted.
func (s *Store) Latest() (Accepted, bool) {
	acc := s.latest.Load()
	if acc == nil {
		return Accepted{}, false
	}
	return *acc, true
}

// Frame is everything one render needs.
type Frame struct {
	State    Freshness
	HasData  bool
	Elapsed  time.Duration
	Seq      uint64
	Snapshot model.Snapshot

	CPU      Severity
	Memory   Severity
	GPU      Severity
	CPUTemp  Severity
	GPUTemp  Severity
	Disk     Severity
	Estimate bool
}

// Evaluate builds the frame for now. Severities use the latest values in
// every state; with no data the panels show the zero snapshot.
func Evaluate(s *Store, th Thresholds, now time.Time) Frame {
	acc, ok := s.Latest()
	if !ok {
		return Frame{State: Offline, Snapshot: model.Zero()}
	}
	elapsed := now.Sub(acc.ArrivedAt)
	snap := acc.Snapshot
	return Frame{
		State:    th.Classify(elapsed),
		HasData:  true,
		Elapsed:  elapsed,
		Seq:      acc.Seq,
		Snapshot: snap,
		CPU:      UsageBand.Classify(snap.CPU.Usage),
		Memory:   MemoryBand.Classify(snap.Memory.UsagePercent),
		GPU:      UsageBand.Classify(snap.GPU.Usage),
		CPUTemp:  TemperatureBand.Classify(snap.CPU.TemperatureC),
		GPUTemp:  TemperatureBand.Classify(snap.GPU.TemperatureC),
		Disk:     MemoryBand.Classify(snap.Disk.UsagePercent),
		Estimate: snap.CPU.TemperatureEstimated,
	}
}
