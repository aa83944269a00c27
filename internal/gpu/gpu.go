// Package gpu enumerates graphics devices from every available provider and
// selects the one device reported in a snapshot.
package gpu

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Dicklesworthstone/telelink/internal/logging"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// Kind orders devices by preference; larger values win.
type Kind int

const (
	KindIntegrated Kind = iota
	KindDiscreteOther
	KindDiscreteNvidia
)

func (k Kind) String() string {
	switch k {
	case KindIntegrated:
		return "integrated"
	case KindDiscreteOther:
		return "discrete-other"
	case KindDiscreteNvidia:
		return "discrete-nvidia"
	default:
		return "unknown"
	}
}

// Candidate is one discovered device. Candidate lists live for a single tick.
type Candidate struct {
	Name          string
	Kind          Kind
	Usage         float64
	MemoryPercent float64
	TemperatureC  float64
	Source        string
}

// Provider lists the devices one backend can see.
type Provider = probe.Provider[[]Candidate]

// Select returns the top-ranked candidate: kind priority first, then a
// device reporting non-zero usage over an idle one, then discovery order.
func Select(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Kind != b.Kind {
			return a.Kind > b.Kind
		}
		return a.Usage > 0 && b.Usage <= 0
	})
	return ranked[0], true
}

// Enumerator walks all providers each tick. Unlike a probe.Chain it does not
// stop at the first answer, since devices from different backends compete.
type Enumerator struct {
	providers []Provider
	logger    *slog.Logger
}

// NewEnumerator builds an Enumerator. A nil logger discards output.
func NewEnumerator(logger *slog.Logger, providers ...Provider) *Enumerator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Enumerator{providers: providers, logger: logger}
}

// Enumerate returns candidates from every provider that answered, dropping
// later duplicates of a device name already seen.
func (e *Enumerator) Enumerate(ctx context.Context) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, p := range e.providers {
		if ctx.Err() != nil {
			break
		}
		cands, err := p.Probe(ctx)
		if err != nil {
			e.logger.Debug("gpu provider unavailable", "provider", p.Name(), "err", err)
			continue
		}
		for _, c := range cands {
			key := dedupeKey(c.Name)
			if key != "" && seen[key] {
				continue
			}
			seen[key] = true
			if c.Source == "" {
				c.Source = p.Name()
			}
			out = append(out, c)
		}
	}
	return out
}

// Current enumerates, selects and converts to the snapshot descriptor.
// No candidates yields model.NoGPU().
func (e *Enumerator) Current(ctx context.Context) model.GPU {
	best, ok := Select(e.Enumerate(ctx))
	if !ok {
		return model.NoGPU()
	}
	name := strings.TrimSpace(best.Name)
	if name == "" {
		name = model.NotAvailable
	}
	return model.GPU{
		Name:          name,
		Usage:         model.ClampPercent(best.Usage),
		MemoryPercent: model.ClampPercent(best.MemoryPercent),
		TemperatureC:  best.TemperatureC,
	}
}

func dedupeKey(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "nvidia ")
	return n
}
