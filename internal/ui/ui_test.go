package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/telelink/internal/display"
	"github.com/Dicklesworthstone/telelink/internal/link"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixedLink link.ConnectionState

func (f fixedLink) State() link.ConnectionState { return link.ConnectionState(f) }

func snapshot(cpu float64) model.Snapshot {
	s := model.Zero()
	s.Timestamp = epoch
	s.CPU.Usage = cpu
	s.CPU.Cores = 8
	s.Memory = model.Memory{UsagePercent: 50, UsedGB: 8, TotalGB: 16}
	return s
}

func TestRingWraps(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Push(float64(i))
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []float64{3, 4, 5}, r.Values())
}

func TestRingZeroCapacity(t *testing.T) {
	r := NewRing(0)
	r.Push(1)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Values())
}

func TestSparkline(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		width   int
		ceiling float64
		want    string
	}{
		{"fixed ceiling", []float64{0, 50, 100}, 10, 100, "▁▄█"},
		{"auto ceiling", []float64{1, 2, 4}, 10, 0, "▂▄█"},
		{"all zero", []float64{0, 0}, 10, 0, "▁▁"},
		{"keeps newest", []float64{100, 0, 100}, 2, 100, "▁█"},
		{"over ceiling clamps", []float64{150}, 5, 100, "█"},
		{"empty", nil, 10, 100, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sparkline(tt.values, tt.width, tt.ceiling))
		})
	}
}

func TestModelTickFollowsFreshness(t *testing.T) {
	store := &display.Store{}
	clock := clockwork.NewFakeClockAt(epoch)
	stats := &telemetry.ReceiverStats{}
	m := New(store, Options{Clock: clock, History: 10, Stats: stats})
	assert.Equal(t, display.Offline, m.Frame().State)
	assert.False(t, m.Frame().HasData)

	store.Publish(snapshot(10), epoch)
	clock.Advance(time.Second)
	_, cmd := m.Update(tickMsg(clock.Now()))
	require.NotNil(t, cmd, "render tick re-arms itself")
	assert.Equal(t, display.Fresh, m.Frame().State)
	assert.Equal(t, int64(display.Fresh), stats.Freshness.Load())
	assert.Equal(t, 1, m.cpuHist.Len())

	clock.Advance(6 * time.Second)
	m.Update(tickMsg(clock.Now()))
	assert.Equal(t, display.Delayed, m.Frame().State)
	assert.Equal(t, 1, m.cpuHist.Len(), "history grows only on new snapshots")

	clock.Advance(10 * time.Second)
	m.Update(tickMsg(clock.Now()))
	assert.Equal(t, display.Offline, m.Frame().State)
	assert.Equal(t, int64(display.Offline), stats.Freshness.Load())

	store.Publish(snapshot(90), clock.Now())
	m.Update(tickMsg(clock.Now()))
	assert.Equal(t, display.Fresh, m.Frame().State)
	assert.Equal(t, display.Critical, m.Frame().CPU)
	assert.Equal(t, []float64{10, 90}, m.cpuHist.Values())
}

func TestModelQuit(t *testing.T) {
	quit := false
	m := New(&display.Store{}, Options{Clock: clockwork.NewFakeClockAt(epoch), Quit: func() { quit = true }})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.True(t, quit)
}

func TestModelWindowSize(t *testing.T) {
	m := New(&display.Store{}, Options{Clock: clockwork.NewFakeClockAt(epoch)})
	_, cmd := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Nil(t, cmd)
	assert.Equal(t, 80, m.width)
	assert.Equal(t, 24, m.height)
}

func TestViewWithoutData(t *testing.T) {
	m := New(&display.Store{}, Options{Mode: "receive", Clock: clockwork.NewFakeClockAt(epoch), Link: fixedLink{}})
	view := m.View()
	assert.Contains(t, view, "OFFLINE")
	assert.Contains(t, view, "waiting for sender")
	assert.Contains(t, view, "no data yet")
	assert.Contains(t, view, model.NotAvailable)
}

func TestViewShowsPeerAndEstimate(t *testing.T) {
	store := &display.Store{}
	snap := snapshot(30)
	snap.CPU.TemperatureC = 44
	snap.CPU.TemperatureEstimated = true
	snap.GPU = model.GPU{Name: "NVIDIA GeForce RTX 3080", Usage: 12, TemperatureC: 51}
	store.Publish(snap, epoch)

	clock := clockwork.NewFakeClockAt(epoch.Add(2 * time.Second))
	m := New(store, Options{
		Clock: clock,
		Link: fixedLink{
			Active:  true,
			Peer:    "10.0.0.5:51234",
			Session: "0f8fad5b-d9cb-469f-a165-70867728950e",
		},
	})
	view := m.View()
	assert.Contains(t, view, "FRESH")
	assert.Contains(t, view, "peer 10.0.0.5:51234 session 0f8fad5b")
	assert.Contains(t, view, "~44.0°C")
	assert.Contains(t, view, "51.0°C")
	assert.NotContains(t, view, "~51.0°C")
	assert.Contains(t, view, "updated 2s ago")
}

func TestPeerLine(t *testing.T) {
	assert.Equal(t, "waiting for sender", peerLine(link.ConnectionState{}))
	assert.Equal(t, "last peer 10.0.0.5:1", peerLine(link.ConnectionState{Peer: "10.0.0.5:1"}))
}

func TestPlainWritesOnChange(t *testing.T) {
	var buf bytes.Buffer
	store := &display.Store{}
	p := NewPlain(&buf, store, Options{})

	assert.True(t, p.Render(epoch))
	assert.False(t, p.Render(epoch.Add(time.Second)), "unchanged state prints nothing")

	store.Publish(snapshot(25), epoch.Add(time.Second))
	assert.True(t, p.Render(epoch.Add(2*time.Second)))
	assert.False(t, p.Render(epoch.Add(3*time.Second)))

	assert.True(t, p.Render(epoch.Add(7*time.Second)))
	assert.True(t, p.Render(epoch.Add(20*time.Second)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "[OFFLINE] waiting for first snapshot")
	assert.Contains(t, lines[1], "[FRESH] seq=1")
	assert.Contains(t, lines[1], "cpu=25.0%")
	assert.Contains(t, lines[2], "[DELAYED]")
	assert.Contains(t, lines[3], "[OFFLINE] seq=1")
}

func TestFormatLineMarksEstimate(t *testing.T) {
	store := &display.Store{}
	snap := snapshot(50)
	snap.CPU.TemperatureC = 50
	snap.CPU.TemperatureEstimated = true
	store.Publish(snap, epoch)

	line := FormatLine(epoch, display.Evaluate(store, display.DefaultThresholds(), epoch))
	assert.Contains(t, line, "temp=~50.0C")
	assert.Contains(t, line, `gpu="N/A"`)
}
