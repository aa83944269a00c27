// Package ui renders the latest accepted snapshot, either as a Bubble Tea
// dashboard or as plain status lines when stdout is not a terminal.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Dicklesworthstone/telelink/internal/display"
	"github.com/Dicklesworthstone/telelink/internal/link"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/schedule"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
)

// Link reports the peer shown in the header. Local mode has none.
type Link interface {
	State() link.ConnectionState
}

// Options configures both renderers.
type Options struct {
	Mode       string
	Thresholds display.Thresholds
	Interval   time.Duration
	History    int
	Clock      schedule.Clock
	Link       Link
	Stats      *telemetry.ReceiverStats
	// Quit runs when the user leaves the dashboard.
	Quit func()
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = schedule.Real()
	}
	if o.Interval <= 0 {
		o.Interval = 250 * time.Millisecond
	}
	if o.Thresholds == (display.Thresholds{}) {
		o.Thresholds = display.DefaultThresholds()
	}
	return o
}

// Model redraws from the display store on its own tick.
type Model struct {
	store   *display.Store
	opts    Options
	frame   display.Frame
	lastSeq uint64
	cpuHist *Ring
	memHist *Ring
	dskHist *Ring
	netHist *Ring
	spin    spinner.Model
	width   int
	height  int
}

func New(store *display.Store, opts Options) *Model {
	opts = opts.withDefaults()
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{Frames: []string{"◐", "◓", "◑", "◒"}, FPS: time.Second / 8}
	sp.Style = lipgloss.NewStyle().Foreground(colorCritical)
	m := &Model{
		store:   store,
		opts:    opts,
		cpuHist: NewRing(opts.History),
		memHist: NewRing(opts.History),
		dskHist: NewRing(opts.History),
		netHist: NewRing(opts.History),
		spin:    sp,
		width:   120,
		height:  40,
	}
	m.refresh()
	return m
}

// Messages
type tickMsg time.Time

func (m *Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd { return tea.Batch(m.tickCmd(), m.spin.Tick) }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.opts.Quit != nil {
				m.opts.Quit()
			}
			return m, tea.Quit
		}
	case tickMsg:
		m.refresh()
		return m, m.tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Frame returns what the last tick evaluated.
func (m *Model) Frame() display.Frame { return m.frame }

func (m *Model) refresh() {
	f := display.Evaluate(m.store, m.opts.Thresholds, m.opts.Clock.Now())
	if f.HasData && f.Seq != m.lastSeq {
		s := f.Snapshot
		m.cpuHist.Push(s.CPU.Usage)
		m.memHist.Push(s.Memory.UsagePercent)
		m.dskHist.Push(s.Disk.ReadMBs + s.Disk.WriteMBs)
		m.netHist.Push(s.Network.UploadMBs + s.Network.DownloadMBs)
		m.lastSeq = f.Seq
	}
	m.frame = f
	if m.opts.Stats != nil {
		m.opts.Stats.Freshness.Store(int64(f.State))
	}
}

// Styles
var (
	colorNormal   = lipgloss.Color("42")
	colorWarning  = lipgloss.Color("214")
	colorCritical = lipgloss.Color("196")

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("45"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	badgeStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1).Foreground(lipgloss.Color("16"))
	gaugeFill   = "█"
	gaugeEmpty  = "░"
	cardStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("60")).
			Padding(0, 1).
			MarginRight(1)
)

const (
	gaugeWidth = 20
	sparkWidth = 30
)

func severityColor(s display.Severity) lipgloss.Color {
	switch s {
	case display.Critical:
		return colorCritical
	case display.Warning:
		return colorWarning
	default:
		return colorNormal
	}
}

func freshnessColor(f display.Freshness) lipgloss.Color {
	switch f {
	case display.Fresh:
		return colorNormal
	case display.Delayed:
		return colorWarning
	default:
		return colorCritical
	}
}

func (m *Model) View() string {
	f := m.frame
	s := f.Snapshot

	cpuCard := card("CPU",
		gaugeBar(s.CPU.Usage, gaugeWidth, f.CPU)+"\n"+
			fmt.Sprintf("%.0f MHz  %d cores  %s", s.CPU.FrequencyMHz, s.CPU.Cores,
				temperature(s.CPU.TemperatureC, f.Estimate, f.CPUTemp)),
		m.spark(m.cpuHist, 100, f.CPU))

	memCard := card("Memory",
		gaugeBar(s.Memory.UsagePercent, gaugeWidth, f.Memory)+"\n"+
			fmt.Sprintf("%.1f/%.1f GiB", s.Memory.UsedGB, s.Memory.TotalGB),
		m.spark(m.memHist, 100, f.Memory))

	diskCard := card("Disk",
		gaugeBar(s.Disk.UsagePercent, gaugeWidth, f.Disk)+"\n"+
			fmt.Sprintf("R/W: %.2f / %.2f MB/s", s.Disk.ReadMBs, s.Disk.WriteMBs),
		m.spark(m.dskHist, 0, display.Normal))

	netCard := card("Network",
		fmt.Sprintf("Up:   %8.2f MB/s\nDown: %8.2f MB/s", s.Network.UploadMBs, s.Network.DownloadMBs),
		m.spark(m.netHist, 0, display.Normal))

	gpuCard := card("GPU",
		truncate(s.GPU.Name, 28)+"\n"+
			gaugeBar(s.GPU.Usage, gaugeWidth, f.GPU)+"\n"+
			fmt.Sprintf("mem %3.0f%%  %s", s.GPU.MemoryPercent, temperature(s.GPU.TemperatureC, false, f.GPUTemp)),
		"")

	sysCard := card("System",
		fmt.Sprintf("%s\nup %dh %dm\n%s", s.System.Platform, s.System.UptimeHours, s.System.UptimeMinutes, audioLine(s.Audio)),
		"")

	line1 := lipgloss.JoinHorizontal(lipgloss.Top, cpuCard, memCard, diskCard)
	line2 := lipgloss.JoinHorizontal(lipgloss.Top, netCard, gpuCard, sysCard)
	footer := subtleStyle.Render("q quit")

	return lipgloss.JoinVertical(lipgloss.Left, m.header(), line1, line2, footer)
}

func (m *Model) header() string {
	f := m.frame
	parts := []string{titleStyle.Render("telelink")}
	if m.opts.Mode != "" {
		parts = append(parts, subtleStyle.Render(m.opts.Mode))
	}
	badge := badgeStyle.Background(freshnessColor(f.State)).Render(f.State.String())
	if f.State == display.Offline {
		badge = m.spin.View() + " " + badge
	}
	parts = append(parts, badge)
	if m.opts.Link != nil {
		parts = append(parts, subtleStyle.Render(peerLine(m.opts.Link.State())))
	}
	if f.HasData {
		parts = append(parts, subtleStyle.Render(fmt.Sprintf("updated %s ago", f.Elapsed.Round(100*time.Millisecond))))
	} else {
		parts = append(parts, subtleStyle.Render("no data yet"))
	}
	return strings.Join(parts, "  ")
}

func peerLine(st link.ConnectionState) string {
	switch {
	case st.Active:
		return fmt.Sprintf("peer %s session %s", st.Peer, shortID(st.Session))
	case st.Peer != "":
		return "last peer " + st.Peer
	default:
		return "waiting for sender"
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m *Model) spark(r *Ring, ceiling float64, sev display.Severity) string {
	line := sparkline(r.Values(), sparkWidth, ceiling)
	if line == "" {
		return ""
	}
	return lipgloss.NewStyle().Foreground(severityColor(sev)).Render(line)
}

// Helpers
func gaugeBar(pct float64, width int, sev display.Severity) string {
	pct = model.ClampPercent(pct)
	filled := min(int((pct/100)*float64(width)), width)
	bar := strings.Repeat(gaugeFill, filled) + strings.Repeat(gaugeEmpty, width-filled)
	return lipgloss.NewStyle().Foreground(severityColor(sev)).Render(fmt.Sprintf("[%s] %5.1f%%", bar, pct))
}

// temperature marks estimated readings with a leading "~".
func temperature(c float64, estimated bool, sev display.Severity) string {
	prefix := ""
	if estimated {
		prefix = "~"
	}
	return lipgloss.NewStyle().Foreground(severityColor(sev)).Render(fmt.Sprintf("%s%.1f°C", prefix, c))
}

func audioLine(a model.Audio) string {
	if !a.Available {
		return "audio " + model.NotAvailable
	}
	line := fmt.Sprintf("%s %3.0f%%", truncate(a.Device, 18), a.VolumePercent)
	if a.Muted {
		line += " muted"
	}
	return line
}

func card(title, body, spark string) string {
	content := labelStyle.Render(title) + "\n" + body
	if spark != "" {
		content += "\n" + spark
	}
	return cardStyle.Render(content)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RunTUI runs the dashboard until the user quits or ctx ends.
func RunTUI(ctx context.Context, m *Model) error {
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
