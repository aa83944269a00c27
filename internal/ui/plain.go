package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Dicklesworthstone/telelink/internal/display"
	"github.com/Dicklesworthstone/telelink/internal/schedule"
)

// Plain prints one status line whenever the freshness state changes or a
// new snapshot is accepted.
type Plain struct {
	w       io.Writer
	store   *display.Store
	opts    Options
	printed bool
	state   display.Freshness
	seq     uint64
}

func NewPlain(w io.Writer, store *display.Store, opts Options) *Plain {
	return &Plain{w: w, store: store, opts: opts.withDefaults()}
}

// Run evaluates on every render tick until ctx is done.
func (p *Plain) Run(ctx context.Context) {
	schedule.Every(ctx, p.opts.Clock, p.opts.Interval, true, func(now time.Time) { p.Render(now) })
}

// Render reports whether a line was written.
func (p *Plain) Render(now time.Time) bool {
	f := display.Evaluate(p.store, p.opts.Thresholds, now)
	if p.opts.Stats != nil {
		p.opts.Stats.Freshness.Store(int64(f.State))
	}
	if p.printed && f.State == p.state && f.Seq == p.seq {
		return false
	}
	p.printed, p.state, p.seq = true, f.State, f.Seq
	_, _ = fmt.Fprintln(p.w, FormatLine(now, f))
	return true
}

// FormatLine renders a frame as a single log-friendly line.
func FormatLine(now time.Time, f display.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", now.Format(time.RFC3339), f.State)
	if !f.HasData {
		b.WriteString(" waiting for first snapshot")
		return b.String()
	}
	s := f.Snapshot
	temp := fmt.Sprintf("%.1fC", s.CPU.TemperatureC)
	if f.Estimate {
		temp = "~" + temp
	}
	fmt.Fprintf(&b, " seq=%d age=%s", f.Seq, f.Elapsed.Round(100*time.Millisecond))
	fmt.Fprintf(&b, " cpu=%.1f%% temp=%s", s.CPU.Usage, temp)
	fmt.Fprintf(&b, " mem=%.1f%% (%.1f/%.1f GiB)", s.Memory.UsagePercent, s.Memory.UsedGB, s.Memory.TotalGB)
	fmt.Fprintf(&b, " disk=%.1f%% r=%.2f w=%.2f MB/s", s.Disk.UsagePercent, s.Disk.ReadMBs, s.Disk.WriteMBs)
	fmt.Fprintf(&b, " net up=%.2f down=%.2f MB/s", s.Network.UploadMBs, s.Network.DownloadMBs)
	fmt.Fprintf(&b, " gpu=%q %.1f%% %.1fC", s.GPU.Name, s.GPU.Usage, s.GPU.TemperatureC)
	return b.String()
}
