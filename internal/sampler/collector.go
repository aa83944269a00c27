// Package sampler builds one telemetry snapshot per tick from host counters
// and optional sensor providers.
package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/Dicklesworthstone/telelink/internal/logging"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/probe"
	"github.com/Dicklesworthstone/telelink/internal/schedule"
)

const bytesPerMiB = 1024 * 1024
const bytesPerGiB = 1024 * 1024 * 1024

// GPUSource reports the selected device for this tick.
type GPUSource interface {
	Current(ctx context.Context) model.GPU
}

// Options configures a Collector. Nil chains and a nil GPU source report
// the documented "not available" values.
type Options struct {
	DiskPath    string
	GPU         GPUSource
	Temperature *probe.Chain[float64]
	Audio       *probe.Chain[model.Audio]
	Clock       schedule.Clock
	Logger      *slog.Logger
}

// Collector assembles snapshots. Collect never fails: every unavailable
// source degrades to its fallback value.
type Collector struct {
	host HostSource
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	prevAt   time.Time
	prevCPU  *cpu.TimesStat
	prevDisk map[string]disk.IOCountersStat
	prevNet  *net.IOCountersStat
}

// New returns a Collector reading from host.
func New(host HostSource, opts Options) *Collector {
	if opts.Clock == nil {
		opts.Clock = schedule.Real()
	}
	if opts.DiskPath == "" {
		opts.DiskPath = DefaultDiskPath()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Collector{host: host, opts: opts, log: logger}
}

// Collect samples every domain once. Rates and CPU usage are averages over
// the time since the previous call; the first call reports them as 0.
func (c *Collector) Collect(ctx context.Context) model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Clock.Now()
	var elapsed float64
	if !c.prevAt.IsZero() {
		elapsed = now.Sub(c.prevAt).Seconds()
	}
	c.prevAt = now

	snap := model.Zero()
	snap.Timestamp = now
	snap.CPU = c.cpu(ctx)
	snap.Memory = c.memory(ctx)
	snap.Disk = c.disk(ctx, elapsed)
	snap.Network = c.network(ctx, elapsed)
	snap.GPU = c.gpu(ctx)
	snap.System = c.system(ctx)
	snap.Audio = c.audio(ctx)
	return snap.Sanitize()
}

func (c *Collector) cpu(ctx context.Context) model.CPU {
	out := model.CPU{Cores: 1}
	if times, err := c.host.CPUTimes(ctx); err == nil {
		if c.prevCPU != nil {
			out.Usage = busyPercent(*c.prevCPU, times)
		}
		c.prevCPU = &times
	} else {
		c.log.Debug("cpu times unavailable", "err", err)
	}
	if n, err := c.host.CPUCores(ctx); err == nil && n > 0 {
		out.Cores = n
	}
	if mhz, err := c.host.CPUFrequencyMHz(ctx); err == nil {
		out.FrequencyMHz = mhz
	}

	var temp float64
	var err error = probe.ErrUnsupported
	if c.opts.Temperature != nil {
		temp, _, err = c.opts.Temperature.First(ctx)
	}
	if err != nil {
		temp = EstimateTemperature(model.ClampPercent(out.Usage))
		out.TemperatureEstimated = true
	}
	out.TemperatureC = temp
	return out
}

// busyPercent is the non-idle share of CPU time between two readings.
func busyPercent(prev, cur cpu.TimesStat) float64 {
	total := cur.Total() - prev.Total()
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)
	if total <= 0 {
		return 0
	}
	return 100 * (1 - idle/total)
}

func (c *Collector) memory(ctx context.Context) model.Memory {
	vm, err := c.host.VirtualMemory(ctx)
	if err != nil || vm == nil {
		c.log.Debug("memory unavailable", "err", err)
		return model.Memory{}
	}
	used := float64(vm.Used) / bytesPerGiB
	total := float64(vm.Total) / bytesPerGiB
	return model.Memory{
		UsagePercent: model.Percent(used, total),
		UsedGB:       used,
		TotalGB:      total,
	}
}

func (c *Collector) disk(ctx context.Context, elapsed float64) model.Disk {
	var out model.Disk
	if usage, err := c.host.DiskUsage(ctx, c.opts.DiskPath); err == nil && usage != nil {
		out.UsagePercent = usage.UsedPercent
	}

	counters, err := c.host.DiskCounters(ctx)
	if err != nil {
		c.log.Debug("disk counters unavailable", "err", err)
		c.prevDisk = nil
		return out
	}
	if c.prevDisk != nil && elapsed > 0 {
		var read, written uint64
		for name, cur := range counters {
			prev, ok := c.prevDisk[name]
			if !ok {
				continue
			}
			read += counterDelta(prev.ReadBytes, cur.ReadBytes)
			written += counterDelta(prev.WriteBytes, cur.WriteBytes)
		}
		out.ReadMBs = float64(read) / bytesPerMiB / elapsed
		out.WriteMBs = float64(written) / bytesPerMiB / elapsed
	}
	c.prevDisk = counters
	return out
}

func (c *Collector) network(ctx context.Context, elapsed float64) model.Network {
	var out model.Network
	cur, err := c.host.NetCounters(ctx)
	if err != nil {
		c.log.Debug("network counters unavailable", "err", err)
		c.prevNet = nil
		return out
	}
	if c.prevNet != nil && elapsed > 0 {
		out.UploadMBs = float64(counterDelta(c.prevNet.BytesSent, cur.BytesSent)) / bytesPerMiB / elapsed
		out.DownloadMBs = float64(counterDelta(c.prevNet.BytesRecv, cur.BytesRecv)) / bytesPerMiB / elapsed
	}
	c.prevNet = &cur
	return out
}

// counterDelta treats a decreasing counter as a reset and reports no traffic.
func counterDelta(prev, cur uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func (c *Collector) gpu(ctx context.Context) model.GPU {
	if c.opts.GPU == nil {
		return model.NoGPU()
	}
	return c.opts.GPU.Current(ctx)
}

func (c *Collector) system(ctx context.Context) model.System {
	out := model.System{Platform: c.host.Platform()}
	secs, err := c.host.Uptime(ctx)
	if err != nil {
		return out
	}
	out.UptimeHours = int(secs / 3600)
	out.UptimeMinutes = int(secs % 3600 / 60)
	return out
}

func (c *Collector) audio(ctx context.Context) model.Audio {
	if c.opts.Audio == nil {
		return model.NoAudio()
	}
	a, _, err := c.opts.Audio.First(ctx)
	if err != nil {
		return model.NoAudio()
	}
	return a
}

// Stream collects on every tick of interval, starting immediately, until
// ctx is done. The channel holds only the newest snapshot: a slow reader
// sees the latest value, never a backlog.
func (c *Collector) Stream(ctx context.Context, interval time.Duration) <-chan model.Snapshot {
	ch := make(chan model.Snapshot, 1)
	go func() {
		defer close(ch)
		schedule.Every(ctx, c.opts.Clock, interval, true, func(time.Time) {
			publishLatest(ch, c.Collect(ctx))
		})
	}()
	return ch
}

func publishLatest(ch chan model.Snapshot, snap model.Snapshot) {
	select {
	case ch <- snap:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}
