package sampler

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tlerrors "github.com/Dicklesworthstone/telelink/internal/errors"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/probe"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeHost struct {
	times    cpu.TimesStat
	timesErr error
	cores    int
	mhz      float64
	vm       *mem.VirtualMemoryStat
	disks    map[string]disk.IOCountersStat
	disksErr error
	usage    *disk.UsageStat
	net      net.IOCountersStat
	netErr   error
	uptime   uint64
}

func (f *fakeHost) CPUTimes(context.Context) (cpu.TimesStat, error) { return f.times, f.timesErr }
func (f *fakeHost) CPUCores(context.Context) (int, error)           { return f.cores, nil }
func (f *fakeHost) CPUFrequencyMHz(context.Context) (float64, error) {
	return f.mhz, nil
}
func (f *fakeHost) VirtualMemory(context.Context) (*mem.VirtualMemoryStat, error) {
	if f.vm == nil {
		return nil, errors.New("no meminfo")
	}
	return f.vm, nil
}
func (f *fakeHost) DiskCounters(context.Context) (map[string]disk.IOCountersStat, error) {
	if f.disksErr != nil {
		return nil, f.disksErr
	}
	out := make(map[string]disk.IOCountersStat, len(f.disks))
	for k, v := range f.disks {
		out[k] = v
	}
	return out, nil
}
func (f *fakeHost) DiskUsage(context.Context, string) (*disk.UsageStat, error) {
	if f.usage == nil {
		return nil, errors.New("no volume")
	}
	return f.usage, nil
}
func (f *fakeHost) NetCounters(context.Context) (net.IOCountersStat, error) { return f.net, f.netErr }
func (f *fakeHost) Uptime(context.Context) (uint64, error)                  { return f.uptime, nil }
func (f *fakeHost) Platform() string                                        { return "Linux" }

func newFakeHost() *fakeHost {
	return &fakeHost{
		times: cpu.TimesStat{User: 100, System: 50, Idle: 850},
		cores: 8,
		mhz:   3200,
		vm:    &mem.VirtualMemoryStat{Total: 16 * bytesPerGiB, Used: 4 * bytesPerGiB},
		disks: map[string]disk.IOCountersStat{
			"nvme0n1": {ReadBytes: 10 * bytesPerMiB, WriteBytes: 20 * bytesPerMiB},
		},
		usage:  &disk.UsageStat{UsedPercent: 42.5},
		net:    net.IOCountersStat{BytesSent: 1 * bytesPerMiB, BytesRecv: 2 * bytesPerMiB},
		uptime: 2*3600 + 35*60 + 12,
	}
}

func fixedTemp(c float64) *probe.Chain[float64] {
	return probe.NewChain[float64](nil, probe.Func[float64]{
		ProviderName: "fixed",
		Fn:           func(context.Context) (float64, error) { return c, nil },
	})
}

func noTemp() *probe.Chain[float64] {
	return probe.NewChain[float64](nil, probe.Func[float64]{
		ProviderName: "absent",
		Fn:           func(context.Context) (float64, error) { return 0, probe.ErrUnsupported },
	})
}

type staticGPU model.GPU

func (g staticGPU) Current(context.Context) model.GPU { return model.GPU(g) }

func TestCollectColdStart(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	c := New(newFakeHost(), Options{Clock: clock, Temperature: fixedTemp(48)})

	snap := c.Collect(context.Background())

	assert.Equal(t, epoch, snap.Timestamp)
	assert.Zero(t, snap.Disk.ReadMBs)
	assert.Zero(t, snap.Disk.WriteMBs)
	assert.Zero(t, snap.Network.UploadMBs)
	assert.Zero(t, snap.Network.DownloadMBs)
	assert.Zero(t, snap.CPU.Usage)
	assert.InDelta(t, 42.5, snap.Disk.UsagePercent, 1e-9)
	assert.NoError(t, snap.Validate())
}

func TestCollectDerivesRatesFromDeltas(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	host := newFakeHost()
	c := New(host, Options{Clock: clock, Temperature: fixedTemp(48)})
	c.Collect(context.Background())

	clock.Advance(2 * time.Second)
	host.times = cpu.TimesStat{User: 160, System: 90, Idle: 950}
	host.disks["nvme0n1"] = disk.IOCountersStat{ReadBytes: 14 * bytesPerMiB, WriteBytes: 21 * bytesPerMiB}
	host.net = net.IOCountersStat{BytesSent: 3 * bytesPerMiB, BytesRecv: 12 * bytesPerMiB}

	snap := c.Collect(context.Background())

	assert.InDelta(t, 50, snap.CPU.Usage, 1e-9, "100 busy of 200 total ticks")
	assert.InDelta(t, 2, snap.Disk.ReadMBs, 1e-9)
	assert.InDelta(t, 0.5, snap.Disk.WriteMBs, 1e-9)
	assert.InDelta(t, 1, snap.Network.UploadMBs, 1e-9)
	assert.InDelta(t, 5, snap.Network.DownloadMBs, 1e-9)
	assert.Equal(t, epoch.Add(2*time.Second), snap.Timestamp)
}

func TestCollectCounterResetReportsZero(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	host := newFakeHost()
	c := New(host, Options{Clock: clock})
	c.Collect(context.Background())

	clock.Advance(2 * time.Second)
	host.net = net.IOCountersStat{}
	host.disks["nvme0n1"] = disk.IOCountersStat{}
	snap := c.Collect(context.Background())

	assert.Zero(t, snap.Network.UploadMBs)
	assert.Zero(t, snap.Disk.ReadMBs)
}

func TestCollectCounterGapRestartsBaseline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	host := newFakeHost()
	c := New(host, Options{Clock: clock})
	c.Collect(context.Background())

	clock.Advance(2 * time.Second)
	host.disksErr = errors.New("diskstats unreadable")
	host.netErr = errors.New("net/dev unreadable")
	snap := c.Collect(context.Background())
	assert.Zero(t, snap.Disk.ReadMBs)
	assert.Zero(t, snap.Network.DownloadMBs)

	// Four seconds of traffic since the last good read must not be divided
	// by the two seconds since the failed one.
	clock.Advance(2 * time.Second)
	host.disksErr = nil
	host.netErr = nil
	host.disks["nvme0n1"] = disk.IOCountersStat{ReadBytes: 18 * bytesPerMiB, WriteBytes: 20 * bytesPerMiB}
	host.net = net.IOCountersStat{BytesSent: 1 * bytesPerMiB, BytesRecv: 10 * bytesPerMiB}
	snap = c.Collect(context.Background())
	assert.Zero(t, snap.Disk.ReadMBs, "first read after a gap is a fresh baseline")
	assert.Zero(t, snap.Network.DownloadMBs)

	clock.Advance(2 * time.Second)
	host.disks["nvme0n1"] = disk.IOCountersStat{ReadBytes: 22 * bytesPerMiB, WriteBytes: 20 * bytesPerMiB}
	host.net = net.IOCountersStat{BytesSent: 1 * bytesPerMiB, BytesRecv: 12 * bytesPerMiB}
	snap = c.Collect(context.Background())
	assert.InDelta(t, 2, snap.Disk.ReadMBs, 1e-9)
	assert.InDelta(t, 1, snap.Network.DownloadMBs, 1e-9)
}

func TestCollectMemoryAndSystem(t *testing.T) {
	c := New(newFakeHost(), Options{Clock: clockwork.NewFakeClockAt(epoch)})
	snap := c.Collect(context.Background())

	assert.InDelta(t, 25, snap.Memory.UsagePercent, 1e-9)
	assert.InDelta(t, 4, snap.Memory.UsedGB, 1e-9)
	assert.InDelta(t, 16, snap.Memory.TotalGB, 1e-9)
	assert.Equal(t, 8, snap.CPU.Cores)
	assert.InDelta(t, 3200, snap.CPU.FrequencyMHz, 1e-9)
	assert.Equal(t, model.System{Platform: "Linux", UptimeHours: 2, UptimeMinutes: 35}, snap.System)
}

func TestCollectTemperature(t *testing.T) {
	t.Run("sensor reading", func(t *testing.T) {
		c := New(newFakeHost(), Options{Clock: clockwork.NewFakeClockAt(epoch), Temperature: fixedTemp(61.5)})
		snap := c.Collect(context.Background())
		assert.InDelta(t, 61.5, snap.CPU.TemperatureC, 1e-9)
		assert.False(t, snap.CPU.TemperatureEstimated)
	})

	t.Run("estimate when no sensor answers", func(t *testing.T) {
		clock := clockwork.NewFakeClockAt(epoch)
		host := newFakeHost()
		c := New(host, Options{Clock: clock, Temperature: noTemp()})
		first := c.Collect(context.Background())
		assert.True(t, first.CPU.TemperatureEstimated)
		assert.InDelta(t, 35, first.CPU.TemperatureC, 1e-9)

		clock.Advance(2 * time.Second)
		host.times = cpu.TimesStat{User: 160, System: 90, Idle: 950}
		second := c.Collect(context.Background())
		assert.InDelta(t, 50, second.CPU.Usage, 1e-9)
		assert.InDelta(t, 50, second.CPU.TemperatureC, 1e-9, "35 + 50% of 30")
	})
}

func TestCollectDegradesWithoutSources(t *testing.T) {
	host := newFakeHost()
	host.vm = nil
	host.usage = nil
	host.timesErr = errors.New("no /proc/stat")
	c := New(host, Options{Clock: clockwork.NewFakeClockAt(epoch)})

	snap := c.Collect(context.Background())

	require.NoError(t, snap.Validate())
	assert.Equal(t, model.NoGPU(), snap.GPU)
	assert.Equal(t, model.NoAudio(), snap.Audio)
	assert.Zero(t, snap.Memory.TotalGB)
	assert.True(t, snap.CPU.TemperatureEstimated)
}

func TestCollectUsesGPUSource(t *testing.T) {
	gpu := staticGPU{Name: "NVIDIA GeForce RTX 3060", Usage: 33, MemoryPercent: 12, TemperatureC: 55}
	c := New(newFakeHost(), Options{Clock: clockwork.NewFakeClockAt(epoch), GPU: gpu})
	snap := c.Collect(context.Background())
	assert.Equal(t, model.GPU(gpu), snap.GPU)
}

func TestStreamCollectsPerTick(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	c := New(newFakeHost(), Options{Clock: clock})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := c.Stream(ctx, 2*time.Second)
	first := <-ch
	assert.Equal(t, epoch, first.Timestamp)

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(2 * time.Second)
	second := <-ch
	assert.Equal(t, epoch.Add(2*time.Second), second.Timestamp)

	cancel()
	for range ch {
	}
}

func TestPublishLatestReplacesUnread(t *testing.T) {
	ch := make(chan model.Snapshot, 1)
	for i := 1; i <= 3; i++ {
		s := model.Zero()
		s.CPU.Cores = i
		publishLatest(ch, s)
	}
	require.Len(t, ch, 1)
	assert.Equal(t, 3, (<-ch).CPU.Cores)
}

func TestCheckDiskPath(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckDiskPath(dir))
	assert.NoError(t, CheckDiskPath(""))

	err := CheckDiskPath(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.True(t, tlerrors.IsCode(err, tlerrors.ErrSensor))
	assert.ErrorIs(t, err, fs.ErrNotExist)

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.True(t, tlerrors.IsCode(CheckDiskPath(file), tlerrors.ErrSensor))
}
