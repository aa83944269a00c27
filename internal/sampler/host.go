package sampler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	tlerrors "github.com/Dicklesworthstone/telelink/internal/errors"
)

// HostSource exposes the cumulative host counters the collector derives a
// snapshot from. Gopsutil backs it in production; tests substitute fakes.
type HostSource interface {
	CPUTimes(ctx context.Context) (cpu.TimesStat, error)
	CPUCores(ctx context.Context) (int, error)
	CPUFrequencyMHz(ctx context.Context) (float64, error)
	VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	DiskCounters(ctx context.Context) (map[string]disk.IOCountersStat, error)
	DiskUsage(ctx context.Context, path string) (*disk.UsageStat, error)
	NetCounters(ctx context.Context) (net.IOCountersStat, error)
	Uptime(ctx context.Context) (uint64, error)
	Platform() string
}

// Host reads the local machine through gopsutil.
type Host struct {
	// SysfsRoot is used for cpufreq and block-device filtering on Linux.
	SysfsRoot string
}

// NewHost returns a gopsutil-backed HostSource.
func NewHost(sysfsRoot string) *Host {
	if sysfsRoot == "" {
		sysfsRoot = "/sys"
	}
	return &Host{SysfsRoot: sysfsRoot}
}

var _ HostSource = (*Host)(nil)

func (h *Host) CPUTimes(ctx context.Context) (cpu.TimesStat, error) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return cpu.TimesStat{}, err
	}
	if len(times) == 0 {
		return cpu.TimesStat{}, errors.New("no cpu times")
	}
	return times[0], nil
}

func (h *Host) CPUCores(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

// CPUFrequencyMHz averages the current per-core clock. Linux cpufreq is
// preferred since gopsutil's cpu.Info reports the rated clock elsewhere.
func (h *Host) CPUFrequencyMHz(ctx context.Context) (float64, error) {
	if mhz, ok := h.cpufreq(); ok {
		return mhz, nil
	}
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for _, info := range infos {
		if info.Mhz > 0 {
			sum += info.Mhz
			n++
		}
	}
	if n == 0 {
		return 0, errors.New("no cpu frequency reported")
	}
	return sum / float64(n), nil
}

func (h *Host) cpufreq() (float64, bool) {
	paths, _ := filepath.Glob(filepath.Join(h.SysfsRoot, "devices/system/cpu/cpu[0-9]*/cpufreq/scaling_cur_freq"))
	var sum float64
	var n int
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		khz, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
		if err != nil || khz <= 0 {
			continue
		}
		sum += khz / 1000
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (h *Host) VirtualMemory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

// DiskCounters returns whole-disk counters. Partitions are dropped when
// /sys/block is readable so that traffic is not counted twice.
func (h *Host) DiskCounters(ctx context.Context) (map[string]disk.IOCountersStat, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return nil, err
	}
	blockDir := filepath.Join(h.SysfsRoot, "block")
	_, statErr := os.Stat(blockDir)
	filterBlocks := runtime.GOOS == "linux" && statErr == nil

	out := make(map[string]disk.IOCountersStat, len(counters))
	for name, st := range counters {
		if strings.HasPrefix(name, "loop") || strings.HasPrefix(name, "ram") {
			continue
		}
		if filterBlocks {
			if _, err := os.Stat(filepath.Join(blockDir, name)); err != nil {
				continue
			}
		}
		out[name] = st
	}
	return out, nil
}

func (h *Host) DiskUsage(ctx context.Context, path string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, path)
}

func (h *Host) NetCounters(ctx context.Context) (net.IOCountersStat, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return net.IOCountersStat{}, err
	}
	if len(counters) == 0 {
		return net.IOCountersStat{}, errors.New("no network counters")
	}
	return counters[0], nil
}

func (h *Host) Uptime(ctx context.Context) (uint64, error) {
	return host.UptimeWithContext(ctx)
}

func (h *Host) Platform() string { return PlatformName(runtime.GOOS) }

// PlatformName maps GOOS to the operating system name shown on the display.
func PlatformName(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	case "freebsd":
		return "FreeBSD"
	case "":
		return "N/A"
	default:
		return goos
	}
}

// CheckDiskPath fails with a SENSOR error when path, or the default mount
// when path is empty, cannot be reported on.
func CheckDiskPath(path string) error {
	if path == "" {
		path = DefaultDiskPath()
	}
	info, err := os.Stat(path)
	if err != nil {
		return tlerrors.WrapWithCode(err, tlerrors.ErrSensor,
			"Disk path not found: "+path,
			"Set --disk-path to a mounted filesystem")
	}
	if !info.IsDir() {
		return tlerrors.New(tlerrors.ErrSensor,
			"Disk path is not a directory: "+path,
			"Set --disk-path to a mount point such as / or C:\\")
	}
	return nil
}

// DefaultDiskPath is the mount whose usage is reported.
func DefaultDiskPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}
