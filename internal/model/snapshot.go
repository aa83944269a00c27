package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// NotAvailable is the name reported for absent hardware.
const NotAvailable = "N/A"

// CPU aggregates processor usage over one collection interval.
type CPU struct {
	Usage        float64 // percent 0-100
	FrequencyMHz float64
	Cores        int
	TemperatureC float64
	// TemperatureEstimated is set when no sensor answered and TemperatureC
	// was derived from Usage.
	TemperatureEstimated bool
}

// Memory captures RAM usage in GiB.
type Memory struct {
	UsagePercent float64
	UsedGB       float64
	TotalGB      float64
}

// Disk holds instantaneous throughput (MiB/s) and root volume fill.
type Disk struct {
	ReadMBs      float64
	WriteMBs     float64
	UsagePercent float64
}

// Network holds instantaneous throughput in MiB/s summed over interfaces.
type Network struct {
	UploadMBs   float64
	DownloadMBs float64
}

// GPU is the single selected device. Name is NotAvailable when nothing was found.
type GPU struct {
	Name          string
	Usage         float64
	MemoryPercent float64
	TemperatureC  float64
}

// System carries host identity and uptime.
type System struct {
	Platform      string
	UptimeHours   int
	UptimeMinutes int
}

// Audio describes the default output device. Device is NotAvailable when
// no audio API answered.
type Audio struct {
	Available     bool
	Device        string
	VolumePercent float64
	Muted         bool
}

// Snapshot is the unit of transfer between collector, link and display.
// It is built once per tick and treated as an immutable value afterwards.
type Snapshot struct {
	Timestamp time.Time
	CPU       CPU
	Memory    Memory
	Disk      Disk
	Network   Network
	GPU       GPU
	System    System
	Audio     Audio
}

// NoGPU is the descriptor used when no provider yields a device.
func NoGPU() GPU { return GPU{Name: NotAvailable} }

// NoAudio is the descriptor used when no audio API is present.
func NoAudio() Audio { return Audio{Device: NotAvailable} }

// Zero returns a fully populated placeholder snapshot.
func Zero() Snapshot {
	return Snapshot{
		CPU:    CPU{Cores: 1},
		GPU:    NoGPU(),
		System: System{Platform: NotAvailable},
		Audio:  NoAudio(),
	}
}

// Sanitize returns a copy with every field forced into its documented range:
// non-finite numbers become 0, percentages are clamped to [0,100], rates are
// non-negative, used memory never exceeds total and empty names become N/A.
func (s Snapshot) Sanitize() Snapshot {
	out := s

	out.CPU.Usage = ClampPercent(s.CPU.Usage)
	out.CPU.FrequencyMHz = nonNegative(s.CPU.FrequencyMHz)
	out.CPU.TemperatureC = finite(s.CPU.TemperatureC)
	if out.CPU.Cores < 1 {
		out.CPU.Cores = 1
	}

	out.Memory.TotalGB = nonNegative(s.Memory.TotalGB)
	out.Memory.UsedGB = math.Min(nonNegative(s.Memory.UsedGB), out.Memory.TotalGB)
	out.Memory.UsagePercent = ClampPercent(s.Memory.UsagePercent)

	out.Disk.ReadMBs = nonNegative(s.Disk.ReadMBs)
	out.Disk.WriteMBs = nonNegative(s.Disk.WriteMBs)
	out.Disk.UsagePercent = ClampPercent(s.Disk.UsagePercent)

	out.Network.UploadMBs = nonNegative(s.Network.UploadMBs)
	out.Network.DownloadMBs = nonNegative(s.Network.DownloadMBs)

	out.GPU.Usage = ClampPercent(s.GPU.Usage)
	out.GPU.MemoryPercent = ClampPercent(s.GPU.MemoryPercent)
	out.GPU.TemperatureC = finite(s.GPU.TemperatureC)
	if out.GPU.Name == "" {
		out.GPU.Name = NotAvailable
	}

	if out.System.Platform == "" {
		out.System.Platform = NotAvailable
	}
	if out.System.UptimeHours < 0 {
		out.System.UptimeHours = 0
	}
	if out.System.UptimeMinutes < 0 || out.System.UptimeMinutes > 59 {
		out.System.UptimeMinutes = 0
	}

	out.Audio.VolumePercent = ClampPercent(s.Audio.VolumePercent)
	if out.Audio.Device == "" {
		out.Audio.Device = NotAvailable
	}
	return out
}

// Validate reports every field that violates the snapshot invariants.
func (s Snapshot) Validate() error {
	var errs []error
	percent := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s: %v out of [0,100]", name, v))
		}
	}
	rate := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			errs = append(errs, fmt.Errorf("%s: %v must be finite and >= 0", name, v))
		}
	}
	finiteOnly := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s: %v must be finite", name, v))
		}
	}

	percent("cpu.usage", s.CPU.Usage)
	rate("cpu.frequency", s.CPU.FrequencyMHz)
	finiteOnly("cpu.temperature", s.CPU.TemperatureC)
	if s.CPU.Cores < 1 {
		errs = append(errs, fmt.Errorf("cpu.cores: %d must be >= 1", s.CPU.Cores))
	}

	percent("memory.usage_percent", s.Memory.UsagePercent)
	rate("memory.used_gb", s.Memory.UsedGB)
	rate("memory.total_gb", s.Memory.TotalGB)
	if s.Memory.UsedGB > s.Memory.TotalGB {
		errs = append(errs, fmt.Errorf("memory.used_gb: %v exceeds total %v", s.Memory.UsedGB, s.Memory.TotalGB))
	}

	rate("disk.read_speed", s.Disk.ReadMBs)
	rate("disk.write_speed", s.Disk.WriteMBs)
	percent("disk.usage_percent", s.Disk.UsagePercent)

	rate("network.upload_speed", s.Network.UploadMBs)
	rate("network.download_speed", s.Network.DownloadMBs)

	percent("gpu.usage", s.GPU.Usage)
	percent("gpu.memory_percent", s.GPU.MemoryPercent)
	finiteOnly("gpu.temperature", s.GPU.TemperatureC)

	if s.System.UptimeHours < 0 {
		errs = append(errs, fmt.Errorf("system.uptime_hours: %d must be >= 0", s.System.UptimeHours))
	}
	if s.System.UptimeMinutes < 0 || s.System.UptimeMinutes > 59 {
		errs = append(errs, fmt.Errorf("system.uptime_minutes: %d out of [0,59]", s.System.UptimeMinutes))
	}

	percent("audio.volume", s.Audio.VolumePercent)

	return errors.Join(errs...)
}

// ClampPercent maps v into [0,100]; NaN becomes 0.
func ClampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}

// Percent returns used/total*100 clamped, or 0 when total is zero.
func Percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return ClampPercent(used / total * 100)
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func nonNegative(v float64) float64 {
	v = finite(v)
	if v < 0 {
		return 0
	}
	return v
}
