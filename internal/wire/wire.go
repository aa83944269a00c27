// Package wire encodes snapshots as newline-delimited JSON records and
// decodes inbound records back into validated snapshots.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Dicklesworthstone/telelink/internal/model"
)

// Delimiter terminates every record on the stream.
const Delimiter = '\n'

// MaxRecordSize bounds a single inbound line.
const MaxRecordSize = 64 * 1024

var (
	// ErrMalformed marks records that are not parseable JSON objects.
	ErrMalformed = errors.New("wire: malformed record")
	// ErrSchema marks records that parse but miss fields or hold out-of-range values.
	ErrSchema = errors.New("wire: schema violation")
)

// zone-less ISO form some senders emit; it is read as local time.
const isoLocal = "2006-01-02T15:04:05.999999999"

type cpuOut struct {
	Usage                float64 `json:"usage"`
	Frequency            float64 `json:"frequency"`
	Cores                int     `json:"cores"`
	Temperature          float64 `json:"temperature"`
	TemperatureEstimated bool    `json:"temperature_estimated,omitempty"`
}

type memoryOut struct {
	UsagePercent float64 `json:"usage_percent"`
	UsedGB       float64 `json:"used_gb"`
	TotalGB      float64 `json:"total_gb"`
}

type diskOut struct {
	ReadSpeed    float64 `json:"read_speed"`
	WriteSpeed   float64 `json:"write_speed"`
	UsagePercent float64 `json:"usage_percent"`
}

type networkOut struct {
	UploadSpeed   float64 `json:"upload_speed"`
	DownloadSpeed float64 `json:"download_speed"`
}

type gpuOut struct {
	Usage         float64 `json:"usage"`
	MemoryPercent float64 `json:"memory_percent"`
	Temperature   float64 `json:"temperature"`
	Name          string  `json:"name"`
}

type systemOut struct {
	UptimeHours   int    `json:"uptime_hours"`
	UptimeMinutes int    `json:"uptime_minutes"`
	Platform      string `json:"platform"`
}

type audioOut struct {
	Available bool    `json:"available"`
	Device    string  `json:"device"`
	Volume    float64 `json:"volume"`
	Muted     bool    `json:"muted"`
}

type recordOut struct {
	CPU       cpuOut     `json:"cpu"`
	Memory    memoryOut  `json:"memory"`
	Disk      diskOut    `json:"disk"`
	Network   networkOut `json:"network"`
	GPU       gpuOut     `json:"gpu"`
	System    systemOut  `json:"system"`
	Audio     audioOut   `json:"audio"`
	Timestamp string     `json:"timestamp"`
}

// Encode renders s as one record including the trailing delimiter.
// The snapshot is sanitized first so the output never holds non-finite numbers.
func Encode(s model.Snapshot) ([]byte, error) {
	s = s.Sanitize()
	rec := recordOut{
		CPU: cpuOut{
			Usage:                s.CPU.Usage,
			Frequency:            s.CPU.FrequencyMHz,
			Cores:                s.CPU.Cores,
			Temperature:          s.CPU.TemperatureC,
			TemperatureEstimated: s.CPU.TemperatureEstimated,
		},
		Memory: memoryOut{
			UsagePercent: s.Memory.UsagePercent,
			UsedGB:       s.Memory.UsedGB,
			TotalGB:      s.Memory.TotalGB,
		},
		Disk: diskOut{
			ReadSpeed:    s.Disk.ReadMBs,
			WriteSpeed:   s.Disk.WriteMBs,
			UsagePercent: s.Disk.UsagePercent,
		},
		Network: networkOut{
			UploadSpeed:   s.Network.UploadMBs,
			DownloadSpeed: s.Network.DownloadMBs,
		},
		GPU: gpuOut{
			Usage:         s.GPU.Usage,
			MemoryPercent: s.GPU.MemoryPercent,
			Temperature:   s.GPU.TemperatureC,
			Name:          s.GPU.Name,
		},
		System: systemOut{
			UptimeHours:   s.System.UptimeHours,
			UptimeMinutes: s.System.UptimeMinutes,
			Platform:      s.System.Platform,
		},
		Audio: audioOut{
			Available: s.Audio.Available,
			Device:    s.Audio.Device,
			Volume:    s.Audio.VolumePercent,
			Muted:     s.Audio.Muted,
		},
		Timestamp: s.Timestamp.Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(data, Delimiter), nil
}

// Inbound records decode into pointer fields so absent keys can be told
// apart from zero values.
type cpuIn struct {
	Usage                *float64 `json:"usage"`
	Frequency            *float64 `json:"frequency"`
	Cores                *int     `json:"cores"`
	Temperature          *float64 `json:"temperature"`
	TemperatureEstimated *bool    `json:"temperature_estimated"`
}

type memoryIn struct {
	UsagePercent *float64 `json:"usage_percent"`
	UsedGB       *float64 `json:"used_gb"`
	TotalGB      *float64 `json:"total_gb"`
}

type diskIn struct {
	ReadSpeed    *float64 `json:"read_speed"`
	WriteSpeed   *float64 `json:"write_speed"`
	UsagePercent *float64 `json:"usage_percent"`
}

type networkIn struct {
	UploadSpeed   *float64 `json:"upload_speed"`
	DownloadSpeed *float64 `json:"download_speed"`
}

type gpuIn struct {
	Usage         *float64 `json:"usage"`
	MemoryPercent *float64 `json:"memory_percent"`
	Temperature   *float64 `json:"temperature"`
	Name          *string  `json:"name"`
}

type systemIn struct {
	UptimeHours   *int    `json:"uptime_hours"`
	UptimeMinutes *int    `json:"uptime_minutes"`
	Platform      *string `json:"platform"`
}

type audioIn struct {
	Available *bool    `json:"available"`
	Device    *string  `json:"device"`
	Volume    *float64 `json:"volume"`
	Muted     *bool    `json:"muted"`
}

type recordIn struct {
	CPU       *cpuIn     `json:"cpu"`
	Memory    *memoryIn  `json:"memory"`
	Disk      *diskIn    `json:"disk"`
	Network   *networkIn `json:"network"`
	GPU       *gpuIn     `json:"gpu"`
	System    *systemIn  `json:"system"`
	Audio     *audioIn   `json:"audio"`
	Timestamp *string    `json:"timestamp"`
}

// Decode parses one record (with or without its delimiter). Errors wrap
// ErrMalformed or ErrSchema.
func Decode(line []byte) (model.Snapshot, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return model.Snapshot{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}
	if len(line) > MaxRecordSize {
		return model.Snapshot{}, fmt.Errorf("%w: %d bytes exceeds limit", ErrMalformed, len(line))
	}

	var rec recordIn
	if err := json.Unmarshal(line, &rec); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var missing []string
	need := func(name string, present bool) bool {
		if !present {
			missing = append(missing, name)
		}
		return present
	}

	var s model.Snapshot
	if need("cpu", rec.CPU != nil) {
		c := rec.CPU
		s.CPU.Usage = f64(need("cpu.usage", c.Usage != nil), c.Usage)
		s.CPU.FrequencyMHz = f64(need("cpu.frequency", c.Frequency != nil), c.Frequency)
		s.CPU.Cores = integer(need("cpu.cores", c.Cores != nil), c.Cores)
		s.CPU.TemperatureC = f64(need("cpu.temperature", c.Temperature != nil), c.Temperature)
		s.CPU.TemperatureEstimated = c.TemperatureEstimated != nil && *c.TemperatureEstimated
	}
	if need("memory", rec.Memory != nil) {
		m := rec.Memory
		s.Memory.UsagePercent = f64(need("memory.usage_percent", m.UsagePercent != nil), m.UsagePercent)
		s.Memory.UsedGB = f64(need("memory.used_gb", m.UsedGB != nil), m.UsedGB)
		s.Memory.TotalGB = f64(need("memory.total_gb", m.TotalGB != nil), m.TotalGB)
	}
	if need("disk", rec.Disk != nil) {
		d := rec.Disk
		s.Disk.ReadMBs = f64(need("disk.read_speed", d.ReadSpeed != nil), d.ReadSpeed)
		s.Disk.WriteMBs = f64(need("disk.write_speed", d.WriteSpeed != nil), d.WriteSpeed)
		s.Disk.UsagePercent = f64(need("disk.usage_percent", d.UsagePercent != nil), d.UsagePercent)
	}
	if need("network", rec.Network != nil) {
		n := rec.Network
		s.Network.UploadMBs = f64(need("network.upload_speed", n.UploadSpeed != nil), n.UploadSpeed)
		s.Network.DownloadMBs = f64(need("network.download_speed", n.DownloadSpeed != nil), n.DownloadSpeed)
	}
	if need("gpu", rec.GPU != nil) {
		g := rec.GPU
		s.GPU.Usage = f64(need("gpu.usage", g.Usage != nil), g.Usage)
		s.GPU.MemoryPercent = f64(need("gpu.memory_percent", g.MemoryPercent != nil), g.MemoryPercent)
		s.GPU.TemperatureC = f64(need("gpu.temperature", g.Temperature != nil), g.Temperature)
		s.GPU.Name = str(need("gpu.name", g.Name != nil), g.Name)
	}
	if need("system", rec.System != nil) {
		sys := rec.System
		s.System.UptimeHours = integer(need("system.uptime_hours", sys.UptimeHours != nil), sys.UptimeHours)
		s.System.UptimeMinutes = integer(need("system.uptime_minutes", sys.UptimeMinutes != nil), sys.UptimeMinutes)
		s.System.Platform = str(need("system.platform", sys.Platform != nil), sys.Platform)
	}
	if need("timestamp", rec.Timestamp != nil) {
		ts, err := parseTimestamp(*rec.Timestamp)
		if err != nil {
			return model.Snapshot{}, fmt.Errorf("%w: timestamp: %v", ErrSchema, err)
		}
		s.Timestamp = ts
	}
	s.Audio = decodeAudio(rec.Audio)

	if len(missing) > 0 {
		return model.Snapshot{}, fmt.Errorf("%w: missing %s", ErrSchema, strings.Join(missing, ", "))
	}
	if err := s.Validate(); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if s.GPU.Name == "" {
		s.GPU.Name = model.NotAvailable
	}
	return s, nil
}

func decodeAudio(a *audioIn) model.Audio {
	if a == nil {
		return model.NoAudio()
	}
	out := model.Audio{Device: model.NotAvailable}
	if a.Available != nil {
		out.Available = *a.Available
	}
	if a.Device != nil && *a.Device != "" {
		out.Device = *a.Device
	}
	if a.Volume != nil && !math.IsNaN(*a.Volume) {
		out.VolumePercent = model.ClampPercent(*a.Volume)
	}
	if a.Muted != nil {
		out.Muted = *a.Muted
	}
	return out
}

func parseTimestamp(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(isoLocal, v, time.Local)
}

func f64(ok bool, v *float64) float64 {
	if !ok {
		return 0
	}
	return *v
}

func integer(ok bool, v *int) int {
	if !ok {
		return 0
	}
	return *v
}

func str(ok bool, v *string) string {
	if !ok {
		return ""
	}
	return *v
}
