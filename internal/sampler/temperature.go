package sampler

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// TemperatureProvider yields the CPU temperature in °C.
type TemperatureProvider = probe.Provider[float64]

// Sensors whose names mark them as the CPU package, in preference order.
var cpuSensorHints = []string{"package", "tctl", "tdie", "x86_pkg_temp", "coretemp", "k10temp", "zenpower", "cpu"}

type sensorReading struct {
	name    string
	celsius float64
}

// pickCPUTemp prefers a sensor named like the CPU package and otherwise
// takes the hottest plausible reading.
func pickCPUTemp(readings []sensorReading) (float64, bool) {
	var valid []sensorReading
	for _, r := range readings {
		if r.celsius > 0 && r.celsius < 125 {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return 0, false
	}
	for _, hint := range cpuSensorHints {
		for _, r := range valid {
			if strings.Contains(strings.ToLower(r.name), hint) {
				return r.celsius, true
			}
		}
	}
	best := valid[0].celsius
	for _, r := range valid[1:] {
		if r.celsius > best {
			best = r.celsius
		}
	}
	return best, true
}

// Sensors reads hwmon-style sensors through gopsutil.
type Sensors struct {
	Read func(ctx context.Context) ([]host.TemperatureStat, error)
}

// NewSensors returns the gopsutil sensor provider.
func NewSensors() *Sensors {
	return &Sensors{Read: host.SensorsTemperaturesWithContext}
}

func (s *Sensors) Name() string { return "gopsutil-sensors" }

func (s *Sensors) Probe(ctx context.Context) (float64, error) {
	stats, err := s.Read(ctx)
	if len(stats) == 0 {
		if err != nil {
			return 0, err
		}
		return 0, probe.ErrUnsupported
	}
	readings := make([]sensorReading, 0, len(stats))
	for _, st := range stats {
		readings = append(readings, sensorReading{name: st.SensorKey, celsius: st.Temperature})
	}
	if t, ok := pickCPUTemp(readings); ok {
		return t, nil
	}
	return 0, probe.ErrUnsupported
}

// ThermalZones reads <root>/class/thermal/thermal_zone*/{type,temp}.
type ThermalZones struct {
	Root string
}

// NewThermalZones returns a sysfs thermal-zone provider (default root "/sys").
func NewThermalZones(root string) *ThermalZones {
	if root == "" {
		root = "/sys"
	}
	return &ThermalZones{Root: root}
}

func (z *ThermalZones) Name() string { return "sysfs-thermal" }

func (z *ThermalZones) Probe(ctx context.Context) (float64, error) {
	zones, _ := filepath.Glob(filepath.Join(z.Root, "class/thermal/thermal_zone*"))
	var readings []sensorReading
	for _, zone := range zones {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		b, err := os.ReadFile(filepath.Join(zone, "temp"))
		if err != nil {
			continue
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
		if err != nil {
			continue
		}
		name := filepath.Base(zone)
		if t, err := os.ReadFile(filepath.Join(zone, "type")); err == nil {
			name = strings.TrimSpace(string(t))
		}
		readings = append(readings, sensorReading{name: name, celsius: milli / 1000})
	}
	if t, ok := pickCPUTemp(readings); ok {
		return t, nil
	}
	return 0, probe.ErrUnsupported
}

// EstimateTemperature approximates a CPU temperature from usage when no
// sensor answers: 35 °C idle rising linearly to 65 °C at full load.
func EstimateTemperature(usagePercent float64) float64 {
	return 35 + usagePercent/100*30
}

// DefaultTemperatureProviders returns the sensor chain in preference order.
func DefaultTemperatureProviders(sysfsRoot string) []TemperatureProvider {
	return []TemperatureProvider{
		NewSensors(),
		NewThermalZones(sysfsRoot),
		NewWMIThermal(),
	}
}
