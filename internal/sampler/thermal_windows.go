//go:build windows

package sampler

import (
	"context"

	"github.com/yusufpapurcu/wmi"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// MSAcpi_ThermalZoneTemperature maps the WMI class in root\wmi.
type MSAcpi_ThermalZoneTemperature struct {
	CurrentTemperature uint32
	InstanceName       string
}

// WMIThermal reads ACPI thermal zones through WMI. The query usually needs
// administrator rights and fails quietly otherwise.
type WMIThermal struct{}

func NewWMIThermal() *WMIThermal { return &WMIThermal{} }

func (w *WMIThermal) Name() string { return "wmi-thermal" }

func (w *WMIThermal) Probe(ctx context.Context) (float64, error) {
	var dst []MSAcpi_ThermalZoneTemperature
	q := wmi.CreateQuery(&dst, "")
	if err := wmi.QueryNamespace(q, &dst, `root\wmi`); err != nil {
		return 0, probe.ErrUnsupported
	}
	readings := make([]sensorReading, 0, len(dst))
	for _, v := range dst {
		// decikelvin
		readings = append(readings, sensorReading{
			name:    v.InstanceName,
			celsius: (float64(v.CurrentTemperature) - 2732.0) / 10.0,
		})
	}
	if t, ok := pickCPUTemp(readings); ok {
		return t, nil
	}
	return 0, probe.ErrUnsupported
}
