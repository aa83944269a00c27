//go:build !windows

package sampler

import (
	"context"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// WMIThermal is only backed on Windows.
type WMIThermal struct{}

func NewWMIThermal() *WMIThermal { return &WMIThermal{} }

func (w *WMIThermal) Name() string { return "wmi-thermal" }

func (w *WMIThermal) Probe(context.Context) (float64, error) { return 0, probe.ErrUnsupported }
