//go:build windows

package gpu

import (
	"context"
	"strings"

	"github.com/yusufpapurcu/wmi"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// Win32_VideoController maps the WMI class; field names match WMI properties.
type Win32_VideoController struct {
	Name       string
	AdapterRAM uint32
}

// WMI lists display adapters known to Windows. It only yields names and
// kinds; utilisation is left at zero.
type WMI struct{}

// NewWMI returns the Windows display-adapter provider.
func NewWMI() *WMI { return &WMI{} }

func (w *WMI) Name() string { return "wmi" }

func (w *WMI) Probe(ctx context.Context) ([]Candidate, error) {
	var dst []Win32_VideoController
	if err := wmi.Query(wmi.CreateQuery(&dst, ""), &dst); err != nil {
		return nil, probe.ErrUnsupported
	}
	var cands []Candidate
	for _, v := range dst {
		name := strings.TrimSpace(v.Name)
		if name == "" || strings.Contains(name, "Microsoft") || strings.Contains(name, "Basic") {
			continue
		}
		cands = append(cands, Candidate{
			Name:   name,
			Kind:   ClassifyName(name, float64(v.AdapterRAM)/(1024*1024)),
			Source: w.Name(),
		})
	}
	if len(cands) == 0 {
		return nil, probe.ErrUnsupported
	}
	return cands, nil
}
