//go:build !windows

package gpu

import (
	"context"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// WMI is only backed on Windows.
type WMI struct{}

// NewWMI returns a provider that always reports unsupported off Windows.
func NewWMI() *WMI { return &WMI{} }

func (w *WMI) Name() string { return "wmi" }

func (w *WMI) Probe(context.Context) ([]Candidate, error) { return nil, probe.ErrUnsupported }
