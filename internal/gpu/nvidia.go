package gpu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

const nvidiaQuery = "--query-gpu=name,utilization.gpu,memory.used,memory.total,temperature.gpu"

// NvidiaSMI lists NVIDIA devices through the nvidia-smi CLI.
type NvidiaSMI struct {
	Path    string
	Timeout time.Duration
	Run     probe.Runner
}

// NewNvidiaSMI returns a provider using the given binary (default "nvidia-smi").
func NewNvidiaSMI(path string) *NvidiaSMI {
	if path == "" {
		path = "nvidia-smi"
	}
	return &NvidiaSMI{Path: path, Timeout: 400 * time.Millisecond, Run: probe.Exec}
}

func (n *NvidiaSMI) Name() string { return "nvidia-smi" }

func (n *NvidiaSMI) Probe(ctx context.Context) ([]Candidate, error) {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}
	out, err := n.Run(ctx, n.Path, nvidiaQuery, "--format=csv,noheader,nounits")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, probe.ErrUnsupported
		}
		return nil, fmt.Errorf("nvidia-smi: %w", err)
	}
	cands, err := ParseNvidiaSMI(out)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, probe.ErrUnsupported
	}
	return cands, nil
}

// ParseNvidiaSMI parses one device per line of
// `name, utilization.gpu, memory.used, memory.total, temperature.gpu`.
// Fields reported as [N/A] read as zero.
func ParseNvidiaSMI(output string) ([]Candidate, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil, nil
	}
	lower := strings.ToLower(output)
	if strings.Contains(lower, "no devices") ||
		strings.Contains(lower, "has failed") ||
		strings.Contains(lower, "not found") {
		return nil, nil
	}

	var cands []Candidate
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 5 {
			return nil, fmt.Errorf("nvidia-smi output has insufficient fields: expected 5, got %d", len(parts))
		}
		util, err := parseSMIField(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse utilization %q: %w", parts[1], err)
		}
		memUsed, err := parseSMIField(parts[2])
		if err != nil {
			return nil, fmt.Errorf("parse memory used %q: %w", parts[2], err)
		}
		memTotal, err := parseSMIField(parts[3])
		if err != nil {
			return nil, fmt.Errorf("parse memory total %q: %w", parts[3], err)
		}
		temp, err := parseSMIField(parts[4])
		if err != nil {
			return nil, fmt.Errorf("parse temperature %q: %w", parts[4], err)
		}

		var memPct float64
		if memTotal > 0 {
			memPct = memUsed / memTotal * 100
		}
		cands = append(cands, Candidate{
			Name:          strings.TrimSpace(parts[0]),
			Kind:          KindDiscreteNvidia,
			Usage:         util,
			MemoryPercent: memPct,
			TemperatureC:  temp,
			Source:        "nvidia-smi",
		})
	}
	return cands, sc.Err()
}

func parseSMIField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	if s == "" || s == "[N/A]" || s == "N/A" || strings.HasPrefix(s, "[Not Supported") {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
