package sampler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/probe"
)

// AudioProvider describes the default output device.
type AudioProvider = probe.Provider[model.Audio]

const audioTimeout = 400 * time.Millisecond

// ALSA names the first sound card from <proc>/asound/cards and reads the
// Master control through amixer.
type ALSA struct {
	ProcRoot string
	Run      probe.Runner
}

func NewALSA(procRoot string) *ALSA {
	if procRoot == "" {
		procRoot = "/proc"
	}
	return &ALSA{ProcRoot: procRoot, Run: probe.Exec}
}

func (a *ALSA) Name() string { return "alsa" }

func (a *ALSA) Probe(ctx context.Context) (model.Audio, error) {
	data, err := os.ReadFile(filepath.Join(a.ProcRoot, "asound", "cards"))
	if err != nil {
		return model.Audio{}, probe.ErrUnsupported
	}
	device, ok := parseALSACards(string(data))
	if !ok {
		return model.Audio{}, probe.ErrUnsupported
	}
	out := model.Audio{Available: true, Device: device}

	ctx, cancel := context.WithTimeout(ctx, audioTimeout)
	defer cancel()
	mixer, err := a.Run(ctx, "amixer", "sget", "Master")
	if err != nil {
		// The card exists but has no readable mixer.
		return out, nil
	}
	if vol, muted, ok := parseAmixer(mixer); ok {
		out.VolumePercent = vol
		out.Muted = muted
	}
	return out, nil
}

// parseALSACards returns the long name of the first card, e.g. from
//
//	0 [PCH            ]: HDA-Intel - HDA Intel PCH
func parseALSACards(text string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		if i := strings.Index(line, " - "); i >= 0 {
			return strings.TrimSpace(line[i+3:]), true
		}
		if i := strings.Index(line, "]:"); i >= 0 {
			return strings.TrimSpace(line[i+2:]), true
		}
	}
	return "", false
}

var amixerLevel = regexp.MustCompile(`\[(\d+)%\](?:.*\[(on|off)\])?`)

func parseAmixer(text string) (volume float64, muted bool, ok bool) {
	m := amixerLevel.FindStringSubmatch(text)
	if m == nil {
		return 0, false, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false, false
	}
	return v, m[2] == "off", true
}

// OSAScript reads volume settings on macOS.
type OSAScript struct {
	GOOS string
	Run  probe.Runner
}

func NewOSAScript() *OSAScript {
	return &OSAScript{GOOS: runtime.GOOS, Run: probe.Exec}
}

func (o *OSAScript) Name() string { return "osascript" }

func (o *OSAScript) Probe(ctx context.Context) (model.Audio, error) {
	if o.GOOS != "darwin" {
		return model.Audio{}, probe.ErrUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, audioTimeout)
	defer cancel()
	out, err := o.Run(ctx, "osascript", "-e", "get volume settings")
	if err != nil {
		return model.Audio{}, fmt.Errorf("osascript: %w", err)
	}
	return parseVolumeSettings(out)
}

// parseVolumeSettings reads
// "output volume:50, input volume:75, alert volume:100, output muted:false".
func parseVolumeSettings(text string) (model.Audio, error) {
	out := model.Audio{Available: true, Device: "Default Output"}
	found := false
	for _, field := range strings.Split(strings.TrimSpace(text), ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			continue
		}
		switch key {
		case "output volume":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				// "missing value" on outputs without a software volume
				continue
			}
			out.VolumePercent = v
			found = true
		case "output muted":
			out.Muted = value == "true"
			found = true
		}
	}
	if !found {
		return model.Audio{}, probe.ErrUnsupported
	}
	return out, nil
}

// DefaultAudioProviders returns the audio chain in preference order.
func DefaultAudioProviders() []AudioProvider {
	return []AudioProvider{NewALSA(""), NewOSAScript()}
}
