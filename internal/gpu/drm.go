package gpu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/Dicklesworthstone/telelink/internal/probe"
)

const drmClassPath = "class/drm"

// DRM lists cards exposed under <root>/class/drm. It reads utilisation,
// VRAM and hwmon temperature where the kernel driver provides them
// (amdgpu does, i915 and the proprietary NVIDIA driver mostly do not).
type DRM struct {
	Root string
	// Lookup resolves product names; defaults to LookupPCIName.
	Lookup func(PCIAddress) string
}

// NewDRM returns a provider rooted at the given sysfs mount (default "/sys").
func NewDRM(root string) *DRM {
	if root == "" {
		root = "/sys"
	}
	return &DRM{Root: root, Lookup: LookupPCIName}
}

func (d *DRM) Name() string { return "drm-sysfs" }

func (d *DRM) Probe(ctx context.Context) ([]Candidate, error) {
	sysRoot, err := os.OpenRoot(d.Root)
	if err != nil {
		return nil, probe.ErrUnsupported
	}
	defer sysRoot.Close()

	entries, err := fs.ReadDir(sysRoot.FS(), drmClassPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, probe.ErrUnsupported
		}
		return nil, fmt.Errorf("read drm class dir: %w", err)
	}

	var cands []Candidate
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "card") || strings.ContainsRune(name, '-') || !allDigits(name[4:]) {
			continue
		}
		cand, err := d.readCard(sysRoot, filepath.Join(drmClassPath, name, "device"))
		if err != nil {
			continue
		}
		cands = append(cands, cand)
	}
	if len(cands) == 0 {
		return nil, probe.ErrUnsupported
	}
	return cands, nil
}

func (d *DRM) readCard(sysRoot *os.Root, devicePath string) (Candidate, error) {
	dev, err := sysRoot.OpenRoot(devicePath)
	if err != nil {
		return Candidate{}, err
	}
	defer dev.Close()

	var pciID, subsys, driver string
	if data, err := dev.ReadFile("uevent"); err == nil {
		text := string(data)
		pciID = parseKeyValue(text, "PCI_ID")
		subsys = parseKeyValue(text, "PCI_SUBSYS_ID")
		driver = parseKeyValue(text, "DRIVER")
	}
	if pciID == "" {
		vendor, verr := readTrim(dev, "vendor")
		device, derr := readTrim(dev, "device")
		if verr == nil && derr == nil {
			pciID = vendor + ":" + device
		}
	}
	addr := ParsePCIAddress(pciID, subsys)
	if addr.Vendor == "" || addr.Device == "" {
		return Candidate{}, fmt.Errorf("%s: no pci identity", devicePath)
	}

	name, _ := readTrim(dev, "product_name")
	if isGenericName(name) && d.Lookup != nil {
		if resolved := d.Lookup(addr); resolved != "" {
			name = resolved
		}
	}
	if name == "" {
		name = driver
	}

	cand := Candidate{Name: name, Source: d.Name()}
	if v, ok := readFloat(dev, "gpu_busy_percent"); ok {
		cand.Usage = v
	}
	vramUsed, usedOK := readFloat(dev, "mem_info_vram_used")
	vramTotal, totalOK := readFloat(dev, "mem_info_vram_total")
	if usedOK && totalOK && vramTotal > 0 {
		cand.MemoryPercent = vramUsed / vramTotal * 100
	}
	if t, ok := readHwmonTemp(dev); ok {
		cand.TemperatureC = t
	}
	cand.Kind = classifyVendor(addr.Vendor, name, vramTotal/(1024*1024))
	return cand, nil
}

func readHwmonTemp(dev *os.Root) (float64, bool) {
	entries, err := fs.ReadDir(dev.FS(), "hwmon")
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "hwmon") {
			continue
		}
		if v, ok := readFloat(dev, filepath.Join("hwmon", e.Name(), "temp1_input")); ok {
			return v / 1000, true
		}
	}
	return 0, false
}

func readFloat(root *os.Root, name string) (float64, bool) {
	s, err := readTrim(root, name)
	if err != nil || s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func parseKeyValue(data, key string) string {
	prefix := key + "="
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

func allDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
