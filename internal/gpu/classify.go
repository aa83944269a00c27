package gpu

import "strings"

// PCI vendor IDs.
const (
	vendorNvidia = "10de"
	vendorIntel  = "8086"
)

// discreteVRAMMB is the VRAM size above which an unrecognised device is
// assumed to be a discrete card.
const discreteVRAMMB = 4096

var (
	nvidiaMarkers   = []string{"nvidia", "geforce", "rtx", "gtx", "quadro", "tesla"}
	discreteMarkers = []string{"radeon rx", "rx ", "radeon pro", "radeon vii", "instinct", "firepro", "arc a", "arc b", "arc(tm)"}
)

// integratedMarkers are checked before discreteMarkers. AMD APU names end in
// "Graphics"; RX Vega 56/64 cards do not.
var integratedMarkers = []string{
	"uhd graphics", "iris", "hd graphics", "radeon graphics", "radeon(tm) graphics",
	"vega 3 graphics", "vega 6 graphics", "vega 8 graphics", "vega 10 graphics", "vega 11 graphics",
	"vega mobile", "apple m",
}

// ClassifyName guesses a device kind from its marketing name, falling back
// to VRAM size when the name is not conclusive.
func ClassifyName(name string, vramMB float64) Kind {
	n := strings.ToLower(name)
	for _, m := range nvidiaMarkers {
		if strings.Contains(n, m) {
			return KindDiscreteNvidia
		}
	}
	for _, m := range integratedMarkers {
		if strings.Contains(n, m) {
			return KindIntegrated
		}
	}
	for _, m := range discreteMarkers {
		if strings.Contains(n, m) {
			return KindDiscreteOther
		}
	}
	if vramMB > discreteVRAMMB {
		return KindDiscreteOther
	}
	return KindIntegrated
}

// classifyVendor uses the PCI vendor before falling back to the name.
func classifyVendor(vendorID, name string, vramMB float64) Kind {
	switch hexID(vendorID) {
	case vendorNvidia:
		return KindDiscreteNvidia
	case vendorIntel:
		if k := ClassifyName(name, 0); k == KindDiscreteOther {
			return k
		}
		return KindIntegrated
	}
	return ClassifyName(name, vramMB)
}
