package gpu

import (
	"strings"
	"sync"

	"github.com/jaypipes/pcidb"
)

// PCIAddress is a card's PCI identity as lowercase four-digit hex. The
// subsystem pair is set when the board vendor registered one.
type PCIAddress struct {
	Vendor    string
	Device    string
	SubVendor string
	SubDevice string
}

// ParsePCIAddress reads the PCI_ID and PCI_SUBSYS_ID forms found in sysfs
// uevent files ("1002:73BF"). Malformed halves are left empty.
func ParsePCIAddress(id, subsys string) PCIAddress {
	var a PCIAddress
	if v, d, ok := strings.Cut(id, ":"); ok {
		a.Vendor, a.Device = hexID(v), hexID(d)
	}
	if v, d, ok := strings.Cut(subsys, ":"); ok {
		a.SubVendor, a.SubDevice = hexID(v), hexID(d)
	}
	return a
}

func (a PCIAddress) String() string { return a.Vendor + ":" + a.Device }

// hexID lowercases an ID, drops any 0x prefix and left-pads it to four digits.
func hexID(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "0x")
	if s == "" || len(s) >= 4 {
		return s
	}
	return strings.Repeat("0", 4-len(s)) + s
}

// pciDatabase loads pci.ids once per process; nil when the host has none.
var pciDatabase = sync.OnceValue(func() *pcidb.PCIDB {
	db, err := pcidb.New()
	if err != nil {
		return nil
	}
	return db
})

// LookupPCIName resolves a marketing name from the host's pci.ids, preferring
// the subsystem entry. It returns "" when nothing matches.
func LookupPCIName(a PCIAddress) string {
	if a.Vendor == "" || a.Device == "" {
		return ""
	}
	db := pciDatabase()
	if db == nil {
		return ""
	}
	product := db.Products[a.Vendor+a.Device]
	if product == nil {
		return ""
	}
	if name := subsystemName(product, a); name != "" {
		return name
	}
	return product.Name
}

func subsystemName(product *pcidb.Product, a PCIAddress) string {
	if a.SubVendor == "" || a.SubDevice == "" {
		return ""
	}
	for _, sub := range product.Subsystems {
		if sub != nil && sub.VendorID == a.SubVendor && sub.ID == a.SubDevice {
			return sub.Name
		}
	}
	return ""
}

// isGenericName reports driver or placeholder strings that say nothing about
// the product.
func isGenericName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "", "amdgpu", "radeon", "i915", "xe", "nouveau", "nvidia", "unknown":
		return true
	}
	return strings.HasPrefix(lower, "pci device") || strings.HasPrefix(lower, "0x")
}
