package gpu

// Options selects the default providers.
type Options struct {
	NvidiaSMI string
	SysfsRoot string
}

// DefaultProviders returns the vendor-specific providers first, then the
// generic ones: nvidia-smi, DRM sysfs, WMI.
func DefaultProviders(opts Options) []Provider {
	return []Provider{
		NewNvidiaSMI(opts.NvidiaSMI),
		NewDRM(opts.SysfsRoot),
		NewWMI(),
	}
}
