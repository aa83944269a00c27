package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Dicklesworthstone/telelink/internal/errors"
	"github.com/Dicklesworthstone/telelink/internal/logging"
)

const (
	// EnvPrefix namespaces environment overrides, e.g. TELELINK_TARGET.
	EnvPrefix = "TELELINK"
	// GlobalConfigDir is the per-user config directory under $HOME.
	GlobalConfigDir = ".config/telelink"
	// GlobalConfigFile is the config file name inside GlobalConfigDir.
	GlobalConfigFile = "config.yaml"
)

// Config carries runtime options for every subcommand.
type Config struct {
	Target string `yaml:"target" mapstructure:"target"`
	Port   int    `yaml:"port" mapstructure:"port"`
	Listen string `yaml:"listen" mapstructure:"listen"`

	Interval     time.Duration `yaml:"interval" mapstructure:"interval"`
	RetryDelay   time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`

	RenderInterval time.Duration `yaml:"render_interval" mapstructure:"render_interval"`
	FreshAfter     time.Duration `yaml:"fresh_after" mapstructure:"fresh_after"`
	OfflineAfter   time.Duration `yaml:"offline_after" mapstructure:"offline_after"`
	History        int           `yaml:"history" mapstructure:"history"`

	DiskPath string      `yaml:"disk_path" mapstructure:"disk_path"`
	GPU      GPUConfig   `yaml:"gpu" mapstructure:"gpu"`
	Audio    AudioConfig `yaml:"audio" mapstructure:"audio"`

	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
	LogFile     string `yaml:"log_file" mapstructure:"log_file"`
}

// GPUConfig controls device enumeration.
type GPUConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	NvidiaSMI string `yaml:"nvidia_smi" mapstructure:"nvidia_smi"`
	SysfsRoot string `yaml:"sysfs_root" mapstructure:"sysfs_root"`
}

// AudioConfig controls audio probing.
type AudioConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

func Default() Config {
	disk := "/"
	if runtime.GOOS == "windows" {
		disk = `C:\`
	}
	return Config{
		Target:         "192.168.1.100",
		Port:           8080,
		Listen:         "",
		Interval:       2 * time.Second,
		RetryDelay:     5 * time.Second,
		DialTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		ReadTimeout:    time.Second,
		RenderInterval: 250 * time.Millisecond,
		FreshAfter:     5 * time.Second,
		OfflineAfter:   15 * time.Second,
		History:        60,
		DiskPath:       disk,
		GPU: GPUConfig{
			Enabled:   true,
			NvidiaSMI: "nvidia-smi",
			SysfsRoot: "/sys",
		},
		Audio:    AudioConfig{Enabled: true},
		LogLevel: "INFO",
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"target":          "target",
	"port":            "port",
	"listen":          "listen",
	"interval":        "interval",
	"retry-delay":     "retry_delay",
	"render-interval": "render_interval",
	"history":         "history",
	"disk-path":       "disk_path",
	"gpu":             "gpu.enabled",
	"audio":           "audio.enabled",
	"metrics-addr":    "metrics_addr",
	"log-level":       "log_level",
	"log-file":        "log_file",
}

// RegisterFlags adds the overridable settings to fs with their defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("target", d.Target, "receiver host to send to")
	fs.Int("port", d.Port, "TCP port")
	fs.String("listen", d.Listen, "receiver bind host (empty for all interfaces)")
	fs.Duration("interval", d.Interval, "collection interval")
	fs.Duration("retry-delay", d.RetryDelay, "wait between reconnect attempts")
	fs.Duration("render-interval", d.RenderInterval, "display refresh interval")
	fs.Int("history", d.History, "sparkline points kept per metric")
	fs.String("disk-path", d.DiskPath, "mount whose usage is reported")
	fs.Bool("gpu", d.GPU.Enabled, "enable GPU enumeration")
	fs.Bool("audio", d.Audio.Enabled, "enable audio probing")
	fs.String("metrics-addr", d.MetricsAddr, "serve Prometheus metrics on this address")
	fs.String("log-level", d.LogLevel, "DEBUG, INFO, WARN or ERROR")
	fs.String("log-file", d.LogFile, "write logs to this file")
}

// Load merges defaults, the YAML file, TELELINK_* environment variables and
// changed flags, in increasing priority. An empty path falls back to the
// per-user config file when it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = globalPath()
	} else if _, err := os.Stat(path); err != nil {
		return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Config file not found: "+path,
			"Check the path passed to --config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file is valid YAML: "+path)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, errors.WrapWithCode(err, errors.ErrConfig, "Cannot bind flag --"+name, "")
				}
			}
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Durations take units, e.g. interval: 2s")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("target", d.Target)
	v.SetDefault("port", d.Port)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("dial_timeout", d.DialTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("read_timeout", d.ReadTimeout)
	v.SetDefault("render_interval", d.RenderInterval)
	v.SetDefault("fresh_after", d.FreshAfter)
	v.SetDefault("offline_after", d.OfflineAfter)
	v.SetDefault("history", d.History)
	v.SetDefault("disk_path", d.DiskPath)
	v.SetDefault("gpu.enabled", d.GPU.Enabled)
	v.SetDefault("gpu.nvidia_smi", d.GPU.NvidiaSMI)
	v.SetDefault("gpu.sysfs_root", d.GPU.SysfsRoot)
	v.SetDefault("audio.enabled", d.Audio.Enabled)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
}

func globalPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	p := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	invalid := func(msg, suggestion string) error {
		return errors.New(errors.ErrConfig, msg, suggestion)
	}
	switch {
	case c.Port < 1 || c.Port > 65535:
		return invalid(fmt.Sprintf("port %d is out of range", c.Port), "Use a TCP port between 1 and 65535")
	case c.Interval <= 0:
		return invalid("interval must be positive", "Set interval to a duration such as 2s")
	case c.RenderInterval <= 0:
		return invalid("render_interval must be positive", "Set render_interval to a duration such as 250ms")
	case c.RetryDelay < 0:
		return invalid("retry_delay cannot be negative", "")
	case c.ReadTimeout <= 0:
		return invalid("read_timeout must be positive", "It bounds how long shutdown waits on a silent sender")
	case c.FreshAfter <= 0 || c.OfflineAfter <= c.FreshAfter:
		return invalid("fresh_after must be positive and below offline_after",
			fmt.Sprintf("Got fresh_after=%s offline_after=%s", c.FreshAfter, c.OfflineAfter))
	case c.History < 0:
		return invalid("history cannot be negative", "")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid log_level", "Use DEBUG, INFO, WARN or ERROR")
	}
	return nil
}

// TargetAddr is the host:port the sender dials.
func (c Config) TargetAddr() string {
	return net.JoinHostPort(c.Target, strconv.Itoa(c.Port))
}

// ListenAddr is the host:port the receiver binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Listen, strconv.Itoa(c.Port))
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
