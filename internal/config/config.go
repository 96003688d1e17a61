package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort    = "/dev/ttyACM0"
	DefaultBaud    = 115200
	DefaultTimeout = 10 * time.Second

	// PortEnv overrides the default port.
	PortEnv = "RSHELL_PORT"
)

// DeviceConfig names a board so it can be picked by nickname.
type DeviceConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
	// Format: console or json
	Format string `yaml:"format"`
	// Outputs: stdout, stderr or file paths
	Outputs  []string       `yaml:"outputs"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig controls rotation of file outputs.
type RotationConfig struct {
	Enable     bool   `yaml:"enable"`
	Filename   string `yaml:"filename"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Port      string                  `yaml:"port"`
	Baud      int                     `yaml:"baud"`
	Timeout   time.Duration           `yaml:"timeout"`
	NoColor   bool                    `yaml:"no_color"`
	StatePath string                  `yaml:"state_path"`
	Devices   map[string]DeviceConfig `yaml:"devices"`
	Log       LogConfig               `yaml:"log"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	port := os.Getenv(PortEnv)
	if port == "" {
		port = DefaultPort
	}
	return &Config{
		Port:    port,
		Baud:    DefaultBaud,
		Timeout: DefaultTimeout,
		Log: LogConfig{
			Level:   "warn",
			Format:  "console",
			Outputs: []string{"stderr"},
		},
	}
}

// Path returns ~/.config/upyide/config.yaml.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "upyide", "config.yaml"), nil
}

// Load reads the config from the default path.
// Returns the defaults if the file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads the config at path over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	home, _ := os.UserHomeDir()
	cfg.StatePath = expandHome(cfg.StatePath, home)
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	for name, d := range cfg.Devices {
		if d.Baud == 0 {
			d.Baud = cfg.Baud
		}
		cfg.Devices[name] = d
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return cfg, nil
}

// ResolvePort turns a device nickname into its port and baud. Anything else
// is taken as a port path with the configured baud.
func (c *Config) ResolvePort(name string) (port string, baud int) {
	if d, ok := c.Devices[name]; ok && d.Port != "" {
		return d.Port, d.Baud
	}
	return name, c.Baud
}

func expandHome(p, home string) string {
	if len(p) > 0 && p[0] == '~' && home != "" {
		return filepath.Join(home, p[1:])
	}
	return p
}
