// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Serial          SerialConfig   `yaml:"serial"`
	LEDs            LEDConfig      `yaml:"leds"`
	Server          ServerConfig   `yaml:"server"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// SerialConfig contains the serial link settings
type SerialConfig struct {
	Device       string   `yaml:"device"`
	Baud         int      `yaml:"baud"`
	WriteTimeout Duration `yaml:"write_timeout"` // Watchdog for a single frame write
	Autodetect   bool     `yaml:"autodetect"`    // Scan for a ttyACM/usbserial device at startup
}

// LEDConfig describes the wired LED groups and the encoding profile
type LEDConfig struct {
	// Groups lists the group names in hardware wiring order. Their count is
	// the number of groups on the wire.
	Groups       []string `yaml:"groups"`
	Profile      string   `yaml:"profile"`
	RateLimitFPS float64  `yaml:"rate_limit_fps"` // Max frames per second on the serial link
}

// ServerConfig contains HTTP API server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains preset database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills in the defaults of the original pixelbar deployment.
func (c *Config) ApplyDefaults() {
	// Serial defaults
	if c.Serial.Device == "" {
		c.Serial.Device = "/dev/tty.usbserial"
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 9600
	}
	if c.Serial.WriteTimeout == 0 {
		c.Serial.WriteTimeout = Duration(1 * time.Second)
	}

	// LED defaults: the wiring order is fixed by the controller board
	if len(c.LEDs.Groups) == 0 {
		c.LEDs.Groups = []string{"beamer", "door", "stairs", "kitchen"}
	}
	if c.LEDs.Profile == "" {
		c.LEDs.Profile = "pixelbar-corrected"
	}
	if c.LEDs.RateLimitFPS == 0 {
		c.LEDs.RateLimitFPS = 10.0
	}

	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 1234
	}

	if c.Database.Path == "" {
		c.Database.Path = "./ledcontrol.sqlite"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate rejects configurations that cannot drive the hardware.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.LEDs.Groups))
	for _, name := range c.LEDs.Groups {
		if name == "" {
			return fmt.Errorf("leds.groups contains an empty group name")
		}
		if seen[name] {
			return fmt.Errorf("leds.groups contains duplicate group name %q", name)
		}
		seen[name] = true
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
