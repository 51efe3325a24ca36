// Package config loads the station configuration: embedded defaults, an
// optional YAML override file, then environment variables.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"meteostation/errcode"
)

//go:embed default.yaml
var defaultYAML []byte

type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	Station   Station   `yaml:"station"`
	Pins      Pins      `yaml:"pins"`
	Capture   Capture   `yaml:"capture"`
	Sensors   Sensors   `yaml:"sensors"`
	Uplink    Uplink    `yaml:"uplink"`
	MQTT      MQTT      `yaml:"mqtt"`
	Heartbeat Heartbeat `yaml:"heartbeat"`
}

type Station struct {
	// ChipID overrides the identity read from hardware.
	ChipID   string        `yaml:"chip_id"`
	SSID     string        `yaml:"ssid"`
	LockWait time.Duration `yaml:"lock_wait"`
}

// Pins uses the board's GP numbering.
type Pins struct {
	I2CSDA     int    `yaml:"i2c_sda"`
	I2CSCL     int    `yaml:"i2c_scl"`
	I2CFreqKHz uint32 `yaml:"i2c_khz"`
	Rain       int    `yaml:"rain"`
	Wind       int    `yaml:"wind"`
	VaneADC    int    `yaml:"vane_adc"`
	DustLED    int    `yaml:"dust_led"`
	DustADC    int    `yaml:"dust_adc"`
}

type Pulse struct {
	Debounce time.Duration `yaml:"debounce"`
	Window   time.Duration `yaml:"window"`
	Scale    float64       `yaml:"scale"`
	QueueLen int           `yaml:"queue_len"`
	Edge     string        `yaml:"edge"`
	Pull     string        `yaml:"pull"`
}

type Capture struct {
	Rain Pulse `yaml:"rain"`
	Wind Pulse `yaml:"wind"`
}

type Sensors struct {
	Period            time.Duration `yaml:"period"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	PressureUnit      string        `yaml:"pressure_unit"`
	SeaLevelHPa       float64       `yaml:"sea_level_hpa"`
	VaneOffsetDeg     float64       `yaml:"vane_offset_deg"`
	VaneSamples       int           `yaml:"vane_samples"`
	DustPulses        int           `yaml:"dust_pulses"`
	DustPulseInterval time.Duration `yaml:"dust_pulse_interval"`
}

type Uplink struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	Secret      string        `yaml:"secret"`
	Period      time.Duration `yaml:"period"`
	StartDelay  time.Duration `yaml:"start_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	InsecureTLS bool          `yaml:"insecure_tls"`
}

type MQTT struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type Heartbeat struct {
	Interval time.Duration `yaml:"interval"`
}

// Default decodes the embedded defaults.
func Default() (Config, error) {
	var c Config
	if err := decode(defaultYAML, &c); err != nil {
		return Config{}, fmt.Errorf("embedded defaults: %w", err)
	}
	return c, nil
}

func decode(b []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// Load layers path (if non-empty) and the environment over the defaults and
// validates the result.
func Load(path string) (Config, error) {
	c, err := Default()
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config file %q: %w", path, err)
		}
		if err := decode(b, &c); err != nil {
			return Config{}, fmt.Errorf("config file %q: %w", path, err)
		}
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// envOverrides maps environment variables onto string settings.
func (c *Config) envOverrides() map[string]*string {
	return map[string]*string{
		"APP_ENV":         &c.AppEnv,
		"LOG_LEVEL":       &c.LogLevel,
		"STATION_CHIP_ID": &c.Station.ChipID,
		"STATION_SSID":    &c.Station.SSID,
		"UPLINK_BASE_URL": &c.Uplink.BaseURL,
		"UPLINK_SECRET":   &c.Uplink.Secret,
		"MQTT_BROKER":     &c.MQTT.Broker,
	}
}

func (c *Config) applyEnv() {
	for k, dst := range c.envOverrides() {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			*dst = v
		}
	}
}

func invalid(format string, args ...any) error {
	return &errcode.E{C: errcode.InvalidConfig, Op: "config", Msg: fmt.Sprintf(format, args...)}
}

// Validate rejects settings the station cannot run with.
func (c *Config) Validate() error {
	switch c.AppEnv {
	case "dev", "prod":
	default:
		return invalid("invalid APP_ENV %q (allowed: dev, prod)", c.AppEnv)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for name, d := range map[string]time.Duration{
		"station.lock_wait":    c.Station.LockWait,
		"capture.rain.window":  c.Capture.Rain.Window,
		"capture.wind.window":  c.Capture.Wind.Window,
		"sensors.period":       c.Sensors.Period,
		"sensors.read_timeout": c.Sensors.ReadTimeout,
		"uplink.period":        c.Uplink.Period,
		"uplink.timeout":       c.Uplink.Timeout,
		"heartbeat.interval":   c.Heartbeat.Interval,
	} {
		if d <= 0 {
			return invalid("%s must be positive, got %v", name, d)
		}
	}
	for name, p := range map[string]Pulse{"rain": c.Capture.Rain, "wind": c.Capture.Wind} {
		if p.Debounce < 0 {
			return invalid("capture.%s.debounce must not be negative", name)
		}
		if p.QueueLen < 10 {
			return invalid("capture.%s.queue_len must be at least 10, got %d", name, p.QueueLen)
		}
		if p.Scale <= 0 {
			return invalid("capture.%s.scale must be positive", name)
		}
		switch p.Edge {
		case "rising", "falling", "both":
		default:
			return invalid("capture.%s.edge %q (allowed: rising, falling, both)", name, p.Edge)
		}
		switch p.Pull {
		case "", "none", "up", "down":
		default:
			return invalid("capture.%s.pull %q (allowed: none, up, down)", name, p.Pull)
		}
	}
	switch c.Sensors.PressureUnit {
	case "hPa", "mmHg":
	default:
		return invalid("sensors.pressure_unit %q (allowed: hPa, mmHg)", c.Sensors.PressureUnit)
	}
	if c.Uplink.StartDelay < 0 {
		return invalid("uplink.start_delay must not be negative")
	}
	if c.Uplink.Enabled {
		if c.Uplink.Secret == "" {
			return invalid("uplink.secret is required")
		}
		if c.Uplink.BaseURL == "" {
			return invalid("uplink.base_url is required")
		}
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, invalid("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
