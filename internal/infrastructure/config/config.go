package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// Config is the root configuration for the KNX device test harness.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Harness   HarnessConfig   `yaml:"harness"`
	Bus       BusConfig       `yaml:"bus"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Logging   LoggingConfig   `yaml:"logging"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Devices   []DeviceConfig  `yaml:"devices"`
	TypeMap   TypeMapConfig   `yaml:"type_map"`
}

// HarnessConfig contains test run settings.
type HarnessConfig struct {
	// Name labels the run in reports and logs.
	Name string `yaml:"name"`

	// Timeout bounds every wait for device feedback.
	// Default: 2s
	Timeout time.Duration `yaml:"timeout"`

	// Cases restricts the run to the named cases. Empty runs everything.
	Cases []string `yaml:"cases"`

	// StopOnFailure aborts the suite after the first failing case.
	StopOnFailure bool `yaml:"stop_on_failure"`
}

// Bus types.
const (
	BusMemory = "memory"
	BusMQTT   = "mqtt"
)

// BusConfig selects how devices and the harness exchange group values.
type BusConfig struct {
	// Type is "memory" (in-process) or "mqtt".
	Type string `yaml:"type"`

	// TopicPrefix is the MQTT topic prefix for group values.
	// Default: "knxtest/bus"
	TopicPrefix string `yaml:"topic_prefix"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig     `yaml:"broker"`
	Auth      MQTTAuthConfig       `yaml:"auth"`
	QoS       int                  `yaml:"qos"`
	Reconnect MQTTReconnectConfig  `yaml:"reconnect"`
	Embedded  EmbeddedBrokerConfig `yaml:"embedded"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	// Password is never logged; use String() or JSON for safe output.
	Password string `yaml:"password"`
}

// String returns the credentials with the password masked.
func (a MQTTAuthConfig) String() string {
	password := ""
	if a.Password != "" {
		password = "[REDACTED]"
	}
	return fmt.Sprintf("MQTTAuthConfig{Username:%q, Password:%s}", a.Username, password)
}

// MarshalJSON redacts the password.
func (a MQTTAuthConfig) MarshalJSON() ([]byte, error) {
	type redacted MQTTAuthConfig
	safe := redacted(a)
	if safe.Password != "" {
		safe.Password = "[REDACTED]"
	}
	return json.Marshal(safe)
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// EmbeddedBrokerConfig starts an in-process broker for self-contained runs.
type EmbeddedBrokerConfig struct {
	Enabled bool `yaml:"enabled"`

	// Address is the TCP listen address, e.g. "127.0.0.1:1883".
	// Default: broker host and port.
	Address string `yaml:"address"`
}

// APIConfig contains the monitor HTTP server settings.
type APIConfig struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig contains HTTP timeout settings (in seconds).
type TimeoutsConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains telegram stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"` // bytes
	PingInterval   int `yaml:"ping_interval"`    // seconds
	PongTimeout    int `yaml:"pong_timeout"`     // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file log settings, used when
// output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // files
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`
}

// DeviceConfig defines a simulated device and its group address bindings.
type DeviceConfig struct {
	// ID uniquely identifies the device in reports and case names.
	ID string `yaml:"id"`

	// Type is one of: switch, dimmer, shutter.
	Type string `yaml:"type"`

	// Name is a human-readable label (optional).
	Name string `yaml:"name"`

	// Addresses maps function names (see knx.CanonicalFunctions) to group
	// address bindings.
	Addresses map[string]AddressConfig `yaml:"addresses"`

	// Shutter holds shutter-only behaviour settings.
	Shutter ShutterConfig `yaml:"shutter"`
}

// AddressConfig binds one function to a group address.
type AddressConfig struct {
	// GA is the group address in 3-level format (e.g., "2/1/17").
	GA string `yaml:"ga"`

	// DPT overrides the function's default datapoint type.
	DPT string `yaml:"dpt"`

	// Flags: read, write, transmit. Defaults to the function's flags.
	Flags []string `yaml:"flags"`
}

// ShutterConfig contains shutter motion and sun protection settings.
type ShutterConfig struct {
	// TravelTime is the time for a full 0→100% run. Zero moves instantly.
	TravelTime time.Duration `yaml:"travel_time"`

	// StepInterval is the motion simulation tick.
	// Default: 50ms
	StepInterval time.Duration `yaml:"step_interval"`

	SunProtection SunProtectionConfig `yaml:"sun_protection"`
}

// SunProtectionConfig defines the threshold-based sun protection.
type SunProtectionConfig struct {
	// Enabled is the initial state of the automatic.
	Enabled bool `yaml:"enabled"`

	// UpperThreshold (lux): brightness above it engages protection.
	UpperThreshold float64 `yaml:"upper_threshold"`

	// LowerThreshold (lux): brightness below it releases protection.
	LowerThreshold float64 `yaml:"lower_threshold"`

	// Position (%) the shutter drives to while protecting.
	Position float64 `yaml:"position"`

	// Slat (%) applied while protecting.
	Slat float64 `yaml:"slat"`
}

// TypeMapConfig overrides the address-to-function table used for typed
// decoding. Empty Rules keeps the built-in table.
type TypeMapConfig struct {
	Rules    []TypeRuleConfig `yaml:"rules"`
	Fallback string           `yaml:"fallback"`
}

// TypeRuleConfig is one address pattern. Omitted levels match anything.
type TypeRuleConfig struct {
	Main     *uint8 `yaml:"main"`
	Middle   *uint8 `yaml:"middle"`
	Sub      *uint8 `yaml:"sub"`
	Function string `yaml:"function"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KNXTEST_SECTION_KEY
// For example: KNXTEST_BUS_TYPE, KNXTEST_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyAddressDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Harness: HarnessConfig{
			Name:    "knxtest",
			Timeout: 2 * time.Second,
		},
		Bus: BusConfig{
			Type:        BusMemory,
			TopicPrefix: "knxtest/bus",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "knxtest",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: TimeoutsConfig{
				Read:  10,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File: FileLoggingConfig{
				MaxSize:    10,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KNXTEST_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Bus
	if v := os.Getenv("KNXTEST_BUS_TYPE"); v != "" {
		cfg.Bus.Type = v
	}

	// MQTT
	if v := os.Getenv("KNXTEST_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("KNXTEST_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("KNXTEST_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("KNXTEST_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("KNXTEST_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Logging
	if v := os.Getenv("KNXTEST_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyAddressDefaults normalises function names and fills in DPTs and
// flags from the canonical function table.
func (c *Config) applyAddressDefaults() {
	for i := range c.Devices {
		dev := &c.Devices[i]
		normalised := make(map[string]AddressConfig, len(dev.Addresses))
		for name, addr := range dev.Addresses {
			canonical, _ := knx.NormalizeFunction(name)
			if addr.DPT == "" {
				addr.DPT = string(knx.DefaultDPTForFunction(canonical))
			}
			if len(addr.Flags) == 0 {
				addr.Flags = append([]string(nil), knx.DefaultFlagsForFunction(canonical)...)
			}
			normalised[canonical] = addr
		}
		dev.Addresses = normalised
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of all validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	errs = append(errs, c.validateHarness()...)
	errs = append(errs, c.validateBus()...)
	errs = append(errs, c.validateMQTT()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateDevices()...)
	errs = append(errs, c.validateTypeMap()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateHarness() []string {
	var errs []string
	if c.Harness.Timeout <= 0 {
		errs = append(errs, "harness.timeout must be positive")
	}
	return errs
}

func (c *Config) validateBus() []string {
	var errs []string
	switch c.Bus.Type {
	case BusMemory:
	case BusMQTT:
		if c.Bus.TopicPrefix == "" {
			errs = append(errs, "bus.topic_prefix is required for the mqtt bus")
		}
	default:
		errs = append(errs, fmt.Sprintf("bus.type %q is invalid (use memory or mqtt)", c.Bus.Type))
	}
	return errs
}

func (c *Config) validateMQTT() []string {
	var errs []string
	if c.Bus.Type != BusMQTT {
		return errs
	}
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	return errs
}

func (c *Config) validateLogging() []string {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level %q is invalid (use debug, info, warn, or error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format %q is invalid (use json or text)", c.Logging.Format))
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		errs = append(errs, fmt.Sprintf("logging.output %q is invalid (use stdout, stderr, or file)", c.Logging.Output))
	}

	if c.Logging.Output == "file" && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when output is file")
	}

	return errs
}

func (c *Config) validateAPI() []string {
	var errs []string
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.PongTimeout <= 0 {
		errs = append(errs, "websocket.ping_interval and pong_timeout must be positive")
	}
	return errs
}

// Device types accepted in DeviceConfig.Type.
var validDeviceTypes = map[string]bool{"switch": true, "dimmer": true, "shutter": true}

func (c *Config) validateDevices() []string {
	var errs []string
	seen := make(map[string]bool)

	for i, dev := range c.Devices {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].id is required", i))
			continue
		}
		if seen[dev.ID] {
			errs = append(errs, fmt.Sprintf("devices[%d].id %q is duplicate", i, dev.ID))
		}
		seen[dev.ID] = true

		if !validDeviceTypes[dev.Type] {
			errs = append(errs, fmt.Sprintf("devices[%d].type %q is invalid (use switch, dimmer, or shutter)", i, dev.Type))
		}
		if len(dev.Addresses) == 0 {
			errs = append(errs, fmt.Sprintf("devices[%d].addresses must have at least one entry", i))
		}

		errs = append(errs, validateDeviceAddresses(i, dev.Addresses)...)

		if dev.Type == "shutter" {
			errs = append(errs, validateShutter(i, dev.Shutter)...)
		}
	}

	return errs
}

func validateDeviceAddresses(deviceIdx int, addresses map[string]AddressConfig) []string {
	var errs []string

	for name, addr := range addresses {
		if knx.LookupFunction(name) == nil {
			errs = append(errs, fmt.Sprintf("devices[%d].addresses.%s is not a known function", deviceIdx, name))
		}

		if addr.GA == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].addresses.%s.ga is required", deviceIdx, name))
		} else if _, err := knx.ParseGroupAddress(addr.GA); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d].addresses.%s.ga %q is invalid: %v", deviceIdx, name, addr.GA, err))
		}

		if addr.DPT == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].addresses.%s.dpt is required", deviceIdx, name))
		} else if _, err := knx.DPT(addr.DPT).Main(); err != nil {
			errs = append(errs, fmt.Sprintf("devices[%d].addresses.%s.dpt %q is invalid", deviceIdx, name, addr.DPT))
		}

		for _, flag := range addr.Flags {
			if flag != "read" && flag != "write" && flag != "transmit" {
				errs = append(errs, fmt.Sprintf("devices[%d].addresses.%s.flags contains invalid value %q", deviceIdx, name, flag))
			}
		}
	}

	return errs
}

func validateShutter(deviceIdx int, s ShutterConfig) []string {
	var errs []string
	if s.TravelTime < 0 {
		errs = append(errs, fmt.Sprintf("devices[%d].shutter.travel_time must not be negative", deviceIdx))
	}
	sp := s.SunProtection
	if sp.UpperThreshold == 0 && sp.LowerThreshold == 0 {
		return errs
	}
	if sp.LowerThreshold >= sp.UpperThreshold {
		errs = append(errs, fmt.Sprintf("devices[%d].shutter.sun_protection.lower_threshold must be below upper_threshold", deviceIdx))
	}
	if sp.Position < 0 || sp.Position > 100 {
		errs = append(errs, fmt.Sprintf("devices[%d].shutter.sun_protection.position must be 0-100", deviceIdx))
	}
	if sp.Slat < 0 || sp.Slat > 100 {
		errs = append(errs, fmt.Sprintf("devices[%d].shutter.sun_protection.slat must be 0-100", deviceIdx))
	}
	return errs
}

func (c *Config) validateTypeMap() []string {
	if len(c.TypeMap.Rules) == 0 && c.TypeMap.Fallback == "" {
		return nil
	}
	if err := c.KNXTypeMap().Validate(); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// KNXTypeMap returns the address type map: the configured rules, or the
// built-in table when none are configured.
func (c *Config) KNXTypeMap() knx.TypeMap {
	m := knx.DefaultTypeMap()
	if len(c.TypeMap.Rules) > 0 {
		m.Rules = make([]knx.TypeRule, 0, len(c.TypeMap.Rules))
		for _, r := range c.TypeMap.Rules {
			m.Rules = append(m.Rules, knx.TypeRule{
				Main:     r.Main,
				Middle:   r.Middle,
				Sub:      r.Sub,
				Function: r.Function,
			})
		}
	}
	if c.TypeMap.Fallback != "" {
		m.Fallback = c.TypeMap.Fallback
	}
	return m
}

// BrokerURL returns the paho broker URL, e.g. "tcp://localhost:1883".
func (c *Config) BrokerURL() string {
	scheme := "tcp"
	if c.MQTT.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}

// EmbeddedBrokerAddress returns the listen address for the embedded broker.
func (c *Config) EmbeddedBrokerAddress() string {
	if c.MQTT.Embedded.Address != "" {
		return c.MQTT.Embedded.Address
	}
	return fmt.Sprintf("%s:%d", c.MQTT.Broker.Host, c.MQTT.Broker.Port)
}

// Device returns the device with the given ID.
func (c *Config) Device(id string) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

// HasFlag checks if an AddressConfig has a specific flag.
func (a AddressConfig) HasFlag(flag string) bool {
	for _, f := range a.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
