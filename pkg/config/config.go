package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// ErrInvalidColor is returned when a color triple cannot be parsed
var ErrInvalidColor = errors.New("invalid color")

// Config holds the configuration for the thermolight agent.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	// Temperature sensor
	TempSensorURL      string
	SensorTimeout      time.Duration
	SensorRateLimitSec float64

	// Tuya device
	TuyaDeviceID string
	TuyaLocalKey string
	TuyaAddress  string
	TuyaVersion  string
	TuyaTimeout  time.Duration

	// Color mapping
	MinTemperature float64
	MaxTemperature float64
	ColdColor      [3]float64
	MidColor       [3]float64
	HotColor       [3]float64

	// Poll loop
	UpdateInterval         time.Duration
	MaxConsecutiveFailures int

	// Schedule window (HH:MM, "sunrise" or "sunset"; empty disables)
	OnTime    string
	OffTime   string
	Latitude  float64
	Longitude float64

	// MQTT configuration (empty broker disables MQTT)
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration (empty host disables Redis)
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
	StatusTTLSec  int

	// Service configuration
	ServiceName           string
	Location              string
	HealthPort            int
	LogLevel              string
	ManualOverrideMinutes int
	ConfigFile            string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		SensorTimeout:      10 * time.Second,
		SensorRateLimitSec: 1,
		TuyaVersion:        "3.3",
		TuyaTimeout:        5 * time.Second,
		MinTemperature:     10,
		MaxTemperature:     50,
		ColdColor:          [3]float64{0, 0, 255},
		MidColor:           [3]float64{255, 204, 0},
		HotColor:           [3]float64{255, 0, 0},
		UpdateInterval:     60 * time.Second,
		// Helsinki coordinates, only used for sunrise/sunset schedule tokens
		Latitude:              60.1695,
		Longitude:             24.9354,
		MQTTPort:              1883,
		RedisPort:             6379,
		StatusTTLSec:          300,
		ServiceName:           "thermolight-agent",
		Location:              "living_room",
		HealthPort:            8080,
		LogLevel:              "info",
		ManualOverrideMinutes: 30,
	}
}

// Load builds the configuration with hierarchy: defaults → YAML file → .env → env → flags
func Load(args []string) (*Config, error) {
	cfg := NewConfig()

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	if path := os.Getenv("JEEVES_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.LoadFromFlags(args); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment.
// Variables already present in the environment win; a missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file keyed like the environment
// (TEMP_SENSOR_URL: ..., MIN_TEMPERATURE: 10, ...)
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}

	if err := c.apply(func(key string) string { return values[key] }); err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	c.ConfigFile = path
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Unparsable values are reported, never ignored.
func (c *Config) LoadFromEnv() error {
	return c.apply(os.Getenv)
}

// apply copies every non-empty value returned by get into the config
func (c *Config) apply(get func(string) string) error {
	var err error

	// Temperature sensor
	if v := get("TEMP_SENSOR_URL"); v != "" {
		c.TempSensorURL = v
	}
	if v := get("SENSOR_TIMEOUT"); v != "" {
		if c.SensorTimeout, err = parseSeconds("SENSOR_TIMEOUT", v); err != nil {
			return err
		}
	}
	if v := get("SENSOR_RATE_LIMIT_SEC"); v != "" {
		if c.SensorRateLimitSec, err = parseFloat("SENSOR_RATE_LIMIT_SEC", v); err != nil {
			return err
		}
	}

	// Tuya device
	if v := get("TUYA_DEVICE_ID"); v != "" {
		c.TuyaDeviceID = v
	}
	if v := get("TUYA_LOCAL_KEY"); v != "" {
		c.TuyaLocalKey = v
	}
	if v := get("TUYA_ADDRESS"); v != "" {
		c.TuyaAddress = v
	}
	if v := get("TUYA_VERSION"); v != "" {
		c.TuyaVersion = v
	}
	if v := get("TUYA_TIMEOUT"); v != "" {
		if c.TuyaTimeout, err = parseSeconds("TUYA_TIMEOUT", v); err != nil {
			return err
		}
	}

	// Color mapping
	if v := get("MIN_TEMPERATURE"); v != "" {
		if c.MinTemperature, err = parseFloat("MIN_TEMPERATURE", v); err != nil {
			return err
		}
	}
	if v := get("MAX_TEMPERATURE"); v != "" {
		if c.MaxTemperature, err = parseFloat("MAX_TEMPERATURE", v); err != nil {
			return err
		}
	}
	if v := get("COLD_COLOR"); v != "" {
		if c.ColdColor, err = ParseColor(v); err != nil {
			return fmt.Errorf("COLD_COLOR: %w", err)
		}
	}
	if v := get("MID_COLOR"); v != "" {
		if c.MidColor, err = ParseColor(v); err != nil {
			return fmt.Errorf("MID_COLOR: %w", err)
		}
	}
	if v := get("HOT_COLOR"); v != "" {
		if c.HotColor, err = ParseColor(v); err != nil {
			return fmt.Errorf("HOT_COLOR: %w", err)
		}
	}

	// Poll loop
	if v := get("UPDATE_INTERVAL"); v != "" {
		if c.UpdateInterval, err = parseSeconds("UPDATE_INTERVAL", v); err != nil {
			return err
		}
	}
	if v := get("MAX_CONSECUTIVE_FAILURES"); v != "" {
		if c.MaxConsecutiveFailures, err = parseInt("MAX_CONSECUTIVE_FAILURES", v); err != nil {
			return err
		}
	}

	// Schedule window
	if v := get("ON_TIME"); v != "" {
		c.OnTime = v
	}
	if v := get("OFF_TIME"); v != "" {
		c.OffTime = v
	}
	if v := get("JEEVES_LATITUDE"); v != "" {
		if c.Latitude, err = parseFloat("JEEVES_LATITUDE", v); err != nil {
			return err
		}
	}
	if v := get("JEEVES_LONGITUDE"); v != "" {
		if c.Longitude, err = parseFloat("JEEVES_LONGITUDE", v); err != nil {
			return err
		}
	}

	// MQTT configuration
	if v := get("JEEVES_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := get("JEEVES_MQTT_PORT"); v != "" {
		if c.MQTTPort, err = parseInt("JEEVES_MQTT_PORT", v); err != nil {
			return err
		}
	}
	if v := get("JEEVES_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := get("JEEVES_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := get("JEEVES_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := get("JEEVES_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := get("JEEVES_REDIS_PORT"); v != "" {
		if c.RedisPort, err = parseInt("JEEVES_REDIS_PORT", v); err != nil {
			return err
		}
	}
	if v := get("JEEVES_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := get("JEEVES_REDIS_DB"); v != "" {
		if c.RedisDB, err = parseInt("JEEVES_REDIS_DB", v); err != nil {
			return err
		}
	}
	if v := get("STATUS_TTL_SEC"); v != "" {
		if c.StatusTTLSec, err = parseInt("STATUS_TTL_SEC", v); err != nil {
			return err
		}
	}

	// Service configuration
	if v := get("JEEVES_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := get("JEEVES_LOCATION"); v != "" {
		c.Location = v
	}
	if v := get("JEEVES_HEALTH_PORT"); v != "" {
		if c.HealthPort, err = parseInt("JEEVES_HEALTH_PORT", v); err != nil {
			return err
		}
	}
	if v := get("JEEVES_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := get("JEEVES_MANUAL_OVERRIDE_MINUTES"); v != "" {
		if c.ManualOverrideMinutes, err = parseInt("JEEVES_MANUAL_OVERRIDE_MINUTES", v); err != nil {
			return err
		}
	}

	return nil
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	// Sensor and device flags
	fs.StringVar(&c.TempSensorURL, "sensor-url", c.TempSensorURL, "Temperature sensor URL")
	fs.DurationVar(&c.SensorTimeout, "sensor-timeout", c.SensorTimeout, "Temperature sensor request timeout")
	fs.StringVar(&c.TuyaDeviceID, "tuya-device-id", c.TuyaDeviceID, "Tuya device ID")
	fs.StringVar(&c.TuyaLocalKey, "tuya-local-key", c.TuyaLocalKey, "Tuya local key")
	fs.StringVar(&c.TuyaAddress, "tuya-address", c.TuyaAddress, "Tuya device address")
	fs.DurationVar(&c.TuyaTimeout, "tuya-timeout", c.TuyaTimeout, "Tuya dial and I/O timeout")

	// Color mapping flags
	fs.Float64Var(&c.MinTemperature, "min-temperature", c.MinTemperature, "Temperature mapped to the cold color")
	fs.Float64Var(&c.MaxTemperature, "max-temperature", c.MaxTemperature, "Temperature mapped to the hot color")
	coldColor := fs.String("cold-color", FormatColor(c.ColdColor), "Cold anchor color (r,g,b)")
	midColor := fs.String("mid-color", FormatColor(c.MidColor), "Mid anchor color (r,g,b)")
	hotColor := fs.String("hot-color", FormatColor(c.HotColor), "Hot anchor color (r,g,b)")

	// Loop and schedule flags
	fs.DurationVar(&c.UpdateInterval, "update-interval", c.UpdateInterval, "Time between poll cycles")
	fs.IntVar(&c.MaxConsecutiveFailures, "max-consecutive-failures", c.MaxConsecutiveFailures, "Stop after this many failed cycles in a row (0 = never)")
	fs.StringVar(&c.OnTime, "on-time", c.OnTime, "End of the off-window (HH:MM, sunrise or sunset)")
	fs.StringVar(&c.OffTime, "off-time", c.OffTime, "Start of the off-window (HH:MM, sunrise or sunset)")
	fs.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for sunrise/sunset")
	fs.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for sunrise/sunset")

	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname (empty disables MQTT)")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	fs.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname (empty disables Redis)")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.IntVar(&c.StatusTTLSec, "status-ttl", c.StatusTTLSec, "TTL of the Redis status snapshot in seconds")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.StringVar(&c.Location, "location", c.Location, "Location name used in topics and keys")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.IntVar(&c.ManualOverrideMinutes, "manual-override-minutes", c.ManualOverrideMinutes, "Default manual override duration in minutes")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if fs.Changed("cold-color") {
		if c.ColdColor, err = ParseColor(*coldColor); err != nil {
			return fmt.Errorf("--cold-color: %w", err)
		}
	}
	if fs.Changed("mid-color") {
		if c.MidColor, err = ParseColor(*midColor); err != nil {
			return fmt.Errorf("--mid-color: %w", err)
		}
	}
	if fs.Changed("hot-color") {
		if c.HotColor, err = ParseColor(*hotColor); err != nil {
			return fmt.Errorf("--hot-color: %w", err)
		}
	}

	return nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.TempSensorURL == "" {
		return fmt.Errorf("TEMP_SENSOR_URL is required")
	}
	u, err := url.Parse(c.TempSensorURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("TEMP_SENSOR_URL must be an http(s) URL: %q", c.TempSensorURL)
	}
	if c.TuyaDeviceID == "" {
		return fmt.Errorf("TUYA_DEVICE_ID is required")
	}
	if c.TuyaAddress == "" {
		return fmt.Errorf("TUYA_ADDRESS is required")
	}
	if len(c.TuyaLocalKey) != 16 {
		return fmt.Errorf("TUYA_LOCAL_KEY must be 16 characters, got %d", len(c.TuyaLocalKey))
	}
	if c.TuyaVersion != "3.3" {
		return fmt.Errorf("unsupported TUYA_VERSION %q (only 3.3)", c.TuyaVersion)
	}

	// The mapper divides by MAX - MIN
	if math.IsNaN(c.MinTemperature) || math.IsInf(c.MinTemperature, 0) ||
		math.IsNaN(c.MaxTemperature) || math.IsInf(c.MaxTemperature, 0) {
		return fmt.Errorf("MIN_TEMPERATURE and MAX_TEMPERATURE must be finite")
	}
	if c.MinTemperature >= c.MaxTemperature {
		return fmt.Errorf("MIN_TEMPERATURE (%g) must be less than MAX_TEMPERATURE (%g)", c.MinTemperature, c.MaxTemperature)
	}
	for name, color := range map[string][3]float64{"COLD_COLOR": c.ColdColor, "MID_COLOR": c.MidColor, "HOT_COLOR": c.HotColor} {
		if err := checkColor(color); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if c.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL must be positive")
	}
	if c.SensorTimeout <= 0 {
		return fmt.Errorf("SENSOR_TIMEOUT must be positive")
	}
	if c.TuyaTimeout <= 0 {
		return fmt.Errorf("TUYA_TIMEOUT must be positive")
	}
	if c.SensorRateLimitSec < 0 {
		return fmt.Errorf("SENSOR_RATE_LIMIT_SEC must not be negative")
	}
	if c.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("MAX_CONSECUTIVE_FAILURES must not be negative")
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}

	if c.MQTTEnabled() && (c.MQTTPort <= 0 || c.MQTTPort > 65535) {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisEnabled() && (c.RedisPort <= 0 || c.RedisPort > 65535) {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.StatusTTLSec <= 0 {
		return fmt.Errorf("STATUS_TTL_SEC must be positive")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.Location == "" || strings.ContainsAny(c.Location, "/+#") {
		return fmt.Errorf("location must be non-empty and must not contain MQTT wildcards or '/'")
	}
	if c.ManualOverrideMinutes <= 0 {
		return fmt.Errorf("manual override minutes must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTEnabled reports whether an MQTT broker is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// RedisEnabled reports whether a Redis host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// StatusTTL returns the Redis status snapshot TTL
func (c *Config) StatusTTL() time.Duration {
	return time.Duration(c.StatusTTLSec) * time.Second
}

// RedactedLocalKey returns the local key with all but the first two characters masked
func (c *Config) RedactedLocalKey() string {
	if len(c.TuyaLocalKey) <= 2 {
		return strings.Repeat("*", len(c.TuyaLocalKey))
	}
	return c.TuyaLocalKey[:2] + strings.Repeat("*", len(c.TuyaLocalKey)-2)
}

// ParseColor parses a comma-separated "r,g,b" triple with channels in [0, 255]
func ParseColor(s string) ([3]float64, error) {
	var color [3]float64

	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color, fmt.Errorf("%w: %q must have three comma-separated channels", ErrInvalidColor, s)
	}

	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return color, fmt.Errorf("%w: channel %q: %v", ErrInvalidColor, p, err)
		}
		color[i] = v
	}

	if err := checkColor(color); err != nil {
		return color, err
	}
	return color, nil
}

// FormatColor formats a color triple the way ParseColor reads it
func FormatColor(color [3]float64) string {
	return fmt.Sprintf("%g,%g,%g", color[0], color[1], color[2])
}

func checkColor(color [3]float64) error {
	for _, v := range color {
		if math.IsNaN(v) || v < 0 || v > 255 {
			return fmt.Errorf("%w: channel %g out of range [0, 255]", ErrInvalidColor, v)
		}
	}
	return nil
}

func parseFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, v)
	}
	return f, nil
}

func parseInt(key, v string) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return i, nil
}

// parseSeconds reads a duration given in (fractional) seconds, like UPDATE_INTERVAL=60 or 0.5
func parseSeconds(key, v string) (time.Duration, error) {
	f, err := parseFloat(key, v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}
