package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := NewConfig()
	cfg.TempSensorURL = "http://sensor.local/api"
	cfg.TuyaDeviceID = "bf1234567890abcdef"
	cfg.TuyaLocalKey = "0123456789abcdef"
	cfg.TuyaAddress = "192.168.1.50"
	return cfg
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 10.0, cfg.MinTemperature)
	assert.Equal(t, 50.0, cfg.MaxTemperature)
	assert.Equal(t, [3]float64{0, 0, 255}, cfg.ColdColor)
	assert.Equal(t, [3]float64{255, 204, 0}, cfg.MidColor)
	assert.Equal(t, [3]float64{255, 0, 0}, cfg.HotColor)
	assert.Equal(t, 60*time.Second, cfg.UpdateInterval)
	assert.Empty(t, cfg.OnTime)
	assert.Empty(t, cfg.OffTime)
	assert.False(t, cfg.MQTTEnabled())
	assert.False(t, cfg.RedisEnabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TEMP_SENSOR_URL", "http://10.0.0.2/temp")
	t.Setenv("TUYA_DEVICE_ID", "dev1")
	t.Setenv("TUYA_LOCAL_KEY", "abcdefghijklmnop")
	t.Setenv("TUYA_ADDRESS", "10.0.0.3")
	t.Setenv("MIN_TEMPERATURE", "-5")
	t.Setenv("MAX_TEMPERATURE", "35.5")
	t.Setenv("COLD_COLOR", "0, 10, 250")
	t.Setenv("UPDATE_INTERVAL", "2.5")
	t.Setenv("ON_TIME", "06:00")
	t.Setenv("OFF_TIME", "23:00")
	t.Setenv("JEEVES_MQTT_BROKER", "mqtt.local")
	t.Setenv("JEEVES_LOG_LEVEL", "debug")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "http://10.0.0.2/temp", cfg.TempSensorURL)
	assert.Equal(t, "dev1", cfg.TuyaDeviceID)
	assert.Equal(t, -5.0, cfg.MinTemperature)
	assert.Equal(t, 35.5, cfg.MaxTemperature)
	assert.Equal(t, [3]float64{0, 10, 250}, cfg.ColdColor)
	assert.Equal(t, 2500*time.Millisecond, cfg.UpdateInterval)
	assert.Equal(t, "06:00", cfg.OnTime)
	assert.Equal(t, "23:00", cfg.OffTime)
	assert.True(t, cfg.MQTTEnabled())
	assert.Equal(t, "tcp://mqtt.local:1883", cfg.MQTTAddress())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_ParseErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"MIN_TEMPERATURE", "cold"},
		{"MAX_TEMPERATURE", "1e"},
		{"UPDATE_INTERVAL", "soon"},
		{"COLD_COLOR", "0,0"},
		{"MID_COLOR", "255,204,x"},
		{"HOT_COLOR", "256,0,0"},
		{"JEEVES_MQTT_PORT", "eighteen"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			err := NewConfig().LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestParseColor(t *testing.T) {
	color, err := ParseColor("255,204,0")
	require.NoError(t, err)
	assert.Equal(t, [3]float64{255, 204, 0}, color)

	color, err = ParseColor(" 12.5 , 0 ,255 ")
	require.NoError(t, err)
	assert.Equal(t, [3]float64{12.5, 0, 255}, color)

	for _, bad := range []string{"", "1,2", "1,2,3,4", "a,b,c", "-1,0,0", "0,0,300", "NaN,0,0"} {
		_, err := ParseColor(bad)
		assert.ErrorIs(t, err, ErrInvalidColor, "input %q", bad)
	}

	assert.Equal(t, "255,204,0", FormatColor([3]float64{255, 204, 0}))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing sensor url", func(c *Config) { c.TempSensorURL = "" }},
		{"non http sensor url", func(c *Config) { c.TempSensorURL = "ftp://sensor" }},
		{"missing device id", func(c *Config) { c.TuyaDeviceID = "" }},
		{"missing address", func(c *Config) { c.TuyaAddress = "" }},
		{"short local key", func(c *Config) { c.TuyaLocalKey = "short" }},
		{"unsupported version", func(c *Config) { c.TuyaVersion = "3.4" }},
		{"min equals max", func(c *Config) { c.MinTemperature, c.MaxTemperature = 20, 20 }},
		{"min above max", func(c *Config) { c.MinTemperature, c.MaxTemperature = 30, 20 }},
		{"zero interval", func(c *Config) { c.UpdateInterval = 0 }},
		{"color out of range", func(c *Config) { c.HotColor = [3]float64{255, 0, 999} }},
		{"negative failures", func(c *Config) { c.MaxConsecutiveFailures = -1 }},
		{"bad mqtt port", func(c *Config) { c.MQTTBroker = "mqtt"; c.MQTTPort = 0 }},
		{"bad health port", func(c *Config) { c.HealthPort = 70000 }},
		{"location with slash", func(c *Config) { c.Location = "a/b" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}

	require.NoError(t, validConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_MQTTPortIgnoredWhenDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.MQTTPort = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFlags(t *testing.T) {
	cfg := validConfig()
	err := cfg.LoadFromFlags([]string{
		"--min-temperature=0",
		"--max-temperature=30",
		"--hot-color=200,10,10",
		"--update-interval=15s",
		"--off-time=sunset",
		"--location=study",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.MinTemperature)
	assert.Equal(t, 30.0, cfg.MaxTemperature)
	assert.Equal(t, [3]float64{200, 10, 10}, cfg.HotColor)
	assert.Equal(t, [3]float64{0, 0, 255}, cfg.ColdColor, "unchanged flags keep previous values")
	assert.Equal(t, 15*time.Second, cfg.UpdateInterval)
	assert.Equal(t, "sunset", cfg.OffTime)
	assert.Equal(t, "study", cfg.Location)
}

func TestLoadFromFlags_BadColor(t *testing.T) {
	cfg := validConfig()
	err := cfg.LoadFromFlags([]string{"--mid-color=1,2"})
	assert.ErrorIs(t, err, ErrInvalidColor)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thermolight.yaml")
	content := `
TEMP_SENSOR_URL: http://sensor.local/api
MIN_TEMPERATURE: 15
MAX_TEMPERATURE: 28.5
MID_COLOR: "255,180,20"
UPDATE_INTERVAL: 30
jeeves_location: bedroom
ON_TIME:
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "http://sensor.local/api", cfg.TempSensorURL)
	assert.Equal(t, 15.0, cfg.MinTemperature)
	assert.Equal(t, 28.5, cfg.MaxTemperature)
	assert.Equal(t, [3]float64{255, 180, 20}, cfg.MidColor)
	assert.Equal(t, 30*time.Second, cfg.UpdateInterval)
	assert.Equal(t, "bedroom", cfg.Location)
	assert.Empty(t, cfg.OnTime)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	err := NewConfig().LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("MIN_TEMPERATURE: warm\n"), 0o600))
	err = NewConfig().LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MIN_TEMPERATURE")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	// Missing file is fine
	require.NoError(t, LoadDotEnv(filepath.Join(dir, ".env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TUYA_ADDRESS=10.1.1.1\nTUYA_DEVICE_ID=from-file\n"), 0o600))

	t.Setenv("TUYA_DEVICE_ID", "from-env")
	t.Setenv("TUYA_ADDRESS", "")
	os.Unsetenv("TUYA_ADDRESS")

	require.NoError(t, LoadDotEnv(path))
	t.Cleanup(func() { os.Unsetenv("TUYA_ADDRESS") })

	assert.Equal(t, "10.1.1.1", os.Getenv("TUYA_ADDRESS"))
	assert.Equal(t, "from-env", os.Getenv("TUYA_DEVICE_ID"), "real environment wins over .env")
}

func TestRedactedLocalKey(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "01**************", cfg.RedactedLocalKey())
}
