package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorloop/environment"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sensorloop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "illuminance:\n  enable: true\n"))
	require.NoError(t, err)

	assert.Equal(t, "generic", cfg.I2C.Adapter)
	assert.Equal(t, "/dev/i2c-1", cfg.I2C.Device)
	assert.Equal(t, 100, cfg.I2C.SpeedKHz)
	assert.Equal(t, "/dev/ttyS1", cfg.Serial.Device)
	assert.Equal(t, 9600, cfg.Serial.Baud)
	assert.Equal(t, byte(environment.TSL2561AddrDefault), cfg.Illuminance.Address)
	assert.Equal(t, "1x", cfg.Illuminance.Gain)
	assert.Equal(t, "402ms", cfg.Illuminance.IntegrationTime)
	assert.Equal(t, 60*time.Second, cfg.Illuminance.Interval)
	assert.Equal(t, byte(environment.TC74AddrDefault), cfg.Temperature.Address)
	assert.Equal(t, 60*time.Second, cfg.Temperature.Interval)
	assert.Equal(t, 60*time.Second, cfg.CO2.Interval)
	assert.Equal(t, 100*time.Millisecond, cfg.CO2.ReadTimeout)
}

func TestLoad_FullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
i2c:
  adapter: mcp2221
  speed_khz: 20
serial:
  device: /dev/ttyUSB0
  baud: 19200
illuminance:
  enable: true
  address: 0x29
  gain: 16x
  integration_time: 101ms
  cs_package: true
  interval: 30s
co2:
  enable: true
  interval: 2m
  temperature: true
  read_timeout: 250ms
`))
	require.NoError(t, err)

	assert.Equal(t, "mcp2221", cfg.I2C.Adapter)
	assert.Equal(t, 20, cfg.I2C.SpeedKHz)
	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Device)
	assert.Equal(t, 19200, cfg.Serial.Baud)
	assert.Equal(t, byte(0x29), cfg.Illuminance.Address)
	assert.True(t, cfg.Illuminance.CSPackage)
	assert.Equal(t, 30*time.Second, cfg.Illuminance.Interval)
	assert.Equal(t, 2*time.Minute, cfg.CO2.Interval)
	assert.True(t, cfg.CO2.Temperature)
	assert.Equal(t, 250*time.Millisecond, cfg.CO2.ReadTimeout)

	gain, err := cfg.Illuminance.GainValue()
	require.NoError(t, err)
	assert.Equal(t, environment.TSL2561Gain16x, gain)
	integ, err := cfg.Illuminance.IntegrationTimeValue()
	require.NoError(t, err)
	assert.Equal(t, environment.TSL2561Integration101ms, integ)
}

func TestLoad_InvalidAdapter(t *testing.T) {
	_, err := Load(writeConfig(t, "i2c:\n  adapter: spi\n"))
	assert.ErrorContains(t, err, "i2c.adapter")
}

func TestLoad_InvalidGain(t *testing.T) {
	_, err := Load(writeConfig(t, "illuminance:\n  gain: 8x\n"))
	assert.ErrorContains(t, err, "illuminance.gain")
}

func TestLoad_InvalidIntegrationTime(t *testing.T) {
	_, err := Load(writeConfig(t, "illuminance:\n  integration_time: 200ms\n"))
	assert.ErrorContains(t, err, "illuminance.integration_time")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGainValue_Aliases(t *testing.T) {
	low, err := IlluminanceConfig{Gain: "low"}.GainValue()
	require.NoError(t, err)
	assert.Equal(t, environment.TSL2561Gain1x, low)
	high, err := IlluminanceConfig{Gain: "high"}.GainValue()
	require.NoError(t, err)
	assert.Equal(t, environment.TSL2561Gain16x, high)
}
