// Package config loads the polling pipeline configuration for the run
// command.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/sensorloop/environment"
)

type Config struct {
	I2C         I2CConfig         `yaml:"i2c"`
	Serial      SerialConfig      `yaml:"serial"`
	Illuminance IlluminanceConfig `yaml:"illuminance"`
	Temperature TemperatureConfig `yaml:"temperature"`
	CO2         CO2Config         `yaml:"co2"`
}

type I2CConfig struct {
	// Adapter is one of generic, mcp2221, gobot, mock.
	Adapter string `yaml:"adapter"`
	Device  string `yaml:"device"`
	Bus     int    `yaml:"bus"`
	// SpeedKHz caps the bus clock on the generic adapter; some sensors
	// need slow clocks.
	SpeedKHz int `yaml:"speed_khz"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type IlluminanceConfig struct {
	Enable          bool          `yaml:"enable"`
	Address         byte          `yaml:"address"`
	Gain            string        `yaml:"gain"`
	IntegrationTime string        `yaml:"integration_time"`
	CSPackage       bool          `yaml:"cs_package"`
	Interval        time.Duration `yaml:"interval"`
}

type TemperatureConfig struct {
	Enable   bool          `yaml:"enable"`
	Address  byte          `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
}

type CO2Config struct {
	Enable      bool          `yaml:"enable"`
	Interval    time.Duration `yaml:"interval"`
	Temperature bool          `yaml:"temperature"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.I2C.Adapter == "" {
		cfg.I2C.Adapter = "generic"
	}
	switch cfg.I2C.Adapter {
	case "generic", "mcp2221", "gobot", "mock":
	default:
		return Config{}, fmt.Errorf("i2c.adapter must be one of generic, mcp2221, gobot, mock")
	}
	if cfg.I2C.Device == "" {
		cfg.I2C.Device = "/dev/i2c-1"
	}
	if cfg.I2C.SpeedKHz <= 0 {
		cfg.I2C.SpeedKHz = 100
	}

	if cfg.Serial.Device == "" {
		cfg.Serial.Device = "/dev/ttyS1"
	}
	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 9600
	}

	if cfg.Illuminance.Address == 0 {
		cfg.Illuminance.Address = environment.TSL2561AddrDefault
	}
	if cfg.Illuminance.Gain == "" {
		cfg.Illuminance.Gain = "1x"
	}
	if cfg.Illuminance.IntegrationTime == "" {
		cfg.Illuminance.IntegrationTime = "402ms"
	}
	if cfg.Illuminance.Interval <= 0 {
		cfg.Illuminance.Interval = 60 * time.Second
	}
	if _, err := cfg.Illuminance.GainValue(); err != nil {
		return Config{}, err
	}
	if _, err := cfg.Illuminance.IntegrationTimeValue(); err != nil {
		return Config{}, err
	}

	if cfg.Temperature.Address == 0 {
		cfg.Temperature.Address = environment.TC74AddrDefault
	}
	if cfg.Temperature.Interval <= 0 {
		cfg.Temperature.Interval = 60 * time.Second
	}

	if cfg.CO2.Interval <= 0 {
		cfg.CO2.Interval = 60 * time.Second
	}
	if cfg.CO2.ReadTimeout <= 0 {
		cfg.CO2.ReadTimeout = 100 * time.Millisecond
	}

	return cfg, nil
}

// GainValue maps the configured gain name onto the driver setting.
func (c IlluminanceConfig) GainValue() (environment.TSL2561Gain, error) {
	switch c.Gain {
	case "1x", "low":
		return environment.TSL2561Gain1x, nil
	case "16x", "high":
		return environment.TSL2561Gain16x, nil
	}
	return 0, fmt.Errorf("illuminance.gain must be 1x or 16x, got %q", c.Gain)
}

// IntegrationTimeValue maps the configured window name onto the driver
// setting.
func (c IlluminanceConfig) IntegrationTimeValue() (environment.TSL2561IntegrationTime, error) {
	switch c.IntegrationTime {
	case "14ms":
		return environment.TSL2561Integration14ms, nil
	case "101ms":
		return environment.TSL2561Integration101ms, nil
	case "402ms":
		return environment.TSL2561Integration402ms, nil
	}
	return 0, fmt.Errorf("illuminance.integration_time must be 14ms, 101ms or 402ms, got %q", c.IntegrationTime)
}
