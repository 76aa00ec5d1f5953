package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/adapter"
	"github.com/mklimuk/sensorloop/air"
	"github.com/mklimuk/sensorloop/bustest"
	"github.com/mklimuk/sensorloop/cmd/sensorloop/console"
	"github.com/mklimuk/sensorloop/config"
	"github.com/mklimuk/sensorloop/environment"
	"github.com/mklimuk/sensorloop/i2c"
	"github.com/mklimuk/sensorloop/sched"
	"github.com/mklimuk/sensorloop/serial"
)

var runCmd = cli.Command{
	Name:  "run",
	Usage: "poll configured sensors until interrupted",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "sensorloop.yaml",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return console.Exit(1, "could not load config: %s", console.Red(err))
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s := sched.New()
		var statuses []*sensorloop.DeviceStatus

		var bus sensorloop.RegisterBus
		if cfg.Illuminance.Enable || cfg.Temperature.Enable {
			var closer io.Closer
			bus, closer, err = openRegisterBus(cfg.I2C)
			if err != nil {
				return console.Exit(1, "i2c adapter initialization error: %s", console.Red(err))
			}
			if closer != nil {
				defer func() { _ = closer.Close() }()
			}
		}

		if cfg.Illuminance.Enable {
			gain, _ := cfg.Illuminance.GainValue()
			integ, _ := cfg.Illuminance.IntegrationTimeValue()
			sink := sensorloop.SinkFunc(func(v float64) {
				if math.IsNaN(v) {
					console.Warnf("illuminance sensor saturated")
					return
				}
				console.Printf("illuminance: %s lux\n", console.White(fmt.Sprintf("%.1f", v)))
			})
			d := environment.NewTSL2561(bus, s, sink,
				environment.WithTSL2561Address(cfg.Illuminance.Address),
				environment.WithGain(gain),
				environment.WithIntegrationTime(integ),
				environment.WithCSPackage(cfg.Illuminance.CSPackage),
			)
			d.Attach(s, sched.PriorityHardwareLate, cfg.Illuminance.Interval)
			statuses = append(statuses, d.Status())
		}

		if cfg.Temperature.Enable {
			sink := sensorloop.SinkFunc(func(v float64) {
				console.Printf("temperature: %s °C\n", console.White(fmt.Sprintf("%.0f", v)))
			})
			d := environment.NewTC74(bus, sink,
				environment.WithTC74Address(cfg.Temperature.Address),
			)
			d.Attach(s, sched.PriorityHardware, cfg.Temperature.Interval)
			statuses = append(statuses, d.Status())
		}

		if cfg.CO2.Enable {
			port, err := serial.Open(cfg.Serial.Device, cfg.Serial.Baud)
			if err != nil {
				return console.Exit(1, "serial port error: %s", console.Red(err))
			}
			defer func() { _ = port.Close() }()
			opts := []air.MHZ19Opt{air.WithReadTimeout(cfg.CO2.ReadTimeout)}
			if cfg.CO2.Temperature {
				opts = append(opts, air.WithTemperatureSink(sensorloop.SinkFunc(func(v float64) {
					console.Printf("temperature: %s °C\n", console.White(fmt.Sprintf("%.0f", v)))
				})))
			}
			sink := sensorloop.SinkFunc(func(v float64) {
				console.Printf("co2: %s ppm\n", console.White(fmt.Sprintf("%.0f", v)))
			})
			d := air.NewMHZ19(port, sink, opts...)
			d.Attach(s, sched.PriorityHardwareLate, cfg.CO2.Interval)
			statuses = append(statuses, d.Status())
		}

		if len(statuses) == 0 {
			return console.Exit(1, "no sensors enabled in %s", c.String("config"))
		}

		s.Run(ctx)

		for _, st := range statuses {
			switch {
			case st.Failed():
				console.Errorf("%s: failed", st.Name())
			case st.Warning():
				console.Warnf("%s: warning", st.Name())
			default:
				console.Printf("%s: %s\n", st.Name(), console.Green("healthy"))
			}
		}
		return nil
	},
}

// openRegisterBus builds the configured register bus adapter. The returned
// closer is nil for adapters with nothing to release.
func openRegisterBus(cfg config.I2CConfig) (sensorloop.RegisterBus, io.Closer, error) {
	switch cfg.Adapter {
	case "mcp2221":
		a := adapter.NewMCP2221()
		if err := a.Init(); err != nil {
			return nil, nil, err
		}
		return a, a, nil
	case "gobot":
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		return adapter.NewGobotBus(npi, cfg.Bus), nil, nil
	case "mock":
		return mockLightBus(), nil, nil
	default:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, err
		}
		if cfg.SpeedKHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.SpeedKHz) * physic.KiloHertz); err != nil {
				_ = bus.Close()
				return nil, nil, fmt.Errorf("could not set bus speed: %w", err)
			}
		}
		return bus, bus, nil
	}
}

// mockLightBus simulates a TSL2561 with a plausible indoor reading, enough
// to demo the pipeline without hardware.
func mockLightBus() sensorloop.RegisterBus {
	return bustest.RegisterMap(map[byte][]byte{
		0x00: {0x00},       // control
		0x01: {0x00},       // timing
		0x0C: {0xE8, 0x03}, // channel 0 = 1000
		0x0E: {0x2C, 0x01}, // channel 1 = 300
	})
}
