package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/cmd/sensorloop/console"
	"github.com/mklimuk/sensorloop/config"
	"github.com/mklimuk/sensorloop/environment"
	"github.com/mklimuk/sensorloop/sched"
)

var lightCmd = cli.Command{
	Name: "light",
	Subcommands: []*cli.Command{
		&lightReadCmd,
	},
}

var lightReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Value:   "mcp2221",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/i2c-1",
		},
		&cli.StringFlag{
			Name:  "addr",
			Value: "float",
			Usage: "address select: low, float or high",
		},
		&cli.StringFlag{
			Name:  "gain",
			Value: "1x",
		},
		&cli.StringFlag{
			Name:  "integration",
			Value: "402ms",
		},
		&cli.BoolFlag{Name: "cs", Usage: "CS package coefficient set"},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		bus, closer, err := openRegisterBus(config.I2CConfig{
			Adapter: c.String("adapter"),
			Device:  c.String("device"),
		})
		if err != nil {
			return console.Exit(1, "adapter initialization error: %s", console.Red(err))
		}
		if closer != nil {
			defer func() { _ = closer.Close() }()
		}

		var addr byte
		switch c.String("addr") {
		case "low":
			addr = environment.TSL2561AddrLow
		case "high":
			addr = environment.TSL2561AddrHigh
		default:
			addr = environment.TSL2561AddrFloat
		}
		ill := config.IlluminanceConfig{Gain: c.String("gain"), IntegrationTime: c.String("integration")}
		gain, err := ill.GainValue()
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		integ, err := ill.IntegrationTimeValue()
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}

		s := sched.New()
		var lux float64
		done := false
		d := environment.NewTSL2561(bus, s, sensorloop.SinkFunc(func(v float64) {
			lux = v
			done = true
		}),
			environment.WithTSL2561Address(addr),
			environment.WithGain(gain),
			environment.WithIntegrationTime(integ),
			environment.WithCSPackage(c.Bool("cs")),
		)
		// one-shot task: a single update at the first tick
		d.Attach(s, sched.PriorityHardwareLate, 0)

		s.RunSetup(ctx)
		if d.Status().Failed() {
			return console.Exit(1, "sensor did not respond during setup")
		}
		deadline := time.Now().Add(2 * time.Second)
		for !done && time.Now().Before(deadline) {
			s.Tick(ctx, time.Now())
			time.Sleep(5 * time.Millisecond)
		}
		if !done {
			return console.Exit(1, "no measurement within deadline")
		}
		if math.IsNaN(lux) {
			console.Warnf("sensor is saturated")
			return nil
		}
		console.Printf("%s lux\n", console.White(fmt.Sprintf("%.1f", lux)))
		return nil
	},
}
