package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/air"
	"github.com/mklimuk/sensorloop/cmd/sensorloop/console"
	"github.com/mklimuk/sensorloop/sched"
	"github.com/mklimuk/sensorloop/serial"
)

var airCmd = cli.Command{
	Name: "air",
	Subcommands: []*cli.Command{
		&airReadCmd,
		&airABCDisableCmd,
	},
}

var airReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/ttyS1",
		},
		&cli.IntFlag{
			Name:  "baud",
			Value: 9600,
		},
		&cli.BoolFlag{Name: "temperature", Aliases: []string{"t"}},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		port, err := serial.Open(c.String("device"), c.Int("baud"))
		if err != nil {
			return console.Exit(1, "serial port error: %s", console.Red(err))
		}
		defer func() { _ = port.Close() }()

		s := sched.New()
		done := false
		var ppm float64
		opts := []air.MHZ19Opt{}
		if c.Bool("temperature") {
			opts = append(opts, air.WithTemperatureSink(sensorloop.SinkFunc(func(v float64) {
				console.Printf("temperature: %s °C\n", console.White(fmt.Sprintf("%.0f", v)))
			})))
		}
		d := air.NewMHZ19(port, sensorloop.SinkFunc(func(v float64) {
			ppm = v
			done = true
		}), opts...)
		d.Attach(s, sched.PriorityHardwareLate, 0)

		s.RunSetup(ctx)
		deadline := time.Now().Add(2 * time.Second)
		for !done && time.Now().Before(deadline) {
			s.Tick(ctx, time.Now())
			time.Sleep(5 * time.Millisecond)
		}
		if !done {
			if d.Status().Warning() {
				return console.Exit(1, "sensor communication problem")
			}
			// boot sentinel path: exchange succeeded, reading not valid yet
			return console.Exit(1, "sensor is still booting, retry later")
		}
		console.Printf("%s ppm\n", console.White(fmt.Sprintf("%.0f", ppm)))
		return nil
	},
}

var airABCDisableCmd = cli.Command{
	Name:  "abc-disable",
	Usage: "disable automatic baseline calibration (persists on the device)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Value:   "/dev/ttyS1",
		},
		&cli.IntFlag{
			Name:  "baud",
			Value: 9600,
		},
		&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
	},
	Action: func(c *cli.Context) error {
		ctx := console.SetVerbose(context.Background(), c.Bool("verbose"))

		answer, err := console.YesOrNo("disable automatic baseline calibration?")
		if err != nil {
			return console.Exit(1, "prompt error: %s", console.Red(err))
		}
		if answer != console.Yes {
			console.Print("aborted")
			return nil
		}

		port, err := serial.Open(c.String("device"), c.Int("baud"))
		if err != nil {
			return console.Exit(1, "serial port error: %s", console.Red(err))
		}
		defer func() { _ = port.Close() }()

		d := air.NewMHZ19(port, sensorloop.Discard)
		if err := d.DisableABC(ctx); err != nil {
			return console.Exit(1, "error disabling ABC: %s", console.Red(err))
		}
		console.Printf("automatic baseline calibration %s\n", console.Green("disabled"))
		return nil
	},
}
