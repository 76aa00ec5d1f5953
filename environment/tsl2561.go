package environment

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/sched"
)

// TSL2561 7-bit I2C addresses, selected by the ADDR SEL pin.
const (
	TSL2561AddrLow     = 0x29
	TSL2561AddrFloat   = 0x39
	TSL2561AddrHigh    = 0x49
	TSL2561AddrDefault = TSL2561AddrFloat
)

// Register map (per datasheet)
const (
	tsl2561RegControl byte = 0x00
	tsl2561RegTiming  byte = 0x01
	tsl2561RegData0   byte = 0x0C
	tsl2561RegData1   byte = 0x0E
)

const (
	tsl2561PowerOn  byte = 0b00000011
	tsl2561PowerOff byte = 0b00000000
)

// TSL2561Gain selects the analog amplification. The value is the bit
// pattern OR-ed into the timing register.
type TSL2561Gain byte

const (
	TSL2561Gain1x  TSL2561Gain = 0x00
	TSL2561Gain16x TSL2561Gain = 0x10
)

const tsl2561GainMask byte = 0x10

// TSL2561IntegrationTime is the 2-bit integration time code of the timing
// register.
type TSL2561IntegrationTime byte

const (
	TSL2561Integration14ms  TSL2561IntegrationTime = 0b00
	TSL2561Integration101ms TSL2561IntegrationTime = 0b01
	TSL2561Integration402ms TSL2561IntegrationTime = 0b10
)

const tsl2561IntegrationMask byte = 0b11

// Milliseconds returns the nominal integration time for the code. Unknown
// codes map to 0 which makes the channel scaling blow up visibly instead of
// silently producing wrong lux values.
func (t TSL2561IntegrationTime) Milliseconds() float64 {
	switch t {
	case TSL2561Integration14ms:
		return 13.7
	case TSL2561Integration101ms:
		return 100.0
	case TSL2561Integration402ms:
		return 402.0
	}
	return 0.0
}

// Raw channel value at which the ADC saturates; the reading carries no
// photometric information past this point.
const tsl2561Saturated = 0xFFFF

// Guard band added on top of the integration time before the conversion
// result is read back.
const conversionGuardBand = 20 * time.Millisecond

const deferredReadKey = "illuminance"

type tsl2561State int

const (
	tsl2561Idle tsl2561State = iota
	tsl2561AwaitingConversion
)

// TSL2561 drives the AMS/TAOS TSL2561 two-channel ambient light sensor.
// The sensor integrates light over a configured window, so a poll is a
// two-step exchange: power up and start the conversion, then read the two
// channel registers once the window (plus a guard band) has elapsed. The
// wait is a deferred scheduler callback, the driver never sleeps.
type TSL2561 struct {
	transport sensorloop.RegisterBus
	timers    sched.Deferrer
	status    *sensorloop.DeviceStatus
	sink      sensorloop.Sink

	addr      byte
	gain      TSL2561Gain
	integ     TSL2561IntegrationTime
	packageCS bool

	state tsl2561State
}

type TSL2561Opt func(*TSL2561)

func WithTSL2561Address(addr byte) TSL2561Opt {
	return func(d *TSL2561) { d.addr = addr }
}

func WithGain(gain TSL2561Gain) TSL2561Opt {
	return func(d *TSL2561) { d.gain = gain }
}

func WithIntegrationTime(integ TSL2561IntegrationTime) TSL2561Opt {
	return func(d *TSL2561) { d.integ = integ }
}

// WithCSPackage selects the coefficient set of the CS package variant,
// which has a different photometric response curve than the standard
// T/FN/CL packages.
func WithCSPackage(cs bool) TSL2561Opt {
	return func(d *TSL2561) { d.packageCS = cs }
}

func NewTSL2561(transport sensorloop.RegisterBus, timers sched.Deferrer, sink sensorloop.Sink, opts ...TSL2561Opt) *TSL2561 {
	d := &TSL2561{
		transport: transport,
		timers:    timers,
		status:    sensorloop.NewDeviceStatus("tsl2561"),
		sink:      sink,
		addr:      TSL2561AddrDefault,
		gain:      TSL2561Gain1x,
		integ:     TSL2561Integration402ms,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *TSL2561) Status() *sensorloop.DeviceStatus { return d.status }

// Attach registers the driver's setup and update with the scheduler.
func (d *TSL2561) Attach(s *sched.Scheduler, priority int, interval time.Duration) {
	s.Register("tsl2561", priority, interval, d.Setup, d.Update, d.status)
}

// Setup reads the timing register, patches in the configured gain bit and
// integration time code and writes it back. A device that does not
// acknowledge the initial read is marked failed and excluded from polling.
func (d *TSL2561) Setup(ctx context.Context) {
	buf := make([]byte, 1)
	if err := d.transport.ReadReg(ctx, d.addr, tsl2561RegTiming, buf); err != nil {
		slog.Error("tsl2561: communication failed during setup", "addr", d.addr, "error", err)
		d.status.MarkFailed()
		return
	}
	timing := buf[0]
	timing &^= tsl2561GainMask
	timing |= byte(d.gain)
	timing &^= tsl2561IntegrationMask
	timing |= byte(d.integ) & tsl2561IntegrationMask
	if err := d.transport.WriteReg(ctx, d.addr, tsl2561RegTiming, []byte{timing}); err != nil {
		slog.Warn("tsl2561: could not write timing register", "error", err)
	}
	slog.Debug("tsl2561: configured", "gain", d.gain, "integration_ms", d.integ.Milliseconds(), "cs_package", d.packageCS)
}

// Update powers the sensor on and schedules the data read for when the
// conversion is guaranteed to be complete.
func (d *TSL2561) Update(ctx context.Context) {
	if err := d.transport.WriteReg(ctx, d.addr, tsl2561RegControl, []byte{tsl2561PowerOn}); err != nil {
		slog.Warn("tsl2561: power on failed", "error", err)
		d.status.SetWarning()
		return
	}
	d.state = tsl2561AwaitingConversion
	wait := time.Duration(d.integ.Milliseconds()*float64(time.Millisecond)) + conversionGuardBand
	d.timers.ScheduleAfter(d.owner(), deferredReadKey, wait, d.readData)
}

// owner keys the deferred read per instance, so two sensors on different
// addresses never replace each other's pending callbacks.
func (d *TSL2561) owner() string {
	return fmt.Sprintf("tsl2561-%#x", d.addr)
}

func (d *TSL2561) readData(ctx context.Context) {
	if d.state != tsl2561AwaitingConversion {
		return
	}
	d.state = tsl2561Idle
	data := make([]byte, 4)
	if err := d.transport.ReadReg(ctx, d.addr, tsl2561RegData0, data[0:2]); err != nil {
		slog.Warn("tsl2561: channel 0 read failed", "error", err)
		d.status.SetWarning()
		return
	}
	if err := d.transport.ReadReg(ctx, d.addr, tsl2561RegData1, data[2:4]); err != nil {
		slog.Warn("tsl2561: channel 1 read failed", "error", err)
		d.status.SetWarning()
		return
	}
	if err := d.transport.WriteReg(ctx, d.addr, tsl2561RegControl, []byte{tsl2561PowerOff}); err != nil {
		slog.Warn("tsl2561: power off failed", "error", err)
	}
	ch0 := binary.LittleEndian.Uint16(data[0:2])
	ch1 := binary.LittleEndian.Uint16(data[2:4])
	lx := calculateLux(ch0, ch1, d.gain, d.integ, d.packageCS)
	slog.Debug("tsl2561: measurement", "ch0", ch0, "ch1", ch1, "lux", lx)
	d.status.ClearWarning()
	d.sink.Publish(lx)
}

// calculateLux converts the two raw channel counts into lux using the
// vendor piecewise response curves. The coefficients and ratio thresholds
// are published values and must not be altered. Returns NaN when either
// channel is saturated.
func calculateLux(ch0, ch1 uint16, gain TSL2561Gain, integ TSL2561IntegrationTime, packageCS bool) float64 {
	if ch0 == tsl2561Saturated || ch1 == tsl2561Saturated {
		return math.NaN()
	}

	d0, d1 := float64(ch0), float64(ch1)
	ratio := d1 / d0

	ms := integ.Milliseconds()
	d0 *= 402.0 / ms
	d1 *= 402.0 / ms

	if gain == TSL2561Gain1x {
		d0 *= 16
		d1 *= 16
	}

	if packageCS {
		switch {
		case ratio < 0.52:
			return 0.0315*d0 - 0.0593*d0*math.Pow(ratio, 1.4)
		case ratio < 0.65:
			return 0.0229*d0 - 0.0291*d1
		case ratio < 0.80:
			return 0.0157*d0 - 0.0153*d1
		case ratio < 1.30:
			return 0.00338*d0 - 0.00260*d1
		}
		return 0.0
	}
	switch {
	case ratio < 0.5:
		return 0.0304*d0 - 0.062*d0*math.Pow(ratio, 1.4)
	case ratio < 0.61:
		return 0.0224*d0 - 0.031*d1
	case ratio < 0.80:
		return 0.0128*d0 - 0.0153*d1
	case ratio < 1.30:
		return 0.00146*d0 - 0.00112*d1
	}
	return 0.0
}
