package air

import (
	"context"
	"encoding/binary"
	"log/slog"
	"time"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/sched"
)

const (
	mhz19RequestLength  = 8
	mhz19ResponseLength = 9
)

// Command frames are 8 bytes (start marker 0xFF, reserved 0x01, command
// code, five zero bytes); the checksum goes on the wire as a 9th byte.
var (
	mhz19CommandGetPPM = []byte{0xFF, 0x01, 0x86, 0x00, 0x00, 0x00, 0x00, 0x00}
	// The MH-Z19B drifts its baseline in poorly ventilated rooms when
	// automatic baseline calibration is left on; the checksum of this frame
	// computes to 0x86.
	mhz19CommandABCDisable = []byte{0xFF, 0x01, 0x79, 0x00, 0x00, 0x00, 0x00, 0x00}
)

// The sensor reports this value in the status/U field while it is still
// booting; readings are not valid yet and no warning is warranted.
const mhz19BootSentinel = 15000

const mhz19DefaultReadTimeout = 100 * time.Millisecond

// MHZ19 drives the Winsen MH-Z19/MH-Z19B NDIR CO₂ sensor over its serial
// link. Each poll is one framed request/response exchange: CO₂ concentration
// in ppm plus a coarse temperature on an optional secondary channel.
type MHZ19 struct {
	transport   sensorloop.FrameBus
	status      *sensorloop.DeviceStatus
	co2         sensorloop.Sink
	temperature sensorloop.Sink
	readTimeout time.Duration

	// modelB and abcDisabled are sticky: once the B variant is detected it
	// stays detected, and ABC is only ever disabled once.
	modelB      bool
	abcDisabled bool
}

type MHZ19Opt func(*MHZ19)

// WithTemperatureSink enables the secondary temperature channel. The MH-Z19
// temperature is coarse (1 °C steps, offset calibration unknown) so it is
// off unless asked for.
func WithTemperatureSink(sink sensorloop.Sink) MHZ19Opt {
	return func(d *MHZ19) { d.temperature = sink }
}

func WithReadTimeout(timeout time.Duration) MHZ19Opt {
	return func(d *MHZ19) { d.readTimeout = timeout }
}

func NewMHZ19(transport sensorloop.FrameBus, co2 sensorloop.Sink, opts ...MHZ19Opt) *MHZ19 {
	d := &MHZ19{
		transport:   transport,
		status:      sensorloop.NewDeviceStatus("mhz19"),
		co2:         co2,
		readTimeout: mhz19DefaultReadTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *MHZ19) Status() *sensorloop.DeviceStatus { return d.status }

// ModelB reports whether the B hardware variant has been detected.
func (d *MHZ19) ModelB() bool { return d.modelB }

// ABCDisabled reports whether automatic baseline calibration has been
// switched off on the device.
func (d *MHZ19) ABCDisabled() bool { return d.abcDisabled }

// Attach registers the driver with the scheduler. The sensor needs no
// setup handshake.
func (d *MHZ19) Attach(s *sched.Scheduler, priority int, interval time.Duration) {
	s.Register("mhz19", priority, interval, nil, d.Update, d.status)
}

// Update performs one poll cycle. Transient frame problems set a warning
// and the cycle is retried at the next interval; a clean cycle clears it.
func (d *MHZ19) Update(ctx context.Context) {
	response := make([]byte, mhz19ResponseLength)
	if err := d.exchange(ctx, mhz19CommandGetPPM, response); err != nil {
		slog.Warn("mhz19: reading data failed", "error", err)
		d.status.SetWarning()
		return
	}

	if response[0] != 0xFF || response[1] != 0x86 {
		slog.Warn("mhz19: invalid preamble", "byte0", response[0], "byte1", response[1])
		d.status.SetWarning()
		return
	}

	if binary.BigEndian.Uint16(response[6:8]) == mhz19BootSentinel {
		slog.Debug("mhz19: sensor is booting")
		return
	}

	// status byte 0 identifies the B variant
	if response[5] == 0 && !d.modelB {
		slog.Debug("mhz19: MH-Z19B detected")
		d.modelB = true
	}

	if d.modelB && !d.abcDisabled {
		if err := d.DisableABC(ctx); err != nil {
			// not fatal, retried on the next cycle
			slog.Warn("mhz19: failed to read ABC disable ack", "error", err)
			return
		}
	}

	if sum := mhz19Checksum(response); response[8] != sum {
		slog.Warn("mhz19: checksum mismatch", "received", response[8], "computed", sum)
		d.status.SetWarning()
		return
	}

	d.status.ClearWarning()
	ppm := binary.BigEndian.Uint16(response[2:4])
	temp := int(response[4]) - 40
	slog.Debug("mhz19: measurement", "co2_ppm", ppm, "temperature", temp, "status", response[5])
	d.co2.Publish(float64(ppm))
	if d.temperature != nil {
		d.temperature.Publish(float64(temp))
	}
}

// DisableABC sends the disable command for automatic baseline calibration
// and waits for its acknowledgement.
func (d *MHZ19) DisableABC(ctx context.Context) error {
	slog.Info("mhz19: disabling automatic baseline calibration")
	ack := make([]byte, mhz19ResponseLength)
	if err := d.exchange(ctx, mhz19CommandABCDisable, ack); err != nil {
		return err
	}
	d.abcDisabled = true
	return nil
}

// exchange writes one command frame (checksum appended) and reads the
// 9-byte response. The input buffer is flushed on both sides of the
// exchange so a stale byte can never shift the frame boundary.
func (d *MHZ19) exchange(ctx context.Context, command []byte, response []byte) error {
	if err := d.transport.Flush(ctx); err != nil {
		return err
	}
	frame := make([]byte, 0, mhz19ResponseLength)
	frame = append(frame, command...)
	frame = append(frame, mhz19Checksum(command))
	if err := d.transport.WriteFrame(ctx, frame); err != nil {
		return err
	}
	err := d.transport.ReadFrame(ctx, response, d.readTimeout)
	if ferr := d.transport.Flush(ctx); err == nil {
		err = ferr
	}
	return err
}

// mhz19Checksum computes the additive complement checksum over frame bytes
// 1..7. The same formula covers command and response frames.
func mhz19Checksum(frame []byte) byte {
	var sum byte
	for i := 1; i < mhz19RequestLength; i++ {
		sum += frame[i]
	}
	return 0xFF - sum + 0x01
}
