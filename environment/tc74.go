package environment

import (
	"context"
	"log/slog"
	"time"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/sched"
)

const TC74AddrDefault = 0x4D

const (
	tc74RegTemperature byte = 0x00
	tc74RegConfig      byte = 0x01
)

// DATA_RDY flag of the config register; clear right after power up while
// the first conversion is still running.
const tc74DataReady byte = 0x40

// TC74 drives the Microchip TC74 digital temperature sensor. Unlike the
// light sensor there is no conversion to wait out: the part converts
// continuously and the poll is a single register read.
type TC74 struct {
	transport sensorloop.RegisterBus
	status    *sensorloop.DeviceStatus
	sink      sensorloop.Sink
	addr      byte
}

type TC74Opt func(*TC74)

func WithTC74Address(addr byte) TC74Opt {
	return func(d *TC74) { d.addr = addr }
}

func NewTC74(transport sensorloop.RegisterBus, sink sensorloop.Sink, opts ...TC74Opt) *TC74 {
	d := &TC74{
		transport: transport,
		status:    sensorloop.NewDeviceStatus("tc74"),
		sink:      sink,
		addr:      TC74AddrDefault,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *TC74) Status() *sensorloop.DeviceStatus { return d.status }

func (d *TC74) Attach(s *sched.Scheduler, priority int, interval time.Duration) {
	s.Register("tc74", priority, interval, d.Setup, d.Update, d.status)
}

// Setup probes the config register. A part that does not acknowledge here
// is not on the bus and gets excluded from polling.
func (d *TC74) Setup(ctx context.Context) {
	buf := make([]byte, 1)
	if err := d.transport.ReadReg(ctx, d.addr, tc74RegConfig, buf); err != nil {
		slog.Error("tc74: communication failed during setup", "addr", d.addr, "error", err)
		d.status.MarkFailed()
		return
	}
	slog.Debug("tc74: probed", "addr", d.addr, "config", buf[0])
}

func (d *TC74) Update(ctx context.Context) {
	buf := make([]byte, 1)
	if err := d.transport.ReadReg(ctx, d.addr, tc74RegConfig, buf); err != nil {
		slog.Warn("tc74: config read failed", "error", err)
		d.status.SetWarning()
		return
	}
	if buf[0]&tc74DataReady == 0 {
		// first conversion after power up not finished yet, not a fault
		slog.Debug("tc74: data not ready, skipping cycle")
		return
	}
	if err := d.transport.ReadReg(ctx, d.addr, tc74RegTemperature, buf); err != nil {
		slog.Warn("tc74: temperature read failed", "error", err)
		d.status.SetWarning()
		return
	}
	// 8-bit two's complement, 1 °C resolution
	temp := float64(int8(buf[0]))
	slog.Debug("tc74: measurement", "temperature", temp)
	d.status.ClearWarning()
	d.sink.Publish(temp)
}
