package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/sensorloop"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var _ sensorloop.RegisterBus = &GenericBus{}

// GenericBus implements the register bus over a Linux I2C character device
// through periph.io. A register read is a combined write/read transaction
// (register select, repeated start, data); a register write puts the
// register address and payload in a single transaction.
type GenericBus struct {
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus: %w", err)
	}
	return &GenericBus{
		bus: bus,
	}, nil
}

func (b *GenericBus) ReadReg(ctx context.Context, address byte, reg byte, buffer []byte) error {
	err := b.bus.Tx(uint16(address), []byte{reg}, buffer)
	if err != nil {
		return fmt.Errorf("could not read reg %#x from i2c device %#x: %w", reg, address, err)
	}
	return nil
}

func (b *GenericBus) WriteReg(ctx context.Context, address byte, reg byte, data []byte) error {
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, reg)
	frame = append(frame, data...)
	err := b.bus.Tx(uint16(address), frame, nil)
	if err != nil {
		return fmt.Errorf("could not write reg %#x on i2c device %#x: %w", reg, address, err)
	}
	return nil
}

// SetSpeed caps the bus clock; some sensors require slow clocks.
func (b *GenericBus) SetSpeed(freq physic.Frequency) error {
	return b.bus.SetSpeed(freq)
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
