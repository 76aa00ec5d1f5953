package adapter

import (
	"context"
	"fmt"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/sensorloop"
)

var _ sensorloop.RegisterBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (NanoPi, Raspberry Pi, ...) to the
// register bus. Connections are opened lazily per device address and kept
// for the lifetime of the bus.
type GobotBus struct {
	connector gi2c.Connector
	busNr     int
	conns     map[byte]gi2c.Connection
}

func NewGobotBus(connector gi2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     map[byte]gi2c.Connection{},
	}
}

func (b *GobotBus) connection(address byte) (gi2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not get i2c connection to %#x: %w", address, err)
	}
	b.conns[address] = conn
	return conn, nil
}

func (b *GobotBus) ReadReg(ctx context.Context, address byte, reg byte, buffer []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := conn.ReadBlockData(reg, buffer); err != nil {
		return fmt.Errorf("could not read reg %#x from %#x: %w", reg, address, err)
	}
	return nil
}

func (b *GobotBus) WriteReg(ctx context.Context, address byte, reg byte, data []byte) error {
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if err := conn.WriteBlockData(reg, data); err != nil {
		return fmt.Errorf("could not write reg %#x on %#x: %w", reg, address, err)
	}
	return nil
}

func (b *GobotBus) Close() error {
	var first error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && first == nil {
			first = fmt.Errorf("could not close connection to %#x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return first
}
