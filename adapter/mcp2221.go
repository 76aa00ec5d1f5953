package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/cmd/sensorloop/console"
)

// Microchip MCP2221/MCP2221A USB-to-I2C bridge.
const VendorID = 0x04D8
const ProductID = 0x00DD

const hidReportSize = 64

// HID command codes (datasheet chapter 3)
const (
	cmdStatusSetParams = 0x10
	cmdGetReadData     = 0x40
	cmdWriteData       = 0x90
	cmdReadData        = 0x91
)

var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

var _ sensorloop.RegisterBus = &MCP2221{}

// MCP2221 exposes the bridge's I2C engine as a register bus. All exchanges
// are 64-byte HID reports; a register read is a one-byte address write
// followed by a read and a data fetch. The framework's run-to-completion
// scheduling serializes access, the adapter itself keeps no lock.
type MCP2221 struct {
	dev          *hid.Device
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int
	I2CSpeedDivider        int
	I2CTimeout             int
	CurrentAddress         string
	LastWriteRequestedSize uint16
	LastWriteSentSize      uint16
	ReadPending            int
}

func NewMCP2221() *MCP2221 {
	return &MCP2221{
		request:      make([]byte, hidReportSize),
		response:     make([]byte, hidReportSize),
		responseWait: 50 * time.Millisecond,
	}
}

// Init locates and opens the bridge. With several bridges attached the
// first enumerated one is used.
func (d *MCP2221) Init() error {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return ErrDeviceNotFound
	}
	dev, err := devs[0].Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	d.dev = dev
	return nil
}

func (d *MCP2221) Close() error {
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

func (d *MCP2221) WriteReg(ctx context.Context, address byte, reg byte, data []byte) error {
	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, reg)
	frame = append(frame, data...)
	if err := d.busWrite(ctx, address, frame); err != nil {
		return fmt.Errorf("write reg %#x on %#x failed: %w", reg, address, err)
	}
	return nil
}

func (d *MCP2221) ReadReg(ctx context.Context, address byte, reg byte, buffer []byte) error {
	if err := d.busWrite(ctx, address, []byte{reg}); err != nil {
		return fmt.Errorf("register select on %#x failed: %w", address, err)
	}
	if err := d.busRead(ctx, address, buffer); err != nil {
		return fmt.Errorf("read reg %#x from %#x failed: %w", reg, address, err)
	}
	return nil
}

func (d *MCP2221) busWrite(ctx context.Context, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmdWriteData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return err
	}
	if d.response[1] == 0x01 {
		return sensorloop.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) busRead(ctx context.Context, address byte, buffer []byte) error {
	d.resetBuffers()
	d.request[0] = cmdReadData
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx); err != nil {
		return err
	}
	d.resetBuffers()
	d.request[0] = cmdGetReadData
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == 0x41 {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:])
	return nil
}

// Status reads the engine state, useful when a transfer wedges the bus.
func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// Release cancels the current transfer and frees the engine.
func (d *MCP2221) Release(ctx context.Context) error {
	d.resetBuffers()
	d.request[0] = cmdStatusSetParams
	d.request[2] = 0x10
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus release failed: %w", err)
	}
	return nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) send(ctx context.Context) error {
	if d.dev == nil {
		return ErrDeviceNotFound
	}
	verbose := console.IsVerbose(ctx)
	if verbose {
		console.Printf("sending report to adapter:\n%s", hex.Dump(d.request))
	}
	slog.Debug("sending report to adapter", "command", d.request[0])
	n, err := d.dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != hidReportSize {
		return fmt.Errorf("short write: %d", n)
	}
	time.Sleep(d.responseWait)
	n, err = d.dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != hidReportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		console.Printf("read report from adapter:\n%s", hex.Dump(d.response))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}
