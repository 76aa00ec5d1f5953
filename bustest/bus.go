// Package bustest provides scripted in-memory buses for exercising drivers
// without hardware. The behavior-function style mirrors the mock sensors
// used elsewhere in the project: fixed data, dynamic data and fault
// injection are all expressed as plain functions.
package bustest

import (
	"context"
	"fmt"
	"time"
)

// RegWrite records one register write seen by the fake bus.
type RegWrite struct {
	Address byte
	Reg     byte
	Data    []byte
}

// RegisterBus is a scripted sensorloop.RegisterBus. ReadFunc supplies the
// bytes for a read (or an error simulating a missing ACK); writes are
// recorded and optionally vetted by WriteFunc.
type RegisterBus struct {
	ReadFunc  func(ctx context.Context, address, reg byte, buffer []byte) error
	WriteFunc func(ctx context.Context, address, reg byte, data []byte) error
	Writes    []RegWrite
}

func (b *RegisterBus) ReadReg(ctx context.Context, address, reg byte, buffer []byte) error {
	if b.ReadFunc == nil {
		return fmt.Errorf("bustest: no read behavior for reg %#x", reg)
	}
	return b.ReadFunc(ctx, address, reg, buffer)
}

func (b *RegisterBus) WriteReg(ctx context.Context, address, reg byte, data []byte) error {
	b.Writes = append(b.Writes, RegWrite{Address: address, Reg: reg, Data: append([]byte(nil), data...)})
	if b.WriteFunc != nil {
		return b.WriteFunc(ctx, address, reg, data)
	}
	return nil
}

// LastWrite returns the most recent write to reg, or nil.
func (b *RegisterBus) LastWrite(reg byte) []byte {
	for i := len(b.Writes) - 1; i >= 0; i-- {
		if b.Writes[i].Reg == reg {
			return b.Writes[i].Data
		}
	}
	return nil
}

// RegisterMap is a RegisterBus backed by a flat register file, enough to
// stand in for a register-addressed device in CLI demos.
func RegisterMap(regs map[byte][]byte) *RegisterBus {
	return &RegisterBus{
		ReadFunc: func(_ context.Context, _, reg byte, buffer []byte) error {
			data, ok := regs[reg]
			if !ok {
				return fmt.Errorf("bustest: no such register %#x", reg)
			}
			copy(buffer, data)
			return nil
		},
		WriteFunc: func(_ context.Context, _, reg byte, data []byte) error {
			regs[reg] = append([]byte(nil), data...)
			return nil
		},
	}
}

// FrameBus is a scripted sensorloop.FrameBus. Each ReadFrame pops the next
// queued response; writes and flushes are recorded.
type FrameBus struct {
	Responses [][]byte
	Sent      [][]byte
	Flushes   int
	WriteErr  error
	ReadErr   error
}

func (b *FrameBus) WriteFrame(_ context.Context, frame []byte) error {
	if b.WriteErr != nil {
		return b.WriteErr
	}
	b.Sent = append(b.Sent, append([]byte(nil), frame...))
	return nil
}

func (b *FrameBus) ReadFrame(_ context.Context, buffer []byte, _ time.Duration) error {
	if b.ReadErr != nil {
		return b.ReadErr
	}
	if len(b.Responses) == 0 {
		return fmt.Errorf("bustest: no frame available")
	}
	next := b.Responses[0]
	b.Responses = b.Responses[1:]
	if len(next) < len(buffer) {
		return fmt.Errorf("bustest: short frame: want %d bytes, scripted %d", len(buffer), len(next))
	}
	copy(buffer, next)
	return nil
}

func (b *FrameBus) Flush(context.Context) error {
	b.Flushes++
	return nil
}

// Queue appends a scripted response frame.
func (b *FrameBus) Queue(frame ...byte) {
	b.Responses = append(b.Responses, frame)
}
