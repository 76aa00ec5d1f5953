package sensorloop

import (
	"context"
	"fmt"
	"time"
)

var ErrBusBusy = fmt.Errorf("bus engine is busy (command not completed)")

// RegisterBus is an addressed register-oriented bus (typically I2C). A read
// selects a register on the device and fills the whole buffer; a write sends
// the register address followed by the payload in a single transaction.
// A device that does not acknowledge surfaces as a non-nil error, never as
// a panic.
type RegisterBus interface {
	ReadReg(ctx context.Context, address byte, reg byte, buffer []byte) error
	WriteReg(ctx context.Context, address byte, reg byte, data []byte) error
}

// FrameBus is a streaming byte-oriented bus (typically a UART link) used by
// sensors speaking framed request/response protocols.
//
// Flush discards any unread input. Callers must flush before and after a
// request/response pair so a stale byte cannot desynchronize the next
// exchange.
type FrameBus interface {
	WriteFrame(ctx context.Context, frame []byte) error
	ReadFrame(ctx context.Context, buffer []byte, timeout time.Duration) error
	Flush(ctx context.Context) error
}
