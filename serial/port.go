// Package serial implements the streaming frame bus over a raw serial
// port. The MH-Z19 link is 9600 8N1.
package serial

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mklimuk/sensorloop"
)

var _ sensorloop.FrameBus = &Port{}

var ErrTimeout = errors.New("serial read timeout")

// Port is an open serial device in raw mode. Reads are deadline-bounded;
// the caller decides per frame how long a response may take.
type Port struct {
	f    *os.File
	path string
}

// Open opens and configures the serial device. Supported baud rates match
// the platform table; the MH-Z19 uses 9600.
func Open(path string, baud int) (*Port, error) {
	f, err := openSerial(path, baud)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", path, err)
	}
	return &Port{f: f, path: path}, nil
}

func (p *Port) WriteFrame(ctx context.Context, frame []byte) error {
	n, err := p.f.Write(frame)
	if err != nil {
		return fmt.Errorf("write to %s failed: %w", p.path, err)
	}
	if n != len(frame) {
		return fmt.Errorf("short write to %s: %d of %d bytes", p.path, n, len(frame))
	}
	return nil
}

// ReadFrame fills the buffer completely or fails. The timeout bounds the
// whole frame, not a single byte.
func (p *Port) ReadFrame(ctx context.Context, buffer []byte, timeout time.Duration) error {
	if err := p.f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("could not set read deadline on %s: %w", p.path, err)
	}
	read := 0
	for read < len(buffer) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := p.f.Read(buffer[read:])
		read += n
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return fmt.Errorf("%w: got %d of %d bytes", ErrTimeout, read, len(buffer))
			}
			return fmt.Errorf("read from %s failed: %w", p.path, err)
		}
	}
	return nil
}

// Flush discards bytes buffered in both directions.
func (p *Port) Flush(ctx context.Context) error {
	if err := flushSerial(p.f); err != nil {
		return fmt.Errorf("could not flush %s: %w", p.path, err)
	}
	return nil
}

func (p *Port) Close() error {
	return p.f.Close()
}
