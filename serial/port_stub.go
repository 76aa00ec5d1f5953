//go:build !linux

package serial

import (
	"fmt"
	"os"
)

func openSerial(path string, baud int) (*os.File, error) {
	return nil, fmt.Errorf("serial not supported on this platform")
}

func flushSerial(f *os.File) error {
	return fmt.Errorf("serial not supported on this platform")
}
