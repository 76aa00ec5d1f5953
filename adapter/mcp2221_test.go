package adapter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMCP2221_BufferToStatus(t *testing.T) {
	buf := make([]byte, hidReportSize)
	binary.LittleEndian.PutUint16(buf[9:11], 16)
	binary.LittleEndian.PutUint16(buf[11:13], 12)
	buf[13] = 5    // transfer counter
	buf[14] = 118  // divider for 100 kHz
	buf[15] = 30   // timeout
	buf[16] = 0x72 // current address, little end first
	buf[17] = 0x00
	buf[25] = 2

	status := bufferToStatus(buf)

	assert.Equal(t, uint16(16), status.LastWriteRequestedSize)
	assert.Equal(t, uint16(12), status.LastWriteSentSize)
	assert.Equal(t, 5, status.I2CDataBufferCounter)
	assert.Equal(t, 118, status.I2CSpeedDivider)
	assert.Equal(t, 30, status.I2CTimeout)
	assert.Equal(t, "7200", status.CurrentAddress)
	assert.Equal(t, 2, status.ReadPending)
}
