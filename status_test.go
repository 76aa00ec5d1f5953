package sensorloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceStatus_FailedIsSticky(t *testing.T) {
	s := NewDeviceStatus("probe")
	assert.True(t, s.Healthy())

	s.MarkFailed()
	assert.True(t, s.Failed())
	assert.False(t, s.Healthy())

	// marking twice is a no-op, there is no way to clear it
	s.MarkFailed()
	s.ClearWarning()
	assert.True(t, s.Failed())
}

func TestDeviceStatus_WarningIsTransient(t *testing.T) {
	s := NewDeviceStatus("probe")
	s.SetWarning()
	assert.True(t, s.Warning())
	assert.False(t, s.Failed())
	assert.False(t, s.Healthy())

	s.ClearWarning()
	assert.False(t, s.Warning())
	assert.True(t, s.Healthy())
}

func TestDeviceStatus_Name(t *testing.T) {
	assert.Equal(t, "tsl2561", NewDeviceStatus("tsl2561").Name())
}
