package sensorloop

import "log/slog"

// DeviceStatus tracks per-device health. The two flags have different reset
// semantics: failed is sticky (a device that could not be set up is excluded
// from polling for the rest of the uptime), warning is transient and cleared
// by the next successful cycle.
type DeviceStatus struct {
	name    string
	failed  bool
	warning bool
}

func NewDeviceStatus(name string) *DeviceStatus {
	return &DeviceStatus{name: name}
}

func (s *DeviceStatus) Name() string { return s.name }

// MarkFailed permanently excludes the device from the update cycle. There is
// no way back; drivers call this exactly once, from setup.
func (s *DeviceStatus) MarkFailed() {
	if s.failed {
		return
	}
	s.failed = true
	slog.Error("device marked failed", "device", s.name)
}

func (s *DeviceStatus) SetWarning() {
	if s.warning {
		return
	}
	s.warning = true
	slog.Warn("device communication warning", "device", s.name)
}

func (s *DeviceStatus) ClearWarning() {
	if !s.warning {
		return
	}
	s.warning = false
	slog.Debug("device warning cleared", "device", s.name)
}

func (s *DeviceStatus) Failed() bool  { return s.failed }
func (s *DeviceStatus) Warning() bool { return s.warning }

func (s *DeviceStatus) Healthy() bool { return !s.failed && !s.warning }
