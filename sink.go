package sensorloop

// Sink receives calibrated measurements from drivers. Values carry their
// unit implicitly (lux, ppm, °C depending on the channel); an invalid
// reading is published as NaN so consumers can tell "nothing usable" from
// zero. Sinks own any history they need, the framework retains none.
type Sink interface {
	Publish(value float64)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(value float64)

func (f SinkFunc) Publish(value float64) { f(value) }

// Discard is a Sink dropping everything, useful as a default.
var Discard Sink = SinkFunc(func(float64) {})
