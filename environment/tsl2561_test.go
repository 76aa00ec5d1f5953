package environment

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/sensorloop"
	"github.com/mklimuk/sensorloop/bustest"
	"github.com/mklimuk/sensorloop/sched"
)

func TestTSL2561_IntegrationTimeMilliseconds(t *testing.T) {
	assert.Equal(t, 13.7, TSL2561Integration14ms.Milliseconds())
	assert.Equal(t, 100.0, TSL2561Integration101ms.Milliseconds())
	assert.Equal(t, 402.0, TSL2561Integration402ms.Milliseconds())
	assert.Equal(t, 0.0, TSL2561IntegrationTime(0b11).Milliseconds())
}

func TestTSL2561_CalculateLuxSaturation(t *testing.T) {
	tests := []struct {
		ch0, ch1 uint16
	}{
		{0xFFFF, 0},
		{0xFFFF, 100},
		{0, 0xFFFF},
		{1000, 0xFFFF},
		{0xFFFF, 0xFFFF},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%04x_%04x", test.ch0, test.ch1), func(t *testing.T) {
			lx := calculateLux(test.ch0, test.ch1, TSL2561Gain16x, TSL2561Integration402ms, false)
			assert.True(t, math.IsNaN(lx), "saturated reading must be NaN, got %v", lx)
		})
	}
}

// Coefficients are fixed at full integration time and high gain so the
// channel scaling is the identity and only the branch selection varies.
func TestTSL2561_CalculateLuxBranches(t *testing.T) {
	tests := []struct {
		name     string
		ch0, ch1 uint16
		cs       bool
		expected float64
	}{
		{"std_below_0.50", 1000, 300, false, 0.0304*1000 - 0.062*1000*math.Pow(0.3, 1.4)},
		{"std_exactly_0.50", 100, 50, false, 0.0224*100 - 0.031*50},
		{"std_below_0.61", 100, 60, false, 0.0224*100 - 0.031*60},
		{"std_exactly_0.61", 100, 61, false, 0.0128*100 - 0.0153*61},
		{"std_below_0.80", 100, 79, false, 0.0128*100 - 0.0153*79},
		{"std_exactly_0.80", 100, 80, false, 0.00146*100 - 0.00112*80},
		{"std_below_1.30", 100, 129, false, 0.00146*100 - 0.00112*129},
		{"std_at_1.30", 100, 130, false, 0.0},
		{"cs_below_0.52", 1000, 300, true, 0.0315*1000 - 0.0593*1000*math.Pow(0.3, 1.4)},
		{"cs_exactly_0.52", 100, 52, true, 0.0229*100 - 0.0291*52},
		{"cs_exactly_0.65", 100, 65, true, 0.0157*100 - 0.0153*65},
		{"cs_exactly_0.80", 100, 80, true, 0.00338*100 - 0.00260*80},
		{"cs_at_1.30", 100, 130, true, 0.0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			lx := calculateLux(test.ch0, test.ch1, TSL2561Gain16x, TSL2561Integration402ms, test.cs)
			assert.InDelta(t, test.expected, lx, 1e-9)
		})
	}
}

func TestTSL2561_CalculateLuxScaling(t *testing.T) {
	// 101ms window scales counts by 402/100 before the curve is applied
	d0 := 1000.0 * (402.0 / 100.0)
	expected := 0.0304*d0 - 0.062*d0*math.Pow(0.3, 1.4)
	lx := calculateLux(1000, 300, TSL2561Gain16x, TSL2561Integration101ms, false)
	assert.InDelta(t, expected, lx, 1e-9)

	// low gain normalizes to the 16x equivalent
	lx = calculateLux(1000, 300, TSL2561Gain1x, TSL2561Integration101ms, false)
	expected = 0.0304*d0*16 - 0.062*(d0*16)*math.Pow(0.3, 1.4)
	assert.InDelta(t, expected, lx, 1e-9)
}

func newTestRig(bus sensorloop.RegisterBus, opts ...TSL2561Opt) (*sched.Scheduler, *sched.ManualClock, *TSL2561, *[]float64) {
	clock := sched.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := sched.NewWithClock(clock)
	published := &[]float64{}
	d := NewTSL2561(bus, s, sensorloop.SinkFunc(func(v float64) {
		*published = append(*published, v)
	}), opts...)
	d.Attach(s, sched.PriorityHardwareLate, time.Minute)
	return s, clock, d, published
}

func scriptedSensor(timing byte, ch0, ch1 uint16) *bustest.RegisterBus {
	return &bustest.RegisterBus{
		ReadFunc: func(_ context.Context, _, reg byte, buffer []byte) error {
			switch reg {
			case tsl2561RegTiming:
				buffer[0] = timing
			case tsl2561RegData0:
				buffer[0] = byte(ch0)
				buffer[1] = byte(ch0 >> 8)
			case tsl2561RegData1:
				buffer[0] = byte(ch1)
				buffer[1] = byte(ch1 >> 8)
			default:
				return fmt.Errorf("unexpected register %#x", reg)
			}
			return nil
		},
	}
}

func TestTSL2561_SetupWritesTiming(t *testing.T) {
	bus := scriptedSensor(0b11110111, 1000, 300)
	s, _, d, _ := newTestRig(bus,
		WithGain(TSL2561Gain16x),
		WithIntegrationTime(TSL2561Integration101ms),
	)
	s.RunSetup(context.Background())
	assert.False(t, d.Status().Failed())
	// gain and integration bits replaced, the rest preserved
	assert.Equal(t, []byte{0b11110101}, bus.LastWrite(tsl2561RegTiming))
}

func TestTSL2561_SetupFailureMarksFailedAndStopsPolling(t *testing.T) {
	bus := &bustest.RegisterBus{
		ReadFunc: func(context.Context, byte, byte, []byte) error {
			return fmt.Errorf("no ack")
		},
	}
	s, clock, d, published := newTestRig(bus)
	ctx := context.Background()
	s.RunSetup(ctx)
	assert.True(t, d.Status().Failed())

	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	// failed device never powers on
	assert.Empty(t, bus.Writes)
	assert.Empty(t, *published)
}

func TestTSL2561_FullCycle(t *testing.T) {
	bus := scriptedSensor(0x00, 1000, 300)
	s, clock, d, published := newTestRig(bus,
		WithGain(TSL2561Gain16x),
		WithIntegrationTime(TSL2561Integration101ms),
	)
	ctx := context.Background()
	s.RunSetup(ctx)

	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	assert.Equal(t, []byte{tsl2561PowerOn}, bus.LastWrite(tsl2561RegControl))
	assert.Empty(t, *published, "no value before the conversion delay elapsed")

	// conversion window (100ms) + guard band
	clock.Advance(120 * time.Millisecond)
	s.Tick(ctx, clock.Now())

	require.Len(t, *published, 1)
	d0 := 1000.0 * (402.0 / 100.0)
	expected := 0.0304*d0 - 0.062*d0*math.Pow(0.3, 1.4)
	assert.InDelta(t, expected, (*published)[0], 1e-9)
	assert.Equal(t, []byte{tsl2561PowerOff}, bus.LastWrite(tsl2561RegControl))
	assert.True(t, d.Status().Healthy())
}

func TestTSL2561_TwoInstancesKeepSeparateDeferredReads(t *testing.T) {
	clock := sched.NewManualClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s := sched.NewWithClock(clock)
	var low, high []float64
	a := NewTSL2561(scriptedSensor(0x00, 1000, 300), s, sensorloop.SinkFunc(func(v float64) {
		low = append(low, v)
	}), WithTSL2561Address(TSL2561AddrLow))
	b := NewTSL2561(scriptedSensor(0x00, 2000, 600), s, sensorloop.SinkFunc(func(v float64) {
		high = append(high, v)
	}), WithTSL2561Address(TSL2561AddrHigh))
	a.Attach(s, sched.PriorityHardwareLate, time.Minute)
	b.Attach(s, sched.PriorityHardwareLate, time.Minute)

	ctx := context.Background()
	s.RunSetup(ctx)
	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	// both pending reads must survive until the conversion window elapses
	clock.Advance(time.Second)
	s.Tick(ctx, clock.Now())

	assert.Len(t, low, 1)
	assert.Len(t, high, 1)
}

func TestTSL2561_ReadFailureSetsWarningAndRetries(t *testing.T) {
	failing := true
	bus := scriptedSensor(0x00, 1000, 300)
	inner := bus.ReadFunc
	bus.ReadFunc = func(ctx context.Context, addr, reg byte, buffer []byte) error {
		if failing && reg == tsl2561RegData0 {
			return fmt.Errorf("no ack")
		}
		return inner(ctx, addr, reg, buffer)
	}
	s, clock, d, published := newTestRig(bus)
	ctx := context.Background()
	s.RunSetup(ctx)

	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	clock.Advance(time.Second)
	s.Tick(ctx, clock.Now())
	assert.Empty(t, *published)
	assert.True(t, d.Status().Warning())
	assert.False(t, d.Status().Failed())

	// next interval retries from idle and heals the warning
	failing = false
	clock.Advance(time.Minute)
	s.Tick(ctx, clock.Now())
	clock.Advance(time.Second)
	s.Tick(ctx, clock.Now())
	assert.Len(t, *published, 1)
	assert.False(t, d.Status().Warning())
}
