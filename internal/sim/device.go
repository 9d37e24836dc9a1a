package sim

import (
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

const standardGravity = 9.80665

// Device is a simulated compass lying screen-up in a uniform earth field.
//
// Heading is clockwise from magnetic north, in degrees. Gravity points along
// +Z (accelerometer convention); the field's horizontal component points to
// magnetic north and its vertical component is FieldVerticalUT along Z.
type Device struct {
	Period            time.Duration
	FieldHorizontalUT float64
	FieldVerticalUT   float64
	JitterDeg         float64

	rng *rand.Rand
}

// NewDevice returns a device whose jitter sequence is fixed by seed.
func NewDevice(period time.Duration, horizontalUT, verticalUT, jitterDeg float64, seed int64) *Device {
	return &Device{
		Period:            period,
		FieldHorizontalUT: horizontalUT,
		FieldVerticalUT:   verticalUT,
		JitterDeg:         jitterDeg,
		rng:               rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15)),
	}
}

// HeadingAt returns a deterministic steady rotation: one full turn per Period.
func (d *Device) HeadingAt(now time.Time) float64 {
	period := d.Period
	if period <= 0 {
		period = 60 * time.Second
	}
	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	if phase < 0 {
		phase += 1
	}
	return 360 * phase
}

// Vectors returns gravity (m/s²) and field (µT) for a flat device at
// headingDeg, with FieldScale applied to the field.
func (d *Device) Vectors(headingDeg, fieldScale float64) (gravity, magnetic r3.Vec) {
	bh := d.FieldHorizontalUT
	if bh == 0 {
		bh = 20
	}
	bv := d.FieldVerticalUT
	psi := headingDeg * math.Pi / 180
	gravity = r3.Vec{X: 0, Y: 0, Z: standardGravity}
	magnetic = r3.Scale(fieldScale, r3.Vec{X: -bh * math.Sin(psi), Y: bh * math.Cos(psi), Z: bv})
	return gravity, magnetic
}

// Jitter returns a uniform offset in [-JitterDeg, JitterDeg].
func (d *Device) Jitter() float64 {
	if d.JitterDeg <= 0 || d.rng == nil {
		return 0
	}
	return (d.rng.Float64()*2 - 1) * d.JitterDeg
}
