package compass

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Azimuth is a fused heading in degrees, in (-180, 180].
//
// The sign is negated relative to the yaw of the rotation matrix so that the
// value can be applied directly as the rotation of a compass rose: pointing
// the device east yields -90.
type Azimuth float64

var (
	// ErrDegenerate means the inputs cannot determine an orientation: free
	// fall, a vanishing field, or gravity and field (nearly) collinear.
	ErrDegenerate = errors.New("compass: degenerate sensor input")

	// ErrIncomplete means one of the two sensors has not reported yet.
	// It is handled exactly like ErrDegenerate.
	ErrIncomplete = fmt.Errorf("%w: waiting for both sensors", ErrDegenerate)
)

const (
	// DefaultMinGravity is the free-fall threshold (0.1 g), in m/s².
	DefaultMinGravity = 0.1 * StandardGravity
	// DefaultMinFieldCross bounds |magnetic × gravity|, in µT·m/s².
	DefaultMinFieldCross = 0.1

	minFieldNorm = 1e-6
)

// Estimator fuses gravity and magnetic vectors into an azimuth.
// The zero value uses the default thresholds.
type Estimator struct {
	MinGravity    float64
	MinFieldCross float64
}

func (e Estimator) minGravity() float64 {
	if e.MinGravity > 0 {
		return e.MinGravity
	}
	return DefaultMinGravity
}

func (e Estimator) minFieldCross() float64 {
	if e.MinFieldCross > 0 {
		return e.MinFieldCross
	}
	return DefaultMinFieldCross
}

// Estimate fuses with the default thresholds.
func Estimate(gravity, magnetic Vector3) (Azimuth, error) {
	return Estimator{}.Estimate(gravity, magnetic)
}

// RotationMatrix builds the device orientation with rows east, north, up.
func (e Estimator) RotationMatrix(gravity, magnetic Vector3) (*mat.Dense, error) {
	if !finite(gravity) || !finite(magnetic) {
		return nil, ErrDegenerate
	}
	if r3.Norm(gravity) < e.minGravity() {
		return nil, fmt.Errorf("%w: gravity %.3f below free-fall threshold", ErrDegenerate, r3.Norm(gravity))
	}
	if r3.Norm(magnetic) < minFieldNorm {
		return nil, fmt.Errorf("%w: no magnetic field", ErrDegenerate)
	}

	h := r3.Cross(magnetic, gravity)
	if n := r3.Norm(h); n < e.minFieldCross() {
		return nil, fmt.Errorf("%w: field collinear with gravity", ErrDegenerate)
	}
	east := r3.Unit(h)
	up := r3.Unit(gravity)
	north := r3.Unit(r3.Cross(gravity, east))

	return mat.NewDense(3, 3, []float64{
		east.X, east.Y, east.Z,
		north.X, north.Y, north.Z,
		up.X, up.Y, up.Z,
	}), nil
}

// Estimate returns the clockwise-positive azimuth for one gravity/field pair.
// It keeps no state between calls.
func (e Estimator) Estimate(gravity, magnetic Vector3) (Azimuth, error) {
	r, err := e.RotationMatrix(gravity, magnetic)
	if err != nil {
		return 0, err
	}
	yaw := math.Atan2(r.At(0, 1), r.At(1, 1))
	return Azimuth(ShortestArc(-yaw * 180 / math.Pi)), nil
}
