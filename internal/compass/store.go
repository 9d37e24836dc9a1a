package compass

import (
	"errors"
	"fmt"
	"time"
)

// ErrNonFinite is returned when a sample carries NaN or Inf components.
var ErrNonFinite = errors.New("compass: non-finite sample")

// SampleStore keeps the latest reading of each sensor kind.
//
// The two readings are stale-tolerant: fusion may combine a gravity vector
// and a magnetic vector observed at different times. SampleStore is not safe
// for concurrent use; Pipeline guards it.
type SampleStore struct {
	gravity    Vector3
	magnetic   Vector3
	gravityAt  time.Time
	magneticAt time.Time

	haveGravity  bool
	haveMagnetic bool
}

func (s *SampleStore) SetAccelerometer(v Vector3) error {
	return s.set(Accelerometer, v, time.Time{})
}

func (s *SampleStore) SetMagnetometer(v Vector3) error {
	return s.set(Magnetometer, v, time.Time{})
}

// Set overwrites the latest reading for kind. at is kept for status only.
func (s *SampleStore) Set(kind SensorKind, v Vector3, at time.Time) error {
	return s.set(kind, v, at)
}

func (s *SampleStore) set(kind SensorKind, v Vector3, at time.Time) error {
	if !finite(v) {
		return ErrNonFinite
	}
	switch kind {
	case Accelerometer:
		s.gravity, s.gravityAt, s.haveGravity = v, at, true
	case Magnetometer:
		s.magnetic, s.magneticAt, s.haveMagnetic = v, at, true
	default:
		return fmt.Errorf("compass: unknown sensor kind %d", int(kind))
	}
	return nil
}

// Latest returns whichever readings are held. A false flag means that sensor
// has not reported yet and the matching vector is zero.
func (s *SampleStore) Latest() (gravity, magnetic Vector3, haveGravity, haveMagnetic bool) {
	return s.gravity, s.magnetic, s.haveGravity, s.haveMagnetic
}

// LastUpdate returns the timestamps passed to Set, zero when unknown.
func (s *SampleStore) LastUpdate() (gravityAt, magneticAt time.Time) {
	return s.gravityAt, s.magneticAt
}

// Complete reports whether both sensors have reported at least once.
func (s *SampleStore) Complete() bool {
	return s.haveGravity && s.haveMagnetic
}
