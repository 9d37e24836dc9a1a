// Package compass turns accelerometer and magnetometer samples into a smoothed
// heading suitable for driving a rotating indicator.
//
// The package is pure computation: it never blocks and never touches hardware.
// Callers push samples in (Pipeline.Ingest) and query the displayed heading
// (Pipeline.Heading) from any goroutine.
package compass

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vector3 is a device-local sensor reading.
// Gravity is in m/s², magnetic field in µT.
type Vector3 = r3.Vec

// StandardGravity is one g in m/s².
const StandardGravity = 9.80665

type SensorKind int

const (
	Accelerometer SensorKind = iota + 1
	Magnetometer
)

func (k SensorKind) String() string {
	switch k {
	case Accelerometer:
		return "accel"
	case Magnetometer:
		return "mag"
	default:
		return fmt.Sprintf("SensorKind(%d)", int(k))
	}
}

// ParseSensorKind accepts the names produced by String plus a few aliases.
func ParseSensorKind(s string) (SensorKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accel", "accelerometer", "gravity":
		return Accelerometer, nil
	case "mag", "magnetometer", "magnetic":
		return Magnetometer, nil
	default:
		return 0, fmt.Errorf("compass: unknown sensor kind %q", s)
	}
}

// SampleEvent is one delivered reading.
type SampleEvent struct {
	Kind SensorKind
	Vec  Vector3
	At   time.Time
}

func finite(v Vector3) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
