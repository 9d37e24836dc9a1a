package sensing

import (
	"fmt"
	"time"

	"go.uber.org/multierr"

	"compass-ng/internal/compass"
	"compass-ng/internal/config"
	"compass-ng/internal/i2c"
	"compass-ng/internal/sensors/icm20948"
	"compass-ng/internal/sim"
)

// Source is a pull-style sample producer polled on every service tick.
//
// Read may return samples together with a non-nil error (e.g. accel read
// fine, magnetometer overflowed); the service ingests what it got and records
// the error.
type Source interface {
	Name() string
	Read(now time.Time) ([]compass.SampleEvent, error)
	Close() error
}

// OpenSource builds the pull source for cfg. Replay is push-style and has no
// Source; OpenSource returns nil for it.
func OpenSource(cfg config.SensingConfig) (Source, error) {
	switch cfg.Source {
	case config.SourceSim, "":
		return NewSimSource(cfg.Sim)
	case config.SourceICM20948:
		return OpenIMUSource(cfg.I2CBus, cfg.IMUAddr)
	case config.SourceReplay:
		return nil, nil
	default:
		return nil, fmt.Errorf("sensing: unknown source %q", cfg.Source)
	}
}

// SimSource produces a flat, rotating device. With a script it follows the
// script's heading timeline instead (looping).
type SimSource struct {
	dev *sim.Device
	scn *sim.Scenario

	start time.Time
}

func NewSimSource(cfg config.SimConfig) (*SimSource, error) {
	s := &SimSource{
		dev: sim.NewDevice(cfg.Period, cfg.FieldHorizontalUT, cfg.FieldVerticalUT, cfg.JitterDeg, cfg.Seed),
	}
	if cfg.Script != "" {
		script, err := sim.LoadScenarioScript(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("sensing: load sim script: %w", err)
		}
		scn, err := sim.NewScenario(script)
		if err != nil {
			return nil, fmt.Errorf("sensing: sim script %s: %w", cfg.Script, err)
		}
		s.scn = scn
	}
	return s, nil
}

func (s *SimSource) Name() string {
	if s.scn != nil {
		return "sim-script"
	}
	return "sim"
}

func (s *SimSource) Read(now time.Time) ([]compass.SampleEvent, error) {
	heading := s.dev.HeadingAt(now)
	scale := 1.0
	freeFall := false
	if s.scn != nil {
		if s.start.IsZero() {
			s.start = now
		}
		st := s.scn.StateAt(now.Sub(s.start), true)
		heading, scale, freeFall = st.HeadingDeg, st.FieldScale, st.FreeFall
	}
	gravity, magnetic := s.dev.Vectors(heading+s.dev.Jitter(), scale)
	if freeFall {
		gravity = compass.Vector3{}
	}
	return []compass.SampleEvent{
		{Kind: compass.Accelerometer, Vec: gravity, At: now},
		{Kind: compass.Magnetometer, Vec: magnetic, At: now},
	}, nil
}

func (s *SimSource) Close() error { return nil }

type imuDevice interface {
	Read() (icm20948.Sample, error)
	ReadMag() (icm20948.MagSample, bool, error)
	Close() error
}

// IMUSource polls an ICM-20948 and its AK09916 magnetometer.
type IMUSource struct {
	bus *i2c.Bus
	dev imuDevice
}

func OpenIMUSource(busNum int, addr uint16) (*IMUSource, error) {
	if addr == 0 {
		addr = icm20948.DefaultAddress()
	}
	path := i2c.BusPath(busNum)
	bus, err := i2c.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sensing: open %s: %w", path, err)
	}
	dev, err := icm20948.New(bus.Dev(addr), bus.Dev(icm20948.MagAddress()))
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("sensing: imu init: %w", err)
	}
	return &IMUSource{bus: bus, dev: dev}, nil
}

func (s *IMUSource) Name() string { return "icm20948" }

// Read returns the accelerometer sample (g converted to m/s²) and, when the
// AK09916 latched a new measurement, the field in µT.
func (s *IMUSource) Read(now time.Time) ([]compass.SampleEvent, error) {
	a, err := s.dev.Read()
	if err != nil {
		return nil, err
	}
	out := make([]compass.SampleEvent, 0, 2)
	out = append(out, compass.SampleEvent{
		Kind: compass.Accelerometer,
		Vec: compass.Vector3{
			X: a.Ax * compass.StandardGravity,
			Y: a.Ay * compass.StandardGravity,
			Z: a.Az * compass.StandardGravity,
		},
		At: now,
	})

	m, ready, err := s.dev.ReadMag()
	if err != nil {
		// Keep the accel sample; the previous field stays in the store.
		return out, err
	}
	if ready {
		out = append(out, compass.SampleEvent{
			Kind: compass.Magnetometer,
			Vec:  compass.Vector3{X: m.Mx, Y: m.My, Z: m.Mz},
			At:   now,
		})
	}
	return out, nil
}

func (s *IMUSource) Close() error {
	var err error
	if s.dev != nil {
		err = multierr.Append(err, s.dev.Close())
	}
	if s.bus != nil {
		err = multierr.Append(err, s.bus.Close())
		s.bus = nil
	}
	return err
}
