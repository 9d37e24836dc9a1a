package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Sensing SensingConfig `yaml:"sensing"`
	Heading HeadingConfig `yaml:"heading"`
	Web     WebConfig     `yaml:"web"`
	NMEA    NMEAConfig    `yaml:"nmea"`
	Log     LogConfig     `yaml:"log"`
}

type SensingConfig struct {
	Enable bool `yaml:"enable"`
	// Source is one of: sim, icm20948, replay.
	Source         string        `yaml:"source"`
	StartActive    *bool         `yaml:"start_active"`
	SampleInterval time.Duration `yaml:"sample_interval"`

	I2CBus  int    `yaml:"i2c_bus"`
	IMUAddr uint16 `yaml:"imu_addr"`

	Activation ActivationConfig `yaml:"activation"`
	Sim        SimConfig        `yaml:"sim"`
	Replay     ReplayConfig     `yaml:"replay"`
	Record     RecordConfig     `yaml:"record"`
}

// ActivationConfig maps a GPIO input line onto activate/deactivate.
type ActivationConfig struct {
	Enable bool `yaml:"enable"`
	// Chip is optional; when empty all /dev/gpiochip* are searched for Line.
	Chip      string `yaml:"chip"`
	Line      string `yaml:"line"`
	ActiveLow bool   `yaml:"active_low"`
}

type SimConfig struct {
	Period            time.Duration `yaml:"period"`
	FieldHorizontalUT float64       `yaml:"field_horizontal_ut"`
	FieldVerticalUT   float64       `yaml:"field_vertical_ut"`
	JitterDeg         float64       `yaml:"jitter_deg"`
	Seed              int64         `yaml:"seed"`
	// Script is an optional YAML heading timeline; it replaces the steady
	// rotation when set.
	Script string `yaml:"script"`
}

type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"`
	Loop  bool    `yaml:"loop"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type HeadingConfig struct {
	Transition     time.Duration `yaml:"transition"`
	MinGravity     float64       `yaml:"min_gravity"`
	MinFieldCross  float64       `yaml:"min_field_cross"`
	RenderInterval time.Duration `yaml:"render_interval"`
}

type WebConfig struct {
	// Listen is the HTTP listen address; empty disables the web server.
	Listen string `yaml:"listen"`
}

type NMEAConfig struct {
	Enable   bool          `yaml:"enable"`
	Dest     string        `yaml:"dest"`
	Interval time.Duration `yaml:"interval"`
	Talker   string        `yaml:"talker"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
	BufferLines int    `yaml:"buffer_lines"`
}

const (
	SourceSim      = "sim"
	SourceICM20948 = "icm20948"
	SourceReplay   = "replay"
)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a config with every default applied and sensing enabled on
// the simulator. It is what the daemon runs with when no file is given.
func Default() Config {
	cfg := Config{Sensing: SensingConfig{Enable: true}}
	_ = DefaultAndValidate(&cfg)
	return cfg
}

// StartsActive reports whether sampling begins active (default true).
func (c SensingConfig) StartsActive() bool {
	return c.StartActive == nil || *c.StartActive
}

// DefaultAndValidate fills defaults in place and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	s := &cfg.Sensing
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	if s.Source == "" {
		s.Source = SourceSim
	}
	switch s.Source {
	case SourceSim, SourceICM20948, SourceReplay:
	default:
		return fmt.Errorf("sensing.source must be one of sim, icm20948, replay")
	}
	if s.SampleInterval < 0 {
		return fmt.Errorf("sensing.sample_interval must be > 0")
	}
	if s.SampleInterval == 0 {
		s.SampleInterval = 20 * time.Millisecond
	}
	if s.I2CBus == 0 {
		s.I2CBus = 1
	}
	if s.Activation.Enable && strings.TrimSpace(s.Activation.Line) == "" {
		return fmt.Errorf("sensing.activation.line is required when sensing.activation.enable is true")
	}

	if s.Sim.Period <= 0 {
		s.Sim.Period = 60 * time.Second
	}
	if s.Sim.FieldHorizontalUT == 0 {
		s.Sim.FieldHorizontalUT = 20
	}
	if s.Sim.FieldVerticalUT == 0 {
		s.Sim.FieldVerticalUT = -40
	}
	if s.Sim.JitterDeg < 0 {
		return fmt.Errorf("sensing.sim.jitter_deg must be >= 0")
	}
	s.Sim.Script = strings.TrimSpace(s.Sim.Script)

	if s.Source == SourceReplay {
		if strings.TrimSpace(s.Replay.Path) == "" {
			return fmt.Errorf("sensing.replay.path is required when sensing.source is replay")
		}
		if s.Record.Enable {
			return fmt.Errorf("sensing.record cannot be used with sensing.source=replay")
		}
	}
	if s.Replay.Speed == 0 {
		s.Replay.Speed = 1
	}
	if s.Replay.Speed < 0 {
		return fmt.Errorf("sensing.replay.speed must be > 0")
	}
	if s.Record.Enable && strings.TrimSpace(s.Record.Path) == "" {
		return fmt.Errorf("sensing.record.path is required when sensing.record.enable is true")
	}

	h := &cfg.Heading
	if h.Transition < 0 {
		return fmt.Errorf("heading.transition must be >= 0")
	}
	if h.Transition == 0 {
		h.Transition = 250 * time.Millisecond
	}
	if h.MinGravity < 0 || h.MinFieldCross < 0 {
		return fmt.Errorf("heading thresholds must be >= 0")
	}
	if h.RenderInterval <= 0 {
		h.RenderInterval = 33 * time.Millisecond
	}

	n := &cfg.NMEA
	if n.Enable && strings.TrimSpace(n.Dest) == "" {
		return fmt.Errorf("nmea.dest is required when nmea.enable is true")
	}
	if n.Interval <= 0 {
		n.Interval = 200 * time.Millisecond
	}
	n.Talker = strings.ToUpper(strings.TrimSpace(n.Talker))
	if n.Talker == "" {
		n.Talker = "HC"
	}
	if len(n.Talker) != 2 {
		return fmt.Errorf("nmea.talker must be 2 characters")
	}

	l := &cfg.Log
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	if l.Level == "" {
		l.Level = "info"
	}
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if l.BufferLines <= 0 {
		l.BufferLines = 2000
	}

	return nil
}
