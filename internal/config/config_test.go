package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "sensing:\n  enable: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := Config{
		Sensing: SensingConfig{
			Enable:         true,
			Source:         SourceSim,
			SampleInterval: 20 * time.Millisecond,
			I2CBus:         1,
			Sim: SimConfig{
				Period:            60 * time.Second,
				FieldHorizontalUT: 20,
				FieldVerticalUT:   -40,
			},
			Replay: ReplayConfig{Speed: 1},
		},
		Heading: HeadingConfig{
			Transition:     250 * time.Millisecond,
			RenderInterval: 33 * time.Millisecond,
		},
		NMEA: NMEAConfig{Interval: 200 * time.Millisecond, Talker: "HC"},
		Log:  LogConfig{Level: "info", BufferLines: 2000},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	if !cfg.Sensing.StartsActive() {
		t.Fatalf("expected start_active default true")
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeTempConfig(t, `
sensing:
  enable: true
  source: ICM20948
  start_active: false
  sample_interval: 10ms
  i2c_bus: 3
  imu_addr: 0x69
  activation:
    enable: true
    line: GPIO17
    active_low: true
heading:
  transition: 400ms
  min_gravity: 2.5
web:
  listen: ":8080"
nmea:
  enable: true
  dest: "127.0.0.1:10110"
  talker: hc
log:
  level: DEBUG
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sensing.Source != SourceICM20948 {
		t.Fatalf("source=%q", cfg.Sensing.Source)
	}
	if cfg.Sensing.StartsActive() {
		t.Fatalf("expected start_active=false")
	}
	if cfg.Sensing.IMUAddr != 0x69 || cfg.Sensing.I2CBus != 3 {
		t.Fatalf("i2c bus=%d addr=0x%X", cfg.Sensing.I2CBus, cfg.Sensing.IMUAddr)
	}
	if !cfg.Sensing.Activation.ActiveLow || cfg.Sensing.Activation.Line != "GPIO17" {
		t.Fatalf("activation=%+v", cfg.Sensing.Activation)
	}
	if cfg.Heading.Transition != 400*time.Millisecond || cfg.Heading.MinGravity != 2.5 {
		t.Fatalf("heading=%+v", cfg.Heading)
	}
	if cfg.NMEA.Talker != "HC" || cfg.Log.Level != "debug" || cfg.Web.Listen != ":8080" {
		t.Fatalf("nmea=%+v log=%+v web=%+v", cfg.NMEA, cfg.Log, cfg.Web)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown source",
			yaml: "sensing:\n  source: gyro\n",
			want: "sensing.source must be one of sim, icm20948, replay",
		},
		{
			name: "replay needs path",
			yaml: "sensing:\n  source: replay\n",
			want: "sensing.replay.path is required when sensing.source is replay",
		},
		{
			name: "replay and record",
			yaml: "sensing:\n  source: replay\n  replay:\n    path: a.log\n  record:\n    enable: true\n    path: b.log\n",
			want: "sensing.record cannot be used with sensing.source=replay",
		},
		{
			name: "record needs path",
			yaml: "sensing:\n  record:\n    enable: true\n",
			want: "sensing.record.path is required when sensing.record.enable is true",
		},
		{
			name: "negative speed",
			yaml: "sensing:\n  replay:\n    speed: -2\n",
			want: "sensing.replay.speed must be > 0",
		},
		{
			name: "activation needs line",
			yaml: "sensing:\n  activation:\n    enable: true\n",
			want: "sensing.activation.line is required when sensing.activation.enable is true",
		},
		{
			name: "negative transition",
			yaml: "heading:\n  transition: -1s\n",
			want: "heading.transition must be >= 0",
		},
		{
			name: "nmea needs dest",
			yaml: "nmea:\n  enable: true\n",
			want: "nmea.dest is required when nmea.enable is true",
		},
		{
			name: "bad talker",
			yaml: "nmea:\n  talker: HCX\n",
			want: "nmea.talker must be 2 characters",
		},
		{
			name: "bad log level",
			yaml: "log:\n  level: loud\n",
			want: "log.level must be one of debug, info, warn, error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if !cfg.Sensing.Enable || cfg.Sensing.Source != SourceSim {
		t.Fatalf("sensing=%+v", cfg.Sensing)
	}
	if cfg.Heading.Transition != 250*time.Millisecond {
		t.Fatalf("transition=%s", cfg.Heading.Transition)
	}
}

func TestLoad_ShippedConfigs(t *testing.T) {
	for _, name := range []string{"dev.yaml", "pi.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(filepath.Join("..", "..", "configs", name))
			if err != nil {
				t.Fatalf("Load(%s): %v", name, err)
			}
			if !cfg.Sensing.Enable || cfg.Heading.Transition != 250*time.Millisecond {
				t.Fatalf("cfg=%+v", cfg)
			}
		})
	}
}
