package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"compass-ng/internal/compass"
	"compass-ng/internal/config"
	"compass-ng/internal/nmea"
	"compass-ng/internal/web"
)

func TestParseVector(t *testing.T) {
	v, err := parseVector(" 1.5, -2 ,9.80665")
	if err != nil {
		t.Fatalf("parseVector: %v", err)
	}
	if v != (compass.Vector3{X: 1.5, Y: -2, Z: 9.80665}) {
		t.Fatalf("v=%+v", v)
	}
	for _, bad := range []string{"", "1,2", "1,2,3,4", "1,x,3"} {
		if _, err := parseVector(bad); err == nil {
			t.Fatalf("parseVector(%q): expected error", bad)
		}
	}
}

func TestEstimateCommand(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"compass-ng", "estimate", "--gravity", "0,0,9.80665", "--magnetic", "-20,0,-40"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	s := out.String()
	if !strings.Contains(s, "azimuth: -90.00\n") || !strings.Contains(s, "display: 270°\n") || !strings.Contains(s, "rotation:") {
		t.Fatalf("out=%q", s)
	}

	err = newApp(&out).Run([]string{"compass-ng", "estimate", "--gravity", "0,0,0", "--magnetic", "0,20,-40"})
	if err == nil || !strings.Contains(err.Error(), "degenerate") {
		t.Fatalf("err=%v want degenerate", err)
	}
}

func TestSummarizeCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.log")
	body := strings.Join([]string{
		"# compass-ng samples",
		"START",
		"0,accel,0,0,9.80665",
		"20000000,mag,0,20,-40",
		"40000000,accel,0,0,0",
		"60000000,mag,-20,0,-40",
		"80000000,accel,0,0,9.80665",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var out bytes.Buffer
	if err := newApp(&out).Run([]string{"compass-ng", "summarize", path}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{
		"segments: 1\n",
		"samples: 5\n",
		"max_duration: 80ms\n",
		"  accel: 3\n",
		"  mag: 2\n",
		"fused: 2\n",
		"degenerate: 2\n",
		"incomplete: 1\n",
		"last_heading: 270°\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in %q", want, out.String())
		}
	}

	if err := newApp(&out).Run([]string{"compass-ng", "summarize"}); err == nil {
		t.Fatalf("expected error without a path")
	}
}

func TestLoadConfig_DefaultWhenEmpty(t *testing.T) {
	cfg, err := loadConfig("  ")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Sensing.Enable || cfg.Sensing.Source != config.SourceSim || cfg.Heading.Transition != 250*time.Millisecond {
		t.Fatalf("cfg=%+v", cfg)
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDaemon_SimToNMEA(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	cfg := config.Default()
	cfg.NMEA.Enable = true
	cfg.NMEA.Dest = pc.LocalAddr().String()
	cfg.NMEA.Interval = 20 * time.Millisecond

	d, err := newDaemon(cfg, clock.New(), zap.NewNop().Sugar(), web.NewLogBuffer(10))
	if err != nil {
		t.Fatalf("newDaemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	_ = pc.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 128)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		cancel()
		t.Fatalf("ReadFrom: %v", err)
	}
	s, err := nmea.Parse(string(buf[:n]))
	if err != nil {
		cancel()
		t.Fatalf("Parse(%q): %v", buf[:n], err)
	}
	if s.Talker != "HC" || s.Type != "HDM" {
		t.Fatalf("sentence=%+v", s)
	}
	if !d.pipeline.Now().Valid {
		t.Fatalf("pipeline has no heading")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return")
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
