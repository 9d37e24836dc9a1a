package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"compass-ng/internal/compass"
	"compass-ng/internal/replay"
)

type logSummary struct {
	Segments    int
	Samples     int
	MaxDuration time.Duration
	KindCounts  map[compass.SensorKind]int

	// Fusion outcomes when the log is fed through the estimator in order.
	Fused      int
	Degenerate int
	Incomplete int
	Last       compass.Azimuth
	HaveLast   bool
}

func summarizeSampleLog(records []replay.Record, est compass.Estimator) logSummary {
	s := logSummary{KindCounts: map[compass.SensorKind]int{}}
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	hasSamples := false
	segments := 0
	var store compass.SampleStore

	for _, r := range records {
		if r.Start {
			segments++
			origin = r.At
			continue
		}
		hasSamples = true

		s.Samples++
		s.KindCounts[r.Kind]++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		if err := store.Set(r.Kind, r.Vec, time.Time{}); err != nil {
			continue
		}
		g, m, haveG, haveM := store.Latest()
		if !haveG || !haveM {
			s.Incomplete++
			continue
		}
		az, err := est.Estimate(g, m)
		if errors.Is(err, compass.ErrDegenerate) {
			s.Degenerate++
			continue
		}
		if err != nil {
			continue
		}
		s.Fused++
		s.Last = az
		s.HaveLast = true
	}
	if segments == 0 && hasSamples {
		segments = 1
	}
	s.Segments = segments

	return s
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}

	s := summarizeSampleLog(recs, compass.Estimator{})

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "samples: %d\n", s.Samples)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "kind_counts:\n")
	for _, k := range []compass.SensorKind{compass.Accelerometer, compass.Magnetometer} {
		fmt.Fprintf(w, "  %s: %d\n", k, s.KindCounts[k])
	}
	fmt.Fprintf(w, "fused: %d\n", s.Fused)
	fmt.Fprintf(w, "degenerate: %d\n", s.Degenerate)
	fmt.Fprintf(w, "incomplete: %d\n", s.Incomplete)
	if s.HaveLast {
		fmt.Fprintf(w, "last_heading: %s\n", compass.NewReading(float64(s.Last), true).Text)
	}
	return nil
}
