package replay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"compass-ng/internal/compass"
)

// Sample log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<kind>,<x>,<y>,<z>
//   where t_ns is nanoseconds since START, kind is accel or mag, and x/y/z are
//   m/s² (accel) or µT (mag) in device axes.

type Record struct {
	At time.Duration
	// Start marks a START line; Kind and Vec are unset.
	Start bool
	Kind  compass.SensorKind
	Vec   compass.Vector3
}

// Event converts a data record into a sample stamped at.
func (r Record) Event(at time.Time) compass.SampleEvent {
	return compass.SampleEvent{Kind: r.Kind, Vec: r.Vec, At: at}
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 5 {
		return Record{}, fmt.Errorf("want 5 fields, got %d: %q", len(parts), line)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	tsNs, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid timestamp %q: %w", parts[0], err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid timestamp (negative): %d", tsNs)
	}
	kind, err := compass.ParseSensorKind(parts[1])
	if err != nil {
		return Record{}, err
	}
	var xyz [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(parts[2+i], 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid component %q: %w", parts[2+i], err)
		}
		xyz[i] = v
	}
	return Record{
		At:   time.Duration(tsNs),
		Kind: kind,
		Vec:  compass.Vector3{X: xyz[0], Y: xyz[1], Z: xyz[2]},
	}, nil
}

// ReadFile loads a sample log from disk.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

type Writer struct {
	f       *os.File
	w       *bufio.Writer
	start   time.Time
	session uuid.UUID
	closed  bool
}

func CreateWriter(path string, start time.Time) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	ww := &Writer{f: f, w: bufio.NewWriterSize(f, 64*1024), start: start, session: uuid.New()}
	if _, err := fmt.Fprintf(ww.w, "# compass-ng samples session=%s started=%s\nSTART\n",
		ww.session, start.UTC().Format(time.RFC3339Nano)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return ww, nil
}

func (ww *Writer) Session() uuid.UUID { return ww.session }

func (ww *Writer) WriteSample(ev compass.SampleEvent) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	d := ev.At.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s,%s,%s,%s\n", d.Nanoseconds(), ev.Kind,
		formatFloat(ev.Vec.X), formatFloat(ev.Vec.Y), formatFloat(ev.Vec.Z))
	return err
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays records with their relative timing.
//
// cb is invoked for every data record; START markers reset the origin.
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
// Play returns ctx.Err() once ctx is done.
func Play(ctx context.Context, records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(Record) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}

	for {
		var origin time.Duration
		var lastAt time.Duration
		var haveLast bool

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Start {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(r); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
