package web

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// Renderer samples the displayed heading at a fixed frame rate and publishes
// it to stream subscribers. Sampling the smoother rather than forwarding raw
// azimuths is what makes the indicator rotate smoothly.
type Renderer struct {
	Clock    clock.Clock
	Interval time.Duration
	Heading  HeadingSource
	Sensing  SensingController
	Frames   *HeadingBroadcaster
	Status   *Status
}

// Frame renders one frame at the current clock time.
func (r *Renderer) Frame() HeadingFrame {
	now := r.Clock.Now().UTC()
	f := HeadingFrame{Reading: r.Heading.Now(), TimeUTC: now.Format(time.RFC3339Nano)}
	if r.Sensing != nil {
		f.Active = r.Sensing.Snapshot().Active
	}
	return f
}

// Run publishes a frame every Interval until ctx is done, then closes Frames.
func (r *Renderer) Run(ctx context.Context) error {
	if r.Clock == nil {
		r.Clock = clock.New()
	}
	if r.Interval <= 0 {
		r.Interval = 33 * time.Millisecond
	}
	tick := r.Clock.Ticker(r.Interval)
	defer tick.Stop()
	defer r.Frames.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			f := r.Frame()
			r.Frames.Publish(f)
			if r.Status != nil {
				r.Status.MarkFrame(r.Clock.Now().UTC())
			}
		}
	}
}
