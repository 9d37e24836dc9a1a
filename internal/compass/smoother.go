package compass

import (
	"fmt"
	"math"
	"time"
)

// DefaultTransition is the length of one animated hop toward a new target.
const DefaultTransition = 250 * time.Millisecond

// ShortestArc normalizes an angular difference in degrees into (-180, 180].
func ShortestArc(deltaDeg float64) float64 {
	d := math.Mod(deltaDeg, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

// Smoother turns raw azimuths into a continuous displayed heading.
//
// Every raw azimuth restarts a linear transition from the currently displayed
// value toward the target along the shortest arc. At high sample rates the
// transition rarely completes, which yields near-linear tracking instead of
// discrete hops. That is the intended look; samples are not coalesced.
//
// The displayed heading is unbounded: crossing the ±180 seam keeps the value
// continuous (5 -> 355 animates to -5), so a rotating indicator never spins
// the long way round. Use Reading for a [0,360) view.
//
// Smoother is not safe for concurrent use; Pipeline guards it.
type Smoother struct {
	duration time.Duration

	display float64
	from    float64
	to      float64
	start   time.Time
	active  bool
	started bool
}

// NewSmoother returns a smoother with the given transition length.
// A non-positive duration makes every update take effect immediately.
func NewSmoother(transition time.Duration) *Smoother {
	return &Smoother{duration: transition}
}

func (s *Smoother) Duration() time.Duration { return s.duration }

// OnRawHeading starts a new transition toward target at now.
func (s *Smoother) OnRawHeading(target Azimuth, now time.Time) {
	cur := s.CurrentDisplayHeading(now)
	delta := ShortestArc(float64(target) - cur)
	s.from = cur
	s.to = cur + delta
	s.start = now
	s.active = true
	s.started = true
	s.display = cur
}

// CurrentDisplayHeading interpolates the displayed heading at now.
// Before the first raw azimuth it is 0.
func (s *Smoother) CurrentDisplayHeading(now time.Time) float64 {
	if !s.active {
		return s.display
	}
	f := s.fraction(now)
	v := s.from + (s.to-s.from)*f
	if f >= 1 {
		// Hold at the target until the next raw update.
		s.display = s.to
		s.active = false
		return s.to
	}
	return v
}

// Target returns the end value of the current (or last) transition.
func (s *Smoother) Target() (float64, bool) {
	return s.to, s.started
}

// Transitioning reports whether a transition is still running at now.
func (s *Smoother) Transitioning(now time.Time) bool {
	return s.active && s.fraction(now) < 1
}

func (s *Smoother) fraction(now time.Time) float64 {
	if s.duration <= 0 {
		return 1
	}
	f := float64(now.Sub(s.start)) / float64(s.duration)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Reading is the displayed heading in the forms the display layer consumes.
type Reading struct {
	// Degrees is the continuous indicator angle.
	Degrees float64 `json:"degrees"`
	// Rounded is round(Degrees) folded into [0, 360).
	Rounded int    `json:"rounded"`
	Text    string `json:"text"`
	Valid   bool   `json:"valid"`
}

// NewReading derives the rounded and text forms from a displayed heading.
func NewReading(deg float64, valid bool) Reading {
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return Reading{
		Degrees: deg,
		Rounded: r,
		Text:    fmt.Sprintf("%d°", r),
		Valid:   valid,
	}
}
