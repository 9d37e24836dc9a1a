package compass

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type PipelineConfig struct {
	Transition time.Duration
	Estimator  Estimator
	Clock      clock.Clock
}

// Stats counts what happened to ingested samples.
type Stats struct {
	Samples    uint64 `json:"samples"`
	Accepted   uint64 `json:"accepted"`
	Degenerate uint64 `json:"degenerate"`
	Incomplete uint64 `json:"incomplete"`
	Rejected   uint64 `json:"rejected"`

	HaveAzimuth bool      `json:"have_azimuth"`
	LastAzimuth Azimuth   `json:"last_azimuth"`
	LastFusedAt time.Time `json:"last_fused_at"`
}

// Pipeline wires SampleStore, Estimator and Smoother together.
//
// Ingestion and heading queries may run on different goroutines; all state
// is guarded by one mutex. Nothing blocks while it is held.
type Pipeline struct {
	clk clock.Clock
	est Estimator

	mu       sync.Mutex
	store    SampleStore
	smoother *Smoother
	stats    Stats
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Transition == 0 {
		cfg.Transition = DefaultTransition
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Pipeline{
		clk:      cfg.Clock,
		est:      cfg.Estimator,
		smoother: NewSmoother(cfg.Transition),
	}
}

func (p *Pipeline) Clock() clock.Clock { return p.clk }

// Ingest stores ev and re-estimates using the latest reading of the other
// sensor. On ErrDegenerate (including ErrIncomplete) the displayed heading is
// left untouched; callers are expected to drop the error and wait for the
// next sample.
func (p *Pipeline) Ingest(ev SampleEvent) (Azimuth, error) {
	now := p.clk.Now()
	at := ev.At
	if at.IsZero() {
		at = now
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Samples++
	if err := p.store.Set(ev.Kind, ev.Vec, at); err != nil {
		p.stats.Rejected++
		return 0, err
	}
	gravity, magnetic, haveG, haveM := p.store.Latest()
	if !haveG || !haveM {
		p.stats.Incomplete++
		return 0, ErrIncomplete
	}
	az, err := p.est.Estimate(gravity, magnetic)
	if err != nil {
		if errors.Is(err, ErrDegenerate) {
			p.stats.Degenerate++
		}
		return 0, err
	}
	p.smoother.OnRawHeading(az, now)
	p.stats.Accepted++
	p.stats.HaveAzimuth = true
	p.stats.LastAzimuth = az
	p.stats.LastFusedAt = now
	return az, nil
}

// Heading returns the displayed heading at now. Valid is false until the
// first successful fusion.
func (p *Pipeline) Heading(now time.Time) Reading {
	p.mu.Lock()
	defer p.mu.Unlock()
	return NewReading(p.smoother.CurrentDisplayHeading(now), p.stats.HaveAzimuth)
}

// Now is Heading at the pipeline clock's current time.
func (p *Pipeline) Now() Reading {
	return p.Heading(p.clk.Now())
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Latest returns the stored readings; see SampleStore.Latest.
func (p *Pipeline) Latest() (gravity, magnetic Vector3, haveGravity, haveMagnetic bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Latest()
}
