package sensing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"compass-ng/internal/compass"
)

// Recorder receives every sample the service ingests.
type Recorder interface {
	WriteSample(ev compass.SampleEvent) error
}

type Config struct {
	SampleInterval time.Duration
	StartActive    bool

	Clock    clock.Clock
	Logger   *zap.SugaredLogger
	Recorder Recorder
}

type Snapshot struct {
	Source  string `json:"source"`
	Running bool   `json:"running"`
	Active  bool   `json:"active"`

	Ingested uint64 `json:"ingested"`
	// Dropped counts pushed samples that arrived while inactive.
	Dropped uint64 `json:"dropped"`

	LastSampleAt time.Time `json:"last_sample_at"`
	ActiveSince  time.Time `json:"active_since"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Service owns sample delivery into a compass.Pipeline.
//
// A single goroutine polls the source at SampleInterval, drains pushed
// samples and applies activate/deactivate requests, so the pipeline only
// ever sees one writer. While inactive nothing reaches the pipeline and the
// displayed heading freezes.
type Service struct {
	cfg      Config
	src      Source
	pipeline *compass.Pipeline
	clk      clock.Clock
	log      *zap.SugaredLogger

	ctlCh     chan ctlReq
	samplesCh chan compass.SampleEvent

	mu   sync.RWMutex
	snap Snapshot

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type ctlReq struct {
	active bool
	done   chan error
}

// New returns a stopped service. src may be nil for push-only operation.
func New(cfg Config, src Source, p *compass.Pipeline) *Service {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 20 * time.Millisecond
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	name := "push"
	if src != nil {
		name = src.Name()
	}
	return &Service{
		cfg:       cfg,
		src:       src,
		pipeline:  p,
		clk:       cfg.Clock,
		log:       cfg.Logger.Named("sensing"),
		ctlCh:     make(chan ctlReq, 1),
		samplesCh: make(chan compass.SampleEvent, 64),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		snap:      Snapshot{Source: name},
	}
}

func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start launches the run loop. It returns once the loop is scheduled.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sensing: service is nil")
	}
	if s.pipeline == nil {
		return fmt.Errorf("sensing: pipeline is nil")
	}
	started := false
	s.startOnce.Do(func() {
		started = true
		// Create the ticker before the goroutine so mock clocks see it.
		tick := s.clk.Ticker(s.cfg.SampleInterval)
		now := s.clk.Now()
		s.mu.Lock()
		s.snap.Running = true
		s.snap.UpdatedAt = now
		if s.cfg.StartActive {
			s.snap.Active = true
			s.snap.ActiveSince = now
		}
		s.mu.Unlock()
		s.log.Infow("sensing started", "source", s.snap.Source, "interval", s.cfg.SampleInterval, "active", s.cfg.StartActive)
		go s.run(ctx, tick)
	})
	if !started {
		return fmt.Errorf("sensing: already started")
	}
	return nil
}

// Wait blocks until the run loop has exited.
func (s *Service) Wait() {
	<-s.doneCh
}

// Close stops the run loop and closes the source.
func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.src != nil {
			err = s.src.Close()
		}
	})
	return err
}

// Activate starts sample delivery.
func (s *Service) Activate(ctx context.Context) error {
	return s.setActive(ctx, true)
}

// Deactivate stops sample delivery. An in-flight heading transition is not
// cancelled; the display simply holds once it completes.
func (s *Service) Deactivate(ctx context.Context) error {
	return s.setActive(ctx, false)
}

func (s *Service) setActive(ctx context.Context, active bool) error {
	if s == nil {
		return fmt.Errorf("sensing: service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan error, 1)
	select {
	case s.ctlCh <- ctlReq{active: active, done: done}:
	case <-s.stopCh:
		return fmt.Errorf("sensing: service is stopped")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-s.stopCh:
		return fmt.Errorf("sensing: service is stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver pushes one sample into the run loop. Samples delivered while the
// service is inactive are dropped.
func (s *Service) Deliver(ctx context.Context, ev compass.SampleEvent) error {
	if s == nil {
		return fmt.Errorf("sensing: service is nil")
	}
	select {
	case s.samplesCh <- ev:
		return nil
	case <-s.stopCh:
		return fmt.Errorf("sensing: service is stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, tick *clock.Ticker) {
	defer close(s.doneCh)
	defer tick.Stop()

	active := s.cfg.StartActive
	var lastErr string

	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.stopCh:
			return
		case req := <-s.ctlCh:
			if req.active != active {
				active = req.active
				now := s.clk.Now()
				s.mu.Lock()
				s.snap.Active = active
				if active {
					s.snap.ActiveSince = now
				}
				s.snap.UpdatedAt = now
				s.mu.Unlock()
				if active {
					s.log.Infow("sensing activated")
				} else {
					s.log.Infow("sensing deactivated")
				}
			}
			req.done <- nil
		case ev := <-s.samplesCh:
			if !active {
				s.mu.Lock()
				s.snap.Dropped++
				s.mu.Unlock()
				continue
			}
			if ev.At.IsZero() {
				ev.At = s.clk.Now()
			}
			s.ingest(ev)
		case <-tick.C:
			if !active || s.src == nil {
				continue
			}
			evs, err := s.src.Read(s.clk.Now())
			for _, ev := range evs {
				s.ingest(ev)
			}
			if err != nil {
				msg := err.Error()
				if msg != lastErr {
					s.log.Warnw("source read failed", "source", s.src.Name(), "err", err)
				}
				lastErr = msg
				s.setErr(msg)
				continue
			}
			if lastErr != "" {
				s.log.Infow("source recovered", "source", s.src.Name())
				lastErr = ""
				s.setErr("")
			}
		}
	}
}

func (s *Service) ingest(ev compass.SampleEvent) {
	if s.cfg.Recorder != nil {
		if err := s.cfg.Recorder.WriteSample(ev); err != nil {
			s.log.Warnw("record sample failed", "err", err)
		}
	}

	_, err := s.pipeline.Ingest(ev)
	switch {
	case err == nil:
	case errors.Is(err, compass.ErrDegenerate):
		// Expected during free fall, near poles, or before both sensors reported.
		s.log.Debugw("fusion skipped", "kind", ev.Kind, "err", err)
	default:
		s.log.Debugw("sample rejected", "kind", ev.Kind, "err", err)
	}

	s.mu.Lock()
	s.snap.Ingested++
	s.snap.LastSampleAt = ev.At
	s.snap.UpdatedAt = s.clk.Now()
	s.mu.Unlock()
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.UpdatedAt = s.clk.Now()
}
