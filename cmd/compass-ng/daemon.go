package main

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"compass-ng/internal/compass"
	"compass-ng/internal/config"
	"compass-ng/internal/gpio"
	"compass-ng/internal/logging"
	"compass-ng/internal/nmea"
	"compass-ng/internal/replay"
	"compass-ng/internal/sensing"
	"compass-ng/internal/udp"
	"compass-ng/internal/web"
)

// daemon holds everything runDaemon starts, so it can be torn down in one
// place.
type daemon struct {
	cfg config.Config
	clk clock.Clock
	log *zap.SugaredLogger

	logs     *web.LogBuffer
	pipeline *compass.Pipeline
	sensing  *sensing.Service
	recorder *replay.Writer
	records  []replay.Record
	nmeaOut  *udp.Broadcaster
	status   *web.Status
	frames   *web.HeadingBroadcaster
}

func newDaemon(cfg config.Config, clk clock.Clock, log *zap.SugaredLogger, logs *web.LogBuffer) (*daemon, error) {
	if err := config.DefaultAndValidate(&cfg); err != nil {
		return nil, err
	}
	r := &daemon{cfg: cfg, clk: clk, log: log, logs: logs, status: web.NewStatus(), frames: web.NewHeadingBroadcaster()}

	r.pipeline = compass.NewPipeline(compass.PipelineConfig{
		Transition: cfg.Heading.Transition,
		Estimator: compass.Estimator{
			MinGravity:    cfg.Heading.MinGravity,
			MinFieldCross: cfg.Heading.MinFieldCross,
		},
		Clock: clk,
	})

	var src sensing.Source
	sourceName := "push"
	if cfg.Sensing.Enable {
		var err error
		src, err = sensing.OpenSource(cfg.Sensing)
		if err != nil {
			return nil, err
		}
		sourceName = cfg.Sensing.Source
		if cfg.Sensing.Source == config.SourceReplay {
			r.records, err = replay.ReadFile(cfg.Sensing.Replay.Path)
			if err != nil {
				return nil, fmt.Errorf("replay load failed: %w", err)
			}
		}
	}

	var rec sensing.Recorder
	if cfg.Sensing.Enable && cfg.Sensing.Record.Enable {
		w, err := replay.CreateWriter(cfg.Sensing.Record.Path, clk.Now())
		if err != nil {
			if src != nil {
				_ = src.Close()
			}
			return nil, fmt.Errorf("record open failed: %w", err)
		}
		r.recorder = w
		rec = w
		log.Infow("recording samples", "path", cfg.Sensing.Record.Path, "session", w.Session())
	}

	r.sensing = sensing.New(sensing.Config{
		SampleInterval: cfg.Sensing.SampleInterval,
		StartActive:    cfg.Sensing.StartsActive(),
		Clock:          clk,
		Logger:         log,
		Recorder:       rec,
	}, src, r.pipeline)

	if cfg.NMEA.Enable {
		b, err := udp.NewBroadcaster(cfg.NMEA.Dest)
		if err != nil {
			_ = r.Close()
			return nil, err
		}
		r.nmeaOut = b
	}

	r.status.SetStatic(sourceName, cfg.NMEA.Dest, cfg.Heading.RenderInterval.String())
	r.status.SetHeadingSettings(web.HeadingSettings{
		Transition:    cfg.Heading.Transition.String(),
		MinGravity:    cfg.Heading.MinGravity,
		MinFieldCross: cfg.Heading.MinFieldCross,
	})
	return r, nil
}

// Run starts every configured component and blocks until ctx is done or one
// of them fails.
func (r *daemon) Run(ctx context.Context) error {
	if err := r.sensing.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		_ = r.sensing.Close()
		r.sensing.Wait()
		return nil
	})

	if r.records != nil {
		s := r.cfg.Sensing.Replay
		g.Go(func() error {
			// A finished replay leaves the last heading on display.
			return sensing.Replay(gctx, r.sensing, r.records, s.Speed, s.Loop)
		})
	}

	if a := r.cfg.Sensing.Activation; a.Enable {
		w := gpio.NewWatcher(gpio.Config{Chip: a.Chip, Line: a.Line, ActiveLow: a.ActiveLow}, r.sensing, r.log)
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				// Sensing keeps its current state; the API can still toggle it.
				r.log.Warnw("activation line unavailable", "line", a.Line, "error", err)
			}
			return nil
		})
	}

	if r.nmeaOut != nil {
		out, err := nmea.NewOutput(nmea.OutputConfig{
			Talker:   r.cfg.NMEA.Talker,
			Interval: r.cfg.NMEA.Interval,
			Clock:    r.clk,
			Logger:   r.log,
		}, r.pipeline, r.nmeaOut)
		if err != nil {
			return err
		}
		r.log.Infow("nmea output", "dest", r.cfg.NMEA.Dest, "interval", r.cfg.NMEA.Interval, "talker", r.cfg.NMEA.Talker)
		g.Go(func() error { return out.Run(gctx) })
	}

	if listen := r.cfg.Web.Listen; listen != "" {
		renderer := &web.Renderer{
			Clock:    r.clk,
			Interval: r.cfg.Heading.RenderInterval,
			Heading:  r.pipeline,
			Sensing:  r.sensing,
			Frames:   r.frames,
			Status:   r.status,
		}
		g.Go(func() error { return renderer.Run(gctx) })

		h := web.Handler(r.status, r.pipeline, r.sensing, r.frames, r.logs)
		r.log.Infow("web listening", "addr", listen)
		g.Go(func() error { return web.Serve(gctx, listen, h) })
	}

	return g.Wait()
}

func (r *daemon) Close() error {
	var err error
	if r.sensing != nil {
		err = multierr.Append(err, r.sensing.Close())
	}
	if r.recorder != nil {
		err = multierr.Append(err, r.recorder.Close())
	}
	if r.nmeaOut != nil {
		err = multierr.Append(err, r.nmeaOut.Close())
	}
	return err
}

func runDaemon(ctx context.Context, cfg config.Config) error {
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	zl, err := logging.New(cfg.Log, nil, logs)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	d, err := newDaemon(cfg, clock.New(), log, logs)
	if err != nil {
		return err
	}
	log.Infow("compass-ng starting",
		"source", cfg.Sensing.Source,
		"sample_interval", cfg.Sensing.SampleInterval,
		"transition", cfg.Heading.Transition,
	)

	runErr := d.Run(ctx)
	closeErr := d.Close()
	log.Infow("compass-ng stopped")
	return multierr.Combine(runErr, closeErr)
}
