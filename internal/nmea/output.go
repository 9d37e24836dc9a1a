package nmea

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"compass-ng/internal/compass"
)

// HeadingSource yields the displayed heading.
type HeadingSource interface {
	Now() compass.Reading
}

// Sink receives one complete sentence per call (one UDP datagram).
type Sink interface {
	Send(payload []byte) error
}

type OutputConfig struct {
	Talker string
	// Poll is how often the heading is sampled for changes.
	Poll time.Duration
	// Interval is the minimum spacing between sentences.
	Interval time.Duration
	// Keepalive re-sends an unchanged heading after this long.
	Keepalive time.Duration
	Clock     clock.Clock
	Logger    *zap.SugaredLogger
}

// Output emits HDM sentences when the rounded heading changes, at most once
// per Interval, and repeats the last heading every Keepalive. Invalid
// readings produce nothing.
type Output struct {
	cfg     OutputConfig
	heading HeadingSource
	sink    Sink
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	haveLast    bool
	lastRounded int
	lastSent    time.Time
	sent        atomic.Uint64
	lastErr     string
}

func NewOutput(cfg OutputConfig, heading HeadingSource, sink Sink) (*Output, error) {
	if heading == nil || sink == nil {
		return nil, fmt.Errorf("nmea: heading source and sink are required")
	}
	if cfg.Talker == "" {
		cfg.Talker = "HC"
	}
	if _, err := HDM(cfg.Talker, 0); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 200 * time.Millisecond
	}
	if cfg.Poll <= 0 || cfg.Poll > cfg.Interval {
		cfg.Poll = cfg.Interval / 4
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Output{
		cfg:     cfg,
		heading: heading,
		sink:    sink,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		log:     log.Named("nmea"),
	}, nil
}

// Sent is the number of sentences handed to the sink.
func (o *Output) Sent() uint64 { return o.sent.Load() }

// next returns the sentence due at now, if any.
func (o *Output) next(now time.Time) (string, bool) {
	r := o.heading.Now()
	if !r.Valid {
		return "", false
	}
	changed := !o.haveLast || r.Rounded != o.lastRounded
	due := o.lastSent.IsZero() || now.Sub(o.lastSent) >= o.cfg.Keepalive
	if !changed && !due {
		return "", false
	}
	if !o.limiter.AllowN(now, 1) {
		return "", false
	}
	s, err := HDM(o.cfg.Talker, float64(r.Rounded))
	if err != nil {
		return "", false
	}
	o.haveLast = true
	o.lastRounded = r.Rounded
	o.lastSent = now
	return s, true
}

// Run polls until ctx is done. Send errors are logged once per distinct
// message and never stop the loop.
func (o *Output) Run(ctx context.Context) error {
	t := o.cfg.Clock.Ticker(o.cfg.Poll)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s, ok := o.next(o.cfg.Clock.Now())
			if !ok {
				continue
			}
			if err := o.sink.Send([]byte(s)); err != nil {
				if msg := err.Error(); msg != o.lastErr {
					o.log.Warnw("send failed", "error", err)
					o.lastErr = msg
				}
				continue
			}
			if o.lastErr != "" {
				o.log.Infow("send recovered")
				o.lastErr = ""
			}
			o.sent.Add(1)
		}
	}
}
