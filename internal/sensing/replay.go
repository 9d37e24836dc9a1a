package sensing

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"compass-ng/internal/replay"
)

type clockSleeper struct {
	clk clock.Clock
}

func (c clockSleeper) Sleep(d time.Duration) { c.clk.Sleep(d) }

// Replay pushes a recorded sample log through svc.Deliver with its original
// timing scaled by speed. Samples are restamped with the service clock.
func Replay(ctx context.Context, svc *Service, records []replay.Record, speed float64, loop bool) error {
	clk := svc.clk
	svc.log.Infow("replay started", "records", len(records), "speed", speed, "loop", loop)
	err := replay.Play(ctx, records, speed, loop, clockSleeper{clk: clk}, func(r replay.Record) error {
		return svc.Deliver(ctx, r.Event(clk.Now()))
	})
	if err != nil && ctx.Err() == nil {
		svc.log.Warnw("replay stopped", "err", err)
		return err
	}
	svc.log.Infow("replay finished")
	return nil
}
