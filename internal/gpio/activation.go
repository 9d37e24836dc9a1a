// Package gpio maps a digital input line (lid switch, display enable) onto
// sensing activation.
package gpio

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Controller is what the line drives; sensing.Service satisfies it.
type Controller interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

type Config struct {
	// Chip is a /dev/gpiochipN path or name; empty searches every chip.
	Chip string
	// Line is a line name (e.g. "GPIO17") or a numeric offset.
	Line      string
	ActiveLow bool
}

// openLineFn requests the line with both-edge events and reports the level
// through onLevel. It returns the initial level.
var openLineFn = openLine

// Watcher follows the line level and activates sensing while it is asserted.
type Watcher struct {
	cfg Config
	ctl Controller
	log *zap.SugaredLogger

	levels chan bool
}

func NewWatcher(cfg Config, ctl Controller, log *zap.SugaredLogger) *Watcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{cfg: cfg, ctl: ctl, log: log.Named("gpio"), levels: make(chan bool, 1)}
}

// Run opens the line and applies level changes until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if w.ctl == nil {
		return fmt.Errorf("gpio: controller is nil")
	}
	line, initial, err := openLineFn(w.cfg.Chip, w.cfg.Line, w.onLevel)
	if err != nil {
		return fmt.Errorf("gpio: activation line %q: %w", w.cfg.Line, err)
	}
	defer line.Close()
	w.log.Infow("activation line ready", "line", w.cfg.Line, "chip", w.cfg.Chip, "active_low", w.cfg.ActiveLow)
	w.onLevel(initial)
	return w.loop(ctx)
}

// onLevel keeps only the newest level; intermediate bounces are irrelevant.
func (w *Watcher) onLevel(high bool) {
	for {
		select {
		case w.levels <- high:
			return
		default:
		}
		select {
		case <-w.levels:
		default:
		}
	}
}

func (w *Watcher) loop(ctx context.Context) error {
	var have, last bool
	for {
		select {
		case <-ctx.Done():
			return nil
		case high := <-w.levels:
			active := high != w.cfg.ActiveLow
			if have && active == last {
				continue
			}
			var err error
			if active {
				err = w.ctl.Activate(ctx)
			} else {
				err = w.ctl.Deactivate(ctx)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.log.Warnw("apply activation line", "active", active, "err", err)
				continue
			}
			have, last = true, active
			w.log.Debugw("activation line changed", "active", active)
		}
	}
}
