package gpio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type fakeController struct {
	mu    sync.Mutex
	calls []bool
}

func (f *fakeController) Activate(ctx context.Context) error   { return f.record(true) }
func (f *fakeController) Deactivate(ctx context.Context) error { return f.record(false) }

func (f *fakeController) record(active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, active)
	return nil
}

func (f *fakeController) snapshot() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

type fakeLine struct {
	closed chan struct{}
}

func (f *fakeLine) Close() error {
	close(f.closed)
	return nil
}

func waitCalls(t *testing.T, ctl *fakeController, want []bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := ctl.snapshot()
		if len(got) == len(want) {
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("calls=%v want %v", got, want)
				}
			}
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("calls=%v want %v", ctl.snapshot(), want)
}

func withFakeLine(t *testing.T, initial bool) (*fakeLine, *func(bool)) {
	t.Helper()
	line := &fakeLine{closed: make(chan struct{})}
	var emit func(bool)
	old := openLineFn
	openLineFn = func(chip, name string, onLevel func(high bool)) (io.Closer, bool, error) {
		emit = onLevel
		return line, initial, nil
	}
	t.Cleanup(func() { openLineFn = old })
	return line, &emit
}

func TestWatcher_FollowsLevelAndSkipsRepeats(t *testing.T) {
	line, emit := withFakeLine(t, true)
	ctl := &fakeController{}
	w := NewWatcher(Config{Line: "GPIO17"}, ctl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	waitCalls(t, ctl, []bool{true})
	(*emit)(true)
	(*emit)(false)
	waitCalls(t, ctl, []bool{true, false})

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-line.closed:
	default:
		t.Fatalf("expected line closed")
	}
}

func TestWatcher_ActiveLowInverts(t *testing.T) {
	_, emit := withFakeLine(t, true)
	ctl := &fakeController{}
	w := NewWatcher(Config{Line: "5", ActiveLow: true}, ctl, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	waitCalls(t, ctl, []bool{false})
	(*emit)(false)
	waitCalls(t, ctl, []bool{false, true})
}

func TestWatcher_OpenFailure(t *testing.T) {
	old := openLineFn
	openLineFn = func(chip, name string, onLevel func(high bool)) (io.Closer, bool, error) {
		return nil, false, errors.New("not found")
	}
	t.Cleanup(func() { openLineFn = old })

	w := NewWatcher(Config{Line: "GPIO99"}, &fakeController{}, nil)
	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := NewWatcher(Config{}, nil, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil controller")
	}
}

func TestOnLevel_KeepsNewest(t *testing.T) {
	w := NewWatcher(Config{}, &fakeController{}, nil)
	w.onLevel(true)
	w.onLevel(false)
	w.onLevel(true)
	if got := <-w.levels; got != true {
		t.Fatalf("got=%v want true", got)
	}
	select {
	case v := <-w.levels:
		t.Fatalf("unexpected queued level %v", v)
	default:
	}
}
