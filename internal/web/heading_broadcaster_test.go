package web

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"compass-ng/internal/compass"
)

func TestHeadingBroadcaster_ReplaysLastAndDropsWhenFull(t *testing.T) {
	b := NewHeadingBroadcaster()
	b.Publish(HeadingFrame{Reading: compass.NewReading(10, true)})

	id, ch := b.Subscribe(1)
	if got := <-ch; got.Rounded != 10 {
		t.Fatalf("replayed=%+v want 10", got)
	}

	b.Publish(HeadingFrame{Reading: compass.NewReading(20, true)})
	b.Publish(HeadingFrame{Reading: compass.NewReading(30, true)}) // buffer full, dropped
	if got := <-ch; got.Rounded != 20 {
		t.Fatalf("got=%+v want 20", got)
	}
	if last, ok := b.Last(); !ok || last.Rounded != 30 {
		t.Fatalf("last=%+v ok=%v want 30", last, ok)
	}

	b.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Fatalf("expected channel closed after Unsubscribe")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("subscribers=%d", b.Subscribers())
	}
}

func TestHeadingBroadcaster_CloseEndsSubscriptions(t *testing.T) {
	b := NewHeadingBroadcaster()
	id1, ch1 := b.Subscribe(0)
	id2, ch2 := b.Subscribe(0)
	if id1 == id2 {
		t.Fatalf("subscriber ids collide: %v", id1)
	}
	b.Close()
	b.Close()
	for _, ch := range []<-chan HeadingFrame{ch1, ch2} {
		if _, open := <-ch; open {
			t.Fatalf("expected closed channel")
		}
	}
	_, late := b.Subscribe(1)
	if _, open := <-late; open {
		t.Fatalf("subscribe after Close should yield a closed channel")
	}
	b.Unsubscribe(id1)
}

func TestRenderer_PublishesFramesOnTick(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	st := NewStatus()
	frames := NewHeadingBroadcaster()
	r := &Renderer{
		Clock:    mock,
		Interval: 33 * time.Millisecond,
		Heading:  &fakeHeading{reading: compass.NewReading(355, true)},
		Sensing:  &fakeSensing{active: true},
		Frames:   frames,
		Status:   st,
	}
	_, ch := frames.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Wait until the ticker exists on the mock clock.
	deadline := time.Now().Add(2 * time.Second)
	for st.Snapshot(time.Time{}).FramesRendered == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no frame rendered")
		}
		mock.Add(33 * time.Millisecond)
	}

	select {
	case f := <-ch:
		if f.Text != "355°" || !f.Active || f.TimeUTC == "" {
			t.Fatalf("frame=%+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame published")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Run closes the broadcaster on exit.
	for range ch {
	}
}
