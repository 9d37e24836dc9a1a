package web

import (
	"sync"

	"github.com/google/uuid"

	"compass-ng/internal/compass"
)

// HeadingFrame is one rendered sample of the displayed heading.
type HeadingFrame struct {
	compass.Reading
	Active  bool   `json:"active"`
	TimeUTC string `json:"time_utc"`
}

// HeadingBroadcaster fans out rendered heading frames to stream listeners.
// It keeps the most recent frame so new subscribers get an immediate sample.
type HeadingBroadcaster struct {
	mu       sync.RWMutex
	subs     map[uuid.UUID]chan HeadingFrame
	last     HeadingFrame
	haveLast bool
	closed   bool
}

func NewHeadingBroadcaster() *HeadingBroadcaster {
	return &HeadingBroadcaster{
		subs: make(map[uuid.UUID]chan HeadingFrame),
	}
}

func (b *HeadingBroadcaster) Subscribe(buffer int) (uuid.UUID, <-chan HeadingFrame) {
	if b == nil {
		return uuid.Nil, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan HeadingFrame, buffer)
	id := uuid.New()
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *HeadingBroadcaster) Unsubscribe(id uuid.UUID) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *HeadingBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers f to every subscriber. Slow subscribers miss frames
// rather than stalling the render loop.
func (b *HeadingBroadcaster) Publish(f HeadingFrame) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = f
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (b *HeadingBroadcaster) Last() (HeadingFrame, bool) {
	if b == nil {
		return HeadingFrame{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}

// Close ends every subscription; streams see their channel close and exit.
func (b *HeadingBroadcaster) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
