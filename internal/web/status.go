package web

import (
	"sync/atomic"
	"time"

	"compass-ng/internal/compass"
	"compass-ng/internal/sensing"
)

type Status struct {
	startUnixNano int64
	framesSent    uint64
	lastFrameNano int64
	source        atomic.Value // string
	nmeaDest      atomic.Value // string
	interval      atomic.Value // string
	heading       atomic.Value // HeadingSettings
}

func NewStatus() *Status {
	s := &Status{}
	now := time.Now().UTC()
	atomic.StoreInt64(&s.startUnixNano, now.UnixNano())
	s.source.Store("")
	s.nmeaDest.Store("")
	s.interval.Store("")
	s.heading.Store(HeadingSettings{})
	return s
}

func (s *Status) SetStatic(source string, nmeaDest string, renderInterval string) {
	if source != "" {
		s.source.Store(source)
	}
	if nmeaDest != "" {
		s.nmeaDest.Store(nmeaDest)
	}
	if renderInterval != "" {
		s.interval.Store(renderInterval)
	}
}

func (s *Status) SetHeadingSettings(h HeadingSettings) {
	s.heading.Store(h)
}

func (s *Status) HeadingSettings() HeadingSettings {
	return s.heading.Load().(HeadingSettings)
}

// MarkFrame records one rendered heading frame.
func (s *Status) MarkFrame(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastFrameNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.framesSent, 1)
}

type StatusSnapshot struct {
	Service        string            `json:"service"`
	NowUTC         string            `json:"now_utc"`
	UptimeSec      int64             `json:"uptime_sec"`
	Source         string            `json:"source"`
	NMEADest       string            `json:"nmea_dest,omitempty"`
	RenderInterval string            `json:"render_interval"`
	FramesRendered uint64            `json:"frames_rendered"`
	LastFrameUTC   string            `json:"last_frame_utc,omitempty"`
	StreamClients  int               `json:"stream_clients"`
	Heading        *compass.Reading  `json:"heading,omitempty"`
	Pipeline       *compass.Stats    `json:"pipeline,omitempty"`
	Sensing        *sensing.Snapshot `json:"sensing,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	uptime := nowUTC.Sub(start)
	lastFrame := atomic.LoadInt64(&s.lastFrameNano)

	snap := StatusSnapshot{
		Service:        "compass-ng",
		NowUTC:         nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:      int64(uptime.Seconds()),
		Source:         s.source.Load().(string),
		NMEADest:       s.nmeaDest.Load().(string),
		RenderInterval: s.interval.Load().(string),
		FramesRendered: atomic.LoadUint64(&s.framesSent),
	}
	if lastFrame != 0 {
		snap.LastFrameUTC = time.Unix(0, lastFrame).UTC().Format(time.RFC3339Nano)
	}
	return snap
}
