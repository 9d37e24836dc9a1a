package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// LogBuffer keeps the most recent log lines written by the JSON tee core.
// Level and logger name are pulled out once per line so queries can filter
// without re-decoding.
type LogBuffer struct {
	mu      sync.Mutex
	max     int
	entries []logEntry
	partial []byte
	dropped uint64
}

type logEntry struct {
	line   string
	level  zapcore.Level
	logger string
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = 2000
	}
	return &LogBuffer{max: maxLines}
}

// Write implements io.Writer. Bytes after the last newline are held until
// the line completes.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data := append(b.partial, p...)
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		b.appendLocked(string(data[:i]))
		data = data[i+1:]
	}
	b.partial = append([]byte(nil), data...)
	return len(p), nil
}

func (b *LogBuffer) appendLocked(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	e := logEntry{line: line, level: zapcore.InfoLevel}
	var fields struct {
		Level  string `json:"level"`
		Logger string `json:"logger"`
	}
	if json.Unmarshal([]byte(line), &fields) == nil {
		if lvl, err := zapcore.ParseLevel(fields.Level); err == nil {
			e.level = lvl
		}
		e.logger = fields.Logger
	}
	b.entries = append(b.entries, e)
	if len(b.entries) > b.max {
		over := len(b.entries) - b.max
		b.entries = b.entries[over:]
		b.dropped += uint64(over)
	}
}

// LogQuery selects lines. Note the zero MinLevel is info, not debug.
type LogQuery struct {
	Tail     int
	Match    string
	MinLevel zapcore.Level
	// Logger matches the named logger and its children ("sensing" matches
	// "sensing.replay").
	Logger string
}

func (q LogQuery) matches(e logEntry) bool {
	if e.level < q.MinLevel {
		return false
	}
	if q.Logger != "" && e.logger != q.Logger && !strings.HasPrefix(e.logger, q.Logger+".") {
		return false
	}
	return q.Match == "" || strings.Contains(e.line, q.Match)
}

// Query returns the last q.Tail matching lines, oldest first.
func (b *LogBuffer) Query(q LogQuery) (lines []string, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if q.Tail <= 0 {
		q.Tail = 200
	}
	lines = []string{}
	for i := len(b.entries) - 1; i >= 0 && len(lines) < q.Tail; i-- {
		if q.matches(b.entries[i]) {
			lines = append(lines, b.entries[i].line)
		}
	}
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, b.dropped
}

// Snapshot returns the last tail lines containing match (all lines when
// match is empty).
func (b *LogBuffer) Snapshot(tail int, match string) (lines []string, dropped uint64) {
	return b.Query(LogQuery{Tail: tail, Match: match, MinLevel: zapcore.DebugLevel})
}

type LogsResponse struct {
	NowUTC  string   `json:"now_utc"`
	Dropped uint64   `json:"dropped"`
	Lines   []string `json:"lines"`
}

// Handler serves GET /api/logs?tail=N&level=warn&logger=sensing&match=s.
// format=text returns plain lines.
func (b *LogBuffer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		params := r.URL.Query()

		q := LogQuery{
			Tail:     200,
			Match:    params.Get("match"),
			MinLevel: zapcore.DebugLevel,
			Logger:   strings.TrimSpace(params.Get("logger")),
		}
		if s := strings.TrimSpace(params.Get("tail")); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 1 || v > 5000 {
				http.Error(w, "tail must be an integer in [1,5000]", http.StatusBadRequest)
				return
			}
			q.Tail = v
		}
		if s := strings.TrimSpace(params.Get("level")); s != "" {
			lvl, err := zapcore.ParseLevel(s)
			if err != nil {
				http.Error(w, "level must be one of debug, info, warn, error", http.StatusBadRequest)
				return
			}
			q.MinLevel = lvl
		}

		lines, dropped := b.Query(q)
		if strings.EqualFold(params.Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if dropped > 0 {
				_, _ = fmt.Fprintf(w, "[dropped=%d]\n", dropped)
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(w, line)
			}
			return
		}
		writeJSON(w, LogsResponse{
			NowUTC:  time.Now().UTC().Format(time.RFC3339Nano),
			Dropped: dropped,
			Lines:   lines,
		})
	})
}
