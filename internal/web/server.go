package web

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"compass-ng/internal/compass"
	"compass-ng/internal/sensing"
)

// HeadingSource is the query side of the heading pipeline.
type HeadingSource interface {
	Now() compass.Reading
	Stats() compass.Stats
}

// SensingController exposes activation to the API.
// Implementations should be safe to call concurrently.
type SensingController interface {
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Snapshot() sensing.Snapshot
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func Handler(status *Status, heading HeadingSource, sensingCtl SensingController, frames *HeadingBroadcaster, logs *LogBuffer) http.Handler {
	if status == nil {
		status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		if heading != nil {
			reading := heading.Now()
			stats := heading.Stats()
			snap.Heading = &reading
			snap.Pipeline = &stats
		}
		if sensingCtl != nil {
			s := sensingCtl.Snapshot()
			snap.Sensing = &s
		}
		snap.StreamClients = frames.Subscribers()
		writeJSON(w, snap)
	})

	mux.HandleFunc("/api/heading", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if heading == nil {
			http.Error(w, "heading unavailable", http.StatusNotFound)
			return
		}
		writeJSON(w, heading.Now())
	})

	if frames != nil {
		mux.Handle("/api/heading/ws", headingStream(frames))
	}

	activation := func(active bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !allowMethod(w, r, http.MethodPost) {
				return
			}
			if sensingCtl == nil {
				http.Error(w, "sensing unavailable", http.StatusNotFound)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			var err error
			if active {
				err = sensingCtl.Activate(ctx)
			} else {
				err = sensingCtl.Deactivate(ctx)
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, sensingCtl.Snapshot())
		}
	}
	mux.HandleFunc("/api/sensing/activate", activation(true))
	mux.HandleFunc("/api/sensing/deactivate", activation(false))

	// Sim scripts shipped next to the binary.
	// Returns paths like "./configs/scripts/figure8.yaml".
	mux.HandleFunc("/api/scripts", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		entries, err := os.ReadDir(filepath.FromSlash("configs/scripts"))
		paths := make([]string, 0, len(entries))
		if err == nil {
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				lower := strings.ToLower(e.Name())
				if !(strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")) {
					continue
				}
				paths = append(paths, "./configs/scripts/"+e.Name())
			}
		}
		sort.Strings(paths)
		writeJSON(w, struct {
			Paths []string `json:"paths"`
		}{Paths: paths})
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	mux.Handle("/api/about", aboutHandler(status))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		text := "--"
		if heading != nil {
			if reading := heading.Now(); reading.Valid {
				text = reading.Text
			}
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>compass-ng</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>%s</h1>", html.EscapeString(text))
		_, _ = fmt.Fprintf(w, "<p>Live stream at <code>/api/heading/ws</code>; details at <a href=\"/api/status\">/api/status</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>source=%s\nrender_interval=%s\nframes_rendered=%d\nuptime_sec=%d</pre>",
			html.EscapeString(snap.Source), snap.RenderInterval, snap.FramesRendered, snap.UptimeSec,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

// Serve runs h on listenAddr until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
