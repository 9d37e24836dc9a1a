package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// HeadingSettings describes how raw azimuths become the displayed heading.
type HeadingSettings struct {
	Transition    string  `json:"transition"`
	MinGravity    float64 `json:"min_gravity,omitempty"`
	MinFieldCross float64 `json:"min_field_cross,omitempty"`
}

type AboutResponse struct {
	Service   string `json:"service"`
	NowUTC    string `json:"now_utc"`
	GoVersion string `json:"go_version"`
	Build     struct {
		ModulePath string `json:"module_path,omitempty"`
		Version    string `json:"version,omitempty"`
		Commit     string `json:"commit,omitempty"`
		Dirty      bool   `json:"dirty,omitempty"`
		Time       string `json:"time,omitempty"`
	} `json:"build"`
	// Convention documents the azimuth sign so clients can draw the needle.
	Convention string          `json:"convention"`
	Heading    HeadingSettings `json:"heading"`
}

const azimuthConvention = "azimuth = -atan2(R01, R11) in degrees; flat device facing east reads -90, display text is mod 360"

func aboutHandler(status *Status) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}

		resp := AboutResponse{
			Service:    "compass-ng",
			NowUTC:     time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion:  runtime.Version(),
			Convention: azimuthConvention,
			Heading:    status.HeadingSettings(),
		}
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			resp.Build.ModulePath = bi.Main.Path
			resp.Build.Version = bi.Main.Version
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					resp.Build.Commit = s.Value
				case "vcs.modified":
					resp.Build.Dirty = s.Value == "true"
				case "vcs.time":
					resp.Build.Time = s.Value
				}
			}
		}
		writeJSON(w, resp)
	})
}
