package sim

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ScenarioScript is a deterministic, script-driven heading timeline.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 30s
//	keyframes:
//	  - t: 0s
//	    heading_deg: 350
//	  - t: 5s
//	    heading_deg: 10
//	    field_scale: 1.0
//	  - t: 6s
//	    heading_deg: 10
//	    free_fall: true
//
// heading_deg and field_scale are interpolated (heading along the shortest
// arc); free_fall holds from its keyframe until the next one. field_scale
// defaults to 1; 0 models a lost magnetometer.
type ScenarioScript struct {
	Version   int                `yaml:"version"`
	Duration  time.Duration      `yaml:"duration"`
	Keyframes []ScenarioKeyframe `yaml:"keyframes"`
}

// ScenarioKeyframe is a time-stamped device state.
type ScenarioKeyframe struct {
	T          time.Duration `yaml:"t"`
	HeadingDeg float64       `yaml:"heading_deg"`
	FieldScale *float64      `yaml:"field_scale"`
	FreeFall   bool          `yaml:"free_fall"`
}

func (k ScenarioKeyframe) fieldScale() float64 {
	if k.FieldScale == nil {
		return 1
	}
	return *k.FieldScale
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script   ScenarioScript
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	if err := yaml.Unmarshal(b, &s); err != nil {
		return ScenarioScript{}, err
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if kf.fieldScale() < 0 {
			return nil, fmt.Errorf("keyframes[%d].field_scale must be >= 0", i)
		}
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}
	return &Scenario{script: script, duration: dur}, nil
}

func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// ScenarioState is the computed device state at a time.
type ScenarioState struct {
	HeadingDeg float64
	FieldScale float64
	FreeFall   bool
}

// StateAt computes scenario state at elapsed.
//
// If loop is true, elapsed wraps around Duration(). Otherwise elapsed is clamped
// to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration, loop bool) ScenarioState {
	if s == nil {
		return ScenarioState{FieldScale: 1}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if loop {
		elapsed = elapsed % s.duration
	} else if elapsed > s.duration {
		elapsed = s.duration
	}

	kf0, kf1, alpha := selectSegment(s.script.Keyframes, elapsed)
	return ScenarioState{
		HeadingDeg: lerpAngleDeg(kf0.HeadingDeg, kf1.HeadingDeg, alpha),
		FieldScale: lerp(kf0.fieldScale(), kf1.fieldScale(), alpha),
		FreeFall:   kf0.FreeFall,
	}
}

func selectSegment(kfs []ScenarioKeyframe, t time.Duration) (ScenarioKeyframe, ScenarioKeyframe, float64) {
	if len(kfs) == 1 {
		return kfs[0], kfs[0], 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return kfs[0], kfs[0], 0
	}
	if idx >= len(kfs) {
		last := kfs[len(kfs)-1]
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return k1, k1, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return k0, k1, alpha
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func lerpAngleDeg(a0, a1, t float64) float64 {
	// Shortest-path interpolation across wraparound, result in [0, 360).
	norm := func(x float64) float64 {
		for x < 0 {
			x += 360
		}
		for x >= 360 {
			x -= 360
		}
		return x
	}
	a0 = norm(a0)
	a1 = norm(a1)
	delta := a1 - a0
	if delta > 180 {
		delta -= 360
	} else if delta < -180 {
		delta += 360
	}
	return norm(a0 + delta*t)
}
