package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"carctrl-core/closed_loop/carcontroller"
)

// Scenario scripts the planner side of a run: what the controller is
// asked to do at each point in time.
type Scenario struct {
	Meta     ScenarioMeta      `json:"meta"`
	Timing   ScenarioTiming    `json:"timing"`
	Defaults IntentSpec        `json:"defaults"`
	Segments []ScenarioSegment `json:"segments"`
	// SpeedPID computes accel from target_speed_kph where a segment sets it.
	SpeedPID *SpeedPIDConfig `json:"speed_pid,omitempty"`
}

type ScenarioMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

type ScenarioTiming struct {
	DurationS float64 `json:"duration_s"`
	// LogHz is the rate of the periodic status line. Zero disables it.
	LogHz float64 `json:"log_hz"`
}

// ScenarioSegment overrides the defaults on [T0, T1). A negative T1 runs
// to the end of the scenario.
type ScenarioSegment struct {
	T0      float64    `json:"t0"`
	T1      float64    `json:"t1"`
	Intent  IntentSpec `json:"intent"`
	Comment string     `json:"comment,omitempty"`
}

// IntentSpec is a partial intent. Unset fields fall through to the
// scenario defaults.
type IntentSpec struct {
	LatActive *bool    `json:"lat_active,omitempty"`
	Steer     *float64 `json:"steer,omitempty"`
	// SteerAmplitude and SteerPeriodS add a sine wave on top of Steer.
	SteerAmplitude *float64 `json:"steer_amplitude,omitempty"`
	SteerPeriodS   *float64 `json:"steer_period_s,omitempty"`
	Accel          *float64 `json:"accel,omitempty"`
	// TargetSpeedKph replaces Accel with the speed tracker's output.
	TargetSpeedKph   *float64 `json:"target_speed_kph,omitempty"`
	LongControlState *string  `json:"long_control_state,omitempty"`
	Cancel           *bool    `json:"cancel,omitempty"`
	Resume           *bool    `json:"resume,omitempty"`
	Override         *bool    `json:"override,omitempty"`
	VisualAlert      *string  `json:"visual_alert,omitempty"`
}

func (s IntentSpec) merge(over IntentSpec) IntentSpec {
	if over.LatActive != nil {
		s.LatActive = over.LatActive
	}
	if over.Steer != nil {
		s.Steer = over.Steer
	}
	if over.SteerAmplitude != nil {
		s.SteerAmplitude = over.SteerAmplitude
	}
	if over.SteerPeriodS != nil {
		s.SteerPeriodS = over.SteerPeriodS
	}
	if over.Accel != nil {
		s.Accel = over.Accel
	}
	if over.TargetSpeedKph != nil {
		s.TargetSpeedKph = over.TargetSpeedKph
	}
	if over.LongControlState != nil {
		s.LongControlState = over.LongControlState
	}
	if over.Cancel != nil {
		s.Cancel = over.Cancel
	}
	if over.Resume != nil {
		s.Resume = over.Resume
	}
	if over.Override != nil {
		s.Override = over.Override
	}
	if over.VisualAlert != nil {
		s.VisualAlert = over.VisualAlert
	}
	return s
}

func (s IntentSpec) validate() error {
	for name, v := range map[string]*float64{
		"steer": s.Steer, "steer_amplitude": s.SteerAmplitude,
		"steer_period_s": s.SteerPeriodS, "accel": s.Accel,
		"target_speed_kph": s.TargetSpeedKph,
	} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if s.Steer != nil && math.Abs(*s.Steer) > 1 {
		return fmt.Errorf("steer %g outside [-1, 1]", *s.Steer)
	}
	if s.TargetSpeedKph != nil && *s.TargetSpeedKph < 0 {
		return fmt.Errorf("target_speed_kph must not be negative, got %g", *s.TargetSpeedKph)
	}
	if s.SteerPeriodS != nil && *s.SteerPeriodS <= 0 {
		return fmt.Errorf("steer_period_s must be positive, got %g", *s.SteerPeriodS)
	}
	if s.LongControlState != nil {
		if _, err := carcontroller.ParseLongControlState(*s.LongControlState); err != nil {
			return err
		}
	}
	if s.VisualAlert != nil {
		if _, err := carcontroller.ParseVisualAlert(*s.VisualAlert); err != nil {
			return err
		}
	}
	return nil
}

func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read file: %w", err)
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (Scenario, error) {
	var scen Scenario
	if err := json.Unmarshal(data, &scen); err != nil {
		return Scenario{}, fmt.Errorf("unmarshal: %w", err)
	}

	if scen.Timing.DurationS <= 0 {
		return Scenario{}, fmt.Errorf("invalid duration_s: %f", scen.Timing.DurationS)
	}
	if scen.Timing.LogHz < 0 {
		return Scenario{}, fmt.Errorf("invalid log_hz: %f", scen.Timing.LogHz)
	}
	if scen.SpeedPID != nil {
		if err := scen.SpeedPID.validate(); err != nil {
			return Scenario{}, fmt.Errorf("speed_pid: %w", err)
		}
	}
	needsPID := scen.Defaults.TargetSpeedKph != nil
	if err := scen.Defaults.validate(); err != nil {
		return Scenario{}, fmt.Errorf("defaults: %w", err)
	}
	for i, seg := range scen.Segments {
		if seg.T0 < 0 || (seg.T1 >= 0 && seg.T1 <= seg.T0) {
			return Scenario{}, fmt.Errorf("segment %d: invalid window [%g, %g)", i, seg.T0, seg.T1)
		}
		if err := seg.Intent.validate(); err != nil {
			return Scenario{}, fmt.Errorf("segment %d: %w", i, err)
		}
		needsPID = needsPID || seg.Intent.TargetSpeedKph != nil
	}
	if needsPID && scen.SpeedPID == nil {
		return Scenario{}, fmt.Errorf("target_speed_kph requires speed_pid")
	}

	return scen, nil
}

// specAt resolves the intent in force at time t. The first segment
// covering t wins.
func (scen *Scenario) specAt(t float64) IntentSpec {
	spec := scen.Defaults
	for _, seg := range scen.Segments {
		t1 := seg.T1
		if t1 < 0 {
			t1 = scen.Timing.DurationS
		}
		if t >= seg.T0 && t < t1 {
			return spec.merge(seg.Intent)
		}
	}
	return spec
}

// TargetSpeedKph reports the speed to track at time t, if any.
func TargetSpeedKph(scen *Scenario, t float64) (float64, bool) {
	spec := scen.specAt(t)
	if spec.TargetSpeedKph == nil {
		return 0, false
	}
	return *spec.TargetSpeedKph, true
}

// EvalIntent evaluates the scenario at time t. The result always
// satisfies the controller's input contract.
func EvalIntent(scen *Scenario, t float64) carcontroller.DesiredIntent {
	spec := scen.specAt(t)

	var intent carcontroller.DesiredIntent
	intent.LatActive = deref(spec.LatActive)
	intent.Cancel = deref(spec.Cancel)
	intent.Resume = deref(spec.Resume)
	intent.Override = deref(spec.Override)
	intent.Accel = deref(spec.Accel)

	steer := deref(spec.Steer)
	if amp := deref(spec.SteerAmplitude); amp != 0 && spec.SteerPeriodS != nil {
		steer += amp * math.Sin(2*math.Pi*t / *spec.SteerPeriodS)
	}
	intent.Steer = math.Max(-1, math.Min(1, steer))

	// validated on load
	if spec.LongControlState != nil {
		intent.LongControlState, _ = carcontroller.ParseLongControlState(*spec.LongControlState)
	}
	if spec.VisualAlert != nil {
		intent.VisualAlert, _ = carcontroller.ParseVisualAlert(*spec.VisualAlert)
	}

	return intent
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
