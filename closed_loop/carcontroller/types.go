package carcontroller

import (
	"fmt"
	"strings"
)

// Generation selects the cruise arbitration strategy of a car.
type Generation int

const (
	// GenOne cars interpose on the stock cruise system through button
	// presses and may carry a torque interceptor.
	GenOne Generation = iota + 1
	// GenTwo cars accept native hold/resume braking requests.
	GenTwo
)

func (g Generation) String() string {
	switch g {
	case GenOne:
		return "gen1"
	case GenTwo:
		return "gen2"
	default:
		return fmt.Sprintf("Generation(%d)", int(g))
	}
}

// ParseGeneration accepts "gen1" or "gen2" (case-insensitive).
func ParseGeneration(s string) (Generation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gen1", "1":
		return GenOne, nil
	case "gen2", "2":
		return GenTwo, nil
	}
	return 0, fmt.Errorf("unknown generation %q", s)
}

// TorqueLimits bounds one actuation path.
type TorqueLimits struct {
	MaxTorque int `yaml:"max_torque"`
	// MaxRate is the largest per-cycle change of applied torque.
	MaxRate int `yaml:"max_rate"`
	// OverrideRate is the per-cycle step toward zero while the driver
	// resists the applied torque. Values below MaxRate act as MaxRate.
	OverrideRate int `yaml:"override_rate"`

	DriverAllowance  float64 `yaml:"driver_allowance"`
	DriverFactor     float64 `yaml:"driver_factor"`
	DriverMultiplier float64 `yaml:"driver_multiplier"`
}

func (l TorqueLimits) Validate() error {
	if l.MaxTorque <= 0 {
		return fmt.Errorf("max_torque must be positive, got %d", l.MaxTorque)
	}
	if l.MaxRate <= 0 {
		return fmt.Errorf("max_rate must be positive, got %d", l.MaxRate)
	}
	if l.OverrideRate < 0 {
		return fmt.Errorf("override_rate must not be negative, got %d", l.OverrideRate)
	}
	if l.DriverAllowance < 0 {
		return fmt.Errorf("driver_allowance must not be negative, got %g", l.DriverAllowance)
	}
	return nil
}

// LimiterConfig holds the torque limits of both actuation paths.
type LimiterConfig struct {
	Steer                   TorqueLimits `yaml:"steer"`
	Interceptor             TorqueLimits `yaml:"interceptor"`
	EnableTorqueInterceptor bool         `yaml:"enable_torque_interceptor"`
}

// CarParams is the static description of one car model.
type CarParams struct {
	Model      string
	Generation Generation
	Limits     LimiterConfig
}

func (p CarParams) Validate() error {
	switch p.Generation {
	case GenOne, GenTwo:
	default:
		return fmt.Errorf("car %q: unsupported generation %s", p.Model, p.Generation)
	}
	if err := p.Limits.Steer.Validate(); err != nil {
		return fmt.Errorf("car %q steer limits: %w", p.Model, err)
	}
	if p.Limits.EnableTorqueInterceptor {
		if err := p.Limits.Interceptor.Validate(); err != nil {
			return fmt.Errorf("car %q interceptor limits: %w", p.Model, err)
		}
	}
	return nil
}

// Signals are decoded physical values of one bus frame, keyed by signal name.
type Signals map[string]float64

// VehicleInput is the validated vehicle state for one cycle.
//
// Precondition: all numeric fields are finite. Ingestion rejects anything
// else before it reaches the controller.
type VehicleInput struct {
	DriverTorque        float64
	SteerFaultTemporary bool
	Standstill          bool
	BrakePressed        bool
	ButtonCounter       int
	// InterceptorAllowed is the interceptor's handshake: it has been
	// discovered and is ready to take torque.
	InterceptorAllowed bool

	CamLKAS     Signals
	CamLaneInfo Signals
	CruiseInfo  Signals
}

type LongControlState int

const (
	LongControlOff LongControlState = iota
	LongControlPID
	LongControlStopping
	LongControlStarting
)

func (s LongControlState) String() string {
	switch s {
	case LongControlOff:
		return "off"
	case LongControlPID:
		return "pid"
	case LongControlStopping:
		return "stopping"
	case LongControlStarting:
		return "starting"
	default:
		return fmt.Sprintf("LongControlState(%d)", int(s))
	}
}

func ParseLongControlState(s string) (LongControlState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off":
		return LongControlOff, nil
	case "pid":
		return LongControlPID, nil
	case "stopping":
		return LongControlStopping, nil
	case "starting":
		return LongControlStarting, nil
	}
	return 0, fmt.Errorf("unknown long control state %q", s)
}

type VisualAlert int

const (
	VisualAlertNone VisualAlert = iota
	VisualAlertSteerRequired
	VisualAlertLDW
	VisualAlertBrakePressed
)

func ParseVisualAlert(s string) (VisualAlert, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return VisualAlertNone, nil
	case "steer_required", "steerrequired":
		return VisualAlertSteerRequired, nil
	case "ldw":
		return VisualAlertLDW, nil
	case "brake_pressed", "brakepressed":
		return VisualAlertBrakePressed, nil
	}
	return 0, fmt.Errorf("unknown visual alert %q", s)
}

// DesiredIntent is what the planner asks for in one cycle.
//
// Precondition: Steer is finite and within [-1, 1].
type DesiredIntent struct {
	LatActive        bool
	Steer            float64
	Accel            float64
	LongControlState LongControlState

	Cancel   bool
	Resume   bool
	Override bool

	VisualAlert VisualAlert
}

type CommandKind int

const (
	SteeringTorque CommandKind = iota + 1
	InterceptorSteeringTorque
	Button
	AccHoldResume
	Alert
)

func (k CommandKind) String() string {
	switch k {
	case SteeringTorque:
		return "steering_torque"
	case InterceptorSteeringTorque:
		return "interceptor_steering_torque"
	case Button:
		return "button"
	case AccHoldResume:
		return "acc_hold_resume"
	case Alert:
		return "alert"
	default:
		return fmt.Sprintf("CommandKind(%d)", int(k))
	}
}

type ButtonKind int

const (
	ButtonCancel ButtonKind = iota + 1
	ButtonResume
)

func (b ButtonKind) String() string {
	switch b {
	case ButtonCancel:
		return "cancel"
	case ButtonResume:
		return "resume"
	default:
		return fmt.Sprintf("ButtonKind(%d)", int(b))
	}
}

// Command is one bus message to transmit. Only the fields relevant to
// Kind are set. Signals reference the cycle's VehicleInput passthrough
// and must be treated as read-only.
type Command struct {
	Kind  CommandKind
	Frame uint64

	// SteeringTorque, InterceptorSteeringTorque
	Torque int

	// Button
	Button        ButtonKind
	ButtonCounter int

	// AccHoldResume
	Hold   bool
	Resume bool
	Accel  float64

	// Alert
	LDW           bool
	SteerRequired bool

	Signals Signals
}

// ActuatorReport is the actuation actually applied in a cycle.
type ActuatorReport struct {
	// Steer is the applied primary torque normalized to [-1, 1].
	Steer                     float64
	SteerOutputCAN            int
	InterceptorSteerOutputCAN int
	Accel                     float64
	LongControlState          LongControlState
}
