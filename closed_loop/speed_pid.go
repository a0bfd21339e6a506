package main

import "fmt"

// SpeedPIDConfig holds the gains of the cruise speed tracker.
type SpeedPIDConfig struct {
	Kp            float64 `json:"kp"`
	Ki            float64 `json:"ki"`
	Kd            float64 `json:"kd"`
	MaxAccel      float64 `json:"max_accel"`
	MinAccel      float64 `json:"min_accel"`
	IntegralLimit float64 `json:"integral_limit"`
}

func (c SpeedPIDConfig) validate() error {
	if c.MaxAccel <= c.MinAccel {
		return fmt.Errorf("max_accel %g must exceed min_accel %g", c.MaxAccel, c.MinAccel)
	}
	if c.IntegralLimit < 0 {
		return fmt.Errorf("integral_limit must not be negative, got %g", c.IntegralLimit)
	}
	return nil
}

// SpeedPID turns a target speed into the acceleration request a
// longitudinal planner would send.
type SpeedPID struct {
	cfg SpeedPIDConfig

	integral    float64
	prevError   float64
	initialized bool
}

func NewSpeedPID(cfg SpeedPIDConfig) *SpeedPID {
	return &SpeedPID{cfg: cfg}
}

// Reset clears the PID state
func (pid *SpeedPID) Reset() {
	pid.integral = 0
	pid.prevError = 0
	pid.initialized = false
}

// Update returns the acceleration (m/s^2) that drives currentKph toward
// targetKph.
func (pid *SpeedPID) Update(targetKph, currentKph, dt float64) float64 {
	err := (targetKph - currentKph) / 3.6

	// no derivative on the first sample
	if !pid.initialized {
		pid.prevError = err
		pid.initialized = true
	}

	p := pid.cfg.Kp * err

	// Integral term with anti-windup
	pid.integral += err * dt
	if pid.integral > pid.cfg.IntegralLimit {
		pid.integral = pid.cfg.IntegralLimit
	} else if pid.integral < -pid.cfg.IntegralLimit {
		pid.integral = -pid.cfg.IntegralLimit
	}
	i := pid.cfg.Ki * pid.integral

	var d float64
	if dt > 0 {
		d = pid.cfg.Kd * (err - pid.prevError) / dt
	}

	accel := p + i + d

	// back-calculate the integral so it does not wind up at saturation
	if accel > pid.cfg.MaxAccel {
		accel = pid.cfg.MaxAccel
		if pid.cfg.Ki != 0 {
			pid.integral = (accel - p - d) / pid.cfg.Ki
		}
	} else if accel < pid.cfg.MinAccel {
		accel = pid.cfg.MinAccel
		if pid.cfg.Ki != 0 {
			pid.integral = (accel - p - d) / pid.cfg.Ki
		}
	}

	pid.prevError = err
	return accel
}

// Diagnostics returns current PID state for logging.
func (pid *SpeedPID) Diagnostics() PIDDiagnostics {
	return PIDDiagnostics{
		Error:    pid.prevError,
		Integral: pid.integral,
		P:        pid.cfg.Kp * pid.prevError,
		I:        pid.cfg.Ki * pid.integral,
	}
}

type PIDDiagnostics struct {
	Error    float64
	Integral float64
	P        float64
	I        float64
}
