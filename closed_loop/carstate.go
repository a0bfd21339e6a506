package main

import (
	"sync"
	"time"

	"carctrl-core/closed_loop/carcontroller"
)

const (
	frameCamLKAS     = "CAM_LKAS"
	frameCamLaneInfo = "CAM_LANEINFO"
	frameCrzInfo     = "CRZ_INFO"
	frameCrzBtns     = "CRZ_BTNS"
	frameEngineData  = "ENGINE_DATA"
	framePedals      = "PEDALS"
	frameSteerTorque = "STEER_TORQUE"
	frameSteerRate   = "STEER_RATE"
	frameTIFeedback  = "TI_FEEDBACK"
	frameTISteer     = "TI_STEER"
	frameEPSFeedback = "EPS_FEEDBACK"
	frameBrakePedal  = "BRAKE_PEDAL"
	frameACC         = "ACC"
)

const (
	standstillSpeedKph = 0.1
	tiStateRun         = 3
)

// CarState keeps the latest decoded signals of every received frame.
// The receive loops write it and the control loop snapshots it.
type CarState struct {
	gen         carcontroller.Generation
	interceptor bool

	mu     sync.Mutex
	frames map[string]carcontroller.Signals
	seen   map[string]time.Time
}

func NewCarState(params carcontroller.CarParams) *CarState {
	return &CarState{
		gen:         params.Generation,
		interceptor: params.Limits.EnableTorqueInterceptor,
		frames:      map[string]carcontroller.Signals{},
		seen:        map[string]time.Time{},
	}
}

// Update stores the values of one received frame. The map is kept, not
// copied, and must not be modified after the call.
func (cs *CarState) Update(name string, values map[string]float64, at time.Time) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.frames[name] = values
	cs.seen[name] = at
}

// Age is the time since name was last received, and false if it never was.
func (cs *CarState) Age(name string, now time.Time) (time.Duration, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	at, ok := cs.seen[name]
	if !ok {
		return 0, false
	}
	return now.Sub(at), true
}

// Input builds the controller's view of the vehicle from the latest frames.
// Frames not yet received read as all-zero.
func (cs *CarState) Input() carcontroller.VehicleInput {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	sig := func(frame, name string) float64 {
		return cs.frames[frame][name]
	}

	in := carcontroller.VehicleInput{
		Standstill:    sig(frameEngineData, "SPEED") < standstillSpeedKph,
		ButtonCounter: int(sig(frameCrzBtns, "CTR")),
		CamLKAS:       cs.frames[frameCamLKAS],
		CamLaneInfo:   cs.frames[frameCamLaneInfo],
		CruiseInfo:    cs.frames[frameCrzInfo],
	}

	switch cs.gen {
	case carcontroller.GenOne:
		in.BrakePressed = sig(framePedals, "BRAKE_ON") == 1
		in.SteerFaultTemporary = sig(frameSteerRate, "HANDS_OFF_5_SECONDS") == 1
		in.DriverTorque = sig(frameSteerTorque, "STEER_TORQUE_SENSOR")
		if cs.interceptor {
			ti := cs.frames[frameTIFeedback]
			in.DriverTorque = ti["TI_TORQUE_SENSOR"]
			in.InterceptorAllowed = ti["STATE"] == tiStateRun && ti["RAMP_DOWN"] == 0
		}
	case carcontroller.GenTwo:
		in.BrakePressed = sig(frameBrakePedal, "BRAKE_PEDAL_PRESSED") == 1
		in.DriverTorque = sig(frameEPSFeedback, "STEER_TORQUE_SENSOR")
	}

	return in
}

// SpeedKph is the last reported vehicle speed.
func (cs *CarState) SpeedKph() float64 {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.frames[frameEngineData]["SPEED"]
}
