// Package carcontroller turns the planner's desired actuation into the
// ordered list of bus commands for one control cycle.
//
// A Controller is driven by a single goroutine calling Update once per DT.
// It performs no I/O and never fails once constructed; inputs are assumed
// validated by the caller.
package carcontroller

import "fmt"

// ControllerState is the state carried from one cycle to the next.
type ControllerState struct {
	ApplySteerLast            int
	InterceptorApplySteerLast int
	Frame                     uint64
}

// Controller assembles the commands of each control cycle.
//
// Not safe for concurrent use.
type Controller struct {
	params  CarParams
	clock   Clock
	state   ControllerState
	arbiter cruiseArbiter
}

// New builds a controller for one car. It fails only on invalid params.
func New(params CarParams) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{params: params}
	arb, err := newCruiseArbiter(params.Generation, &c.clock)
	if err != nil {
		return nil, fmt.Errorf("car %q: %w", params.Model, err)
	}
	c.arbiter = arb
	return c, nil
}

// Params returns the car params the controller was built with.
func (c *Controller) Params() CarParams {
	return c.params
}

// State returns a copy of the state carried into the next cycle.
func (c *Controller) State() ControllerState {
	return c.state
}

// Update runs one control cycle.
//
// Commands are returned in transmit order: the generation's cruise
// commands (button, alert, hold/resume), then the primary steering
// command, then the interceptor steering command.
func (c *Controller) Update(in VehicleInput, intent DesiredIntent) (ActuatorReport, []Command) {
	lim := c.params.Limits

	applySteer := 0
	tiApplySteer := 0
	if intent.LatActive {
		if lim.EnableTorqueInterceptor && in.InterceptorAllowed {
			tiNew := desiredTorque(intent.Steer, lim.Interceptor.MaxTorque)
			tiApplySteer = ApplyInterceptorSteerTorqueLimits(tiNew, c.state.InterceptorApplySteerLast,
				in.DriverTorque, lim.Interceptor)
		}

		newSteer := desiredTorque(intent.Steer, lim.Steer.MaxTorque)
		applySteer = ApplyDriverSteerTorqueLimits(newSteer, c.state.ApplySteerLast,
			in.DriverTorque, lim.Steer)
	}
	c.state.ApplySteerLast = applySteer
	c.state.InterceptorApplySteerLast = tiApplySteer

	frame := c.state.Frame
	cmds := make([]Command, 0, 5)
	cmds = c.arbiter.arbitrate(cmds, frame, in, intent)

	// Always sent, even at zero torque: the stock path expects a steady
	// stream and the interceptor only starts reporting once it sees
	// traffic at its address.
	cmds = append(cmds,
		Command{Kind: SteeringTorque, Frame: frame, Torque: applySteer, Signals: in.CamLKAS},
		Command{Kind: InterceptorSteeringTorque, Frame: frame, Torque: tiApplySteer},
	)

	report := ActuatorReport{
		Steer:                     float64(applySteer) / float64(lim.Steer.MaxTorque),
		SteerOutputCAN:            applySteer,
		InterceptorSteerOutputCAN: tiApplySteer,
		Accel:                     intent.Accel,
		LongControlState:          intent.LongControlState,
	}

	c.state.Frame++
	c.clock.Tick()
	return report, cmds
}
