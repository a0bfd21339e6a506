package carcontroller

import (
	"fmt"
	"time"
)

const (
	cancelDebounce = 70 * time.Millisecond
	holdWindow     = 6 * time.Second
	preHoldDelay   = 1 * time.Second
	resumeAssert   = 500 * time.Millisecond

	cancelEvery     = 10 // 10Hz until stock ACC syncs with our state
	resumeEvery     = 5
	alertEvery      = 50
	holdResumeEvery = 2 // 50Hz ACC command
)

// cruiseArbiter decides the generation-specific commands of one cycle
// and appends them to cmds.
type cruiseArbiter interface {
	arbitrate(cmds []Command, frame uint64, in VehicleInput, intent DesiredIntent) []Command
}

func newCruiseArbiter(gen Generation, clock *Clock) (cruiseArbiter, error) {
	switch gen {
	case GenOne:
		a := &buttonArbiter{
			clock:       clock,
			cancelDelay: clock.NewTimer(cancelDebounce),
		}
		// a cancel on the very first cycle still waits out the debounce
		a.cancelDelay.Reset()
		return a, nil
	case GenTwo:
		return &holdResumeArbiter{
			clock:       clock,
			holdTimer:   clock.NewTimer(holdWindow),
			holdDelay:   clock.NewTimer(preHoldDelay),
			resumeTimer: clock.NewTimer(resumeAssert),
		}, nil
	}
	return nil, fmt.Errorf("no cruise arbiter for %s", gen)
}

// buttonArbiter drives the stock cruise system of GEN1 cars by emulating
// button presses.
type buttonArbiter struct {
	clock       *Clock
	cancelDelay *Timer
}

func (a *buttonArbiter) arbitrate(cmds []Command, frame uint64, in VehicleInput, intent DesiredIntent) []Command {
	if intent.Cancel {
		// The stock cruise message runs at 50Hz. With the brake pressed,
		// wait out the debounce so we read its state a few times first;
		// a second cancel racing the stock disengagement turns cruise
		// main off.
		if a.clock.Interval(cancelEvery) && !(in.BrakePressed && a.cancelDelay.Active()) {
			cmds = append(cmds, buttonCommand(frame, in, ButtonCancel))
		}
	} else {
		a.cancelDelay.Reset()
		// stop-and-go needs a resume press once the car has been stopped a while
		if intent.Resume && a.clock.Interval(resumeEvery) {
			cmds = append(cmds, buttonCommand(frame, in, ButtonResume))
		}
	}

	if a.clock.Interval(alertEvery) {
		cmds = append(cmds, Command{
			Kind:          Alert,
			Frame:         frame,
			LDW:           intent.VisualAlert == VisualAlertLDW,
			SteerRequired: in.SteerFaultTemporary,
			Signals:       in.CamLaneInfo,
		})
	}
	return cmds
}

func buttonCommand(frame uint64, in VehicleInput, b ButtonKind) Command {
	return Command{
		Kind:          Button,
		Frame:         frame,
		Button:        b,
		ButtonCounter: in.ButtonCounter,
	}
}

// holdResumeArbiter asks GEN2 cars to hold the electric brake at a stop
// and to release it when the planner wants to move.
type holdResumeArbiter struct {
	clock *Clock

	// holdTimer bounds how long the brake is held after a stop.
	holdTimer *Timer
	// holdDelay lets the car settle at a stop before the brake is held.
	holdDelay *Timer
	// resumeTimer keeps resume asserted long enough to release the brake.
	resumeTimer *Timer
}

func (a *holdResumeArbiter) arbitrate(cmds []Command, frame uint64, in VehicleInput, intent DesiredIntent) []Command {
	if !a.clock.Interval(holdResumeEvery) {
		return cmds
	}

	hold := false
	if in.Standstill {
		if !a.holdDelay.Active() {
			if intent.Resume || intent.Override || intent.LongControlState == LongControlStarting {
				a.resumeTimer.Reset()
			} else {
				hold = a.holdTimer.Active()
			}
		}
	} else {
		a.holdTimer.Reset()
		a.holdDelay.Reset()
	}
	resume := a.resumeTimer.Active()
	if resume {
		// never ask to hold and release at once
		hold = false
	}

	return append(cmds, Command{
		Kind:    AccHoldResume,
		Frame:   frame,
		Hold:    hold,
		Resume:  resume,
		Accel:   intent.Accel,
		Signals: in.CruiseInfo,
	})
}
