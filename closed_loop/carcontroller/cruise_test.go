package carcontroller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buttons(cmds []Command, b ButtonKind) int {
	n := 0
	for _, c := range ofKind(cmds, Button) {
		if c.Button == b {
			n++
		}
	}
	return n
}

func TestGen1_CancelWaitsForDebounceWhileBraking(t *testing.T) {
	c := newTestController(t, gen1Params())

	// frames 0..9 without cancel keep the debounce window reset
	for i := 0; i < 10; i++ {
		_, cmds := c.Update(VehicleInput{}, DesiredIntent{})
		require.Zero(t, buttons(cmds, ButtonCancel))
	}

	// window opened at frame 9 lasts 7 cycles; frame 10 is cancel-aligned
	braking := VehicleInput{BrakePressed: true, ButtonCounter: 4}
	sent := map[int]int{}
	for frame := 10; frame < 40; frame++ {
		_, cmds := c.Update(braking, DesiredIntent{Cancel: true})
		if n := buttons(cmds, ButtonCancel); n > 0 {
			sent[frame] = n
		}
	}
	assert.Equal(t, map[int]int{20: 1, 30: 1}, sent)
}

func TestGen1_CancelWithoutBrakeIsImmediateOnCadence(t *testing.T) {
	c := newTestController(t, gen1Params())
	var frames []int
	for frame := 0; frame < 35; frame++ {
		_, cmds := c.Update(VehicleInput{ButtonCounter: 7}, DesiredIntent{Cancel: true})
		for _, cmd := range ofKind(cmds, Button) {
			require.Equal(t, ButtonCancel, cmd.Button)
			require.Equal(t, 7, cmd.ButtonCounter)
			frames = append(frames, frame)
		}
	}
	assert.Equal(t, []int{0, 10, 20, 30}, frames)
}

func TestGen1_CancelOnFirstCycleWhileBraking(t *testing.T) {
	c := newTestController(t, gen1Params())
	_, cmds := c.Update(VehicleInput{BrakePressed: true}, DesiredIntent{Cancel: true})
	assert.Zero(t, buttons(cmds, ButtonCancel))
}

func TestGen1_ResumeCadence(t *testing.T) {
	c := newTestController(t, gen1Params())
	var frames []int
	for frame := 0; frame < 21; frame++ {
		_, cmds := c.Update(VehicleInput{}, DesiredIntent{Resume: true})
		if buttons(cmds, ButtonResume) == 1 {
			frames = append(frames, frame)
		}
		require.Zero(t, buttons(cmds, ButtonCancel))
	}
	assert.Equal(t, []int{0, 5, 10, 15, 20}, frames)
}

func TestGen1_CancelWinsOverResume(t *testing.T) {
	c := newTestController(t, gen1Params())
	for frame := 0; frame < 20; frame++ {
		_, cmds := c.Update(VehicleInput{}, DesiredIntent{Cancel: true, Resume: true})
		assert.Zero(t, buttons(cmds, ButtonResume))
	}
}

func TestGen1_AlertCadenceAndFlags(t *testing.T) {
	c := newTestController(t, gen1Params())
	in := VehicleInput{SteerFaultTemporary: true, CamLaneInfo: Signals{"HANDS_OFF_STEERING": 0}}
	intent := DesiredIntent{VisualAlert: VisualAlertLDW}

	var alerts []Command
	for frame := 0; frame < 151; frame++ {
		_, cmds := c.Update(in, intent)
		alerts = append(alerts, ofKind(cmds, Alert)...)
	}
	require.Len(t, alerts, 4)
	for i, a := range alerts {
		assert.Equal(t, uint64(i*50), a.Frame)
		assert.True(t, a.LDW)
		assert.True(t, a.SteerRequired)
		assert.Equal(t, in.CamLaneInfo, a.Signals)
	}
}

func TestGen1_CommandOrder(t *testing.T) {
	c := newTestController(t, gen1Params())
	_, cmds := c.Update(VehicleInput{}, DesiredIntent{Cancel: true})
	assert.Equal(t, []CommandKind{Button, Alert, SteeringTorque, InterceptorSteeringTorque}, kinds(cmds))
}

func TestGen1_NeverSendsHoldResume(t *testing.T) {
	c := newTestController(t, gen1Params())
	for frame := 0; frame < 100; frame++ {
		_, cmds := c.Update(VehicleInput{Standstill: true}, DesiredIntent{})
		require.Empty(t, ofKind(cmds, AccHoldResume))
	}
}

type holdResume struct{ hold, resume bool }

// gen2Run drives a GEN2 controller and records the hold/resume flags of
// every decision frame. standstill and intent are evaluated per frame.
func gen2Run(t *testing.T, frames int, standstill func(int) bool, intent func(int) DesiredIntent) map[int]holdResume {
	t.Helper()
	c := newTestController(t, gen2Params())
	out := map[int]holdResume{}
	for frame := 0; frame < frames; frame++ {
		_, cmds := c.Update(VehicleInput{Standstill: standstill(frame)}, intent(frame))
		acc := ofKind(cmds, AccHoldResume)
		if frame%2 != 0 {
			require.Empty(t, acc, "frame %d", frame)
			continue
		}
		require.Len(t, acc, 1, "frame %d", frame)
		assert.Empty(t, ofKind(cmds, Button))
		assert.Empty(t, ofKind(cmds, Alert))
		out[frame] = holdResume{acc[0].Hold, acc[0].Resume}
	}
	return out
}

func stoppedFrom(f int) func(int) bool {
	return func(frame int) bool { return frame >= f }
}

func noIntent(int) DesiredIntent { return DesiredIntent{} }

func TestGen2_HoldAfterDelayForHoldWindow(t *testing.T) {
	// stopped at frame 10: last moving decision at frame 8
	got := gen2Run(t, 1000, stoppedFrom(10), noIntent)

	for frame, hr := range got {
		wantHold := frame >= 108 && frame < 608
		assert.Equal(t, wantHold, hr.hold, "frame %d", frame)
		assert.False(t, hr.resume, "frame %d", frame)
	}
	// 1.5 s after stopping the brake is held, 7.5 s after it is released
	assert.True(t, got[160].hold)
	assert.False(t, got[760].hold)
}

func TestGen2_ResumeDuringDelayNeverHolds(t *testing.T) {
	resumeUntil := func(last int) func(int) DesiredIntent {
		return func(frame int) DesiredIntent {
			return DesiredIntent{Resume: frame >= 10 && frame <= last}
		}
	}

	got := gen2Run(t, 200, stoppedFrom(10), resumeUntil(100))
	for frame, hr := range got {
		if frame < 108 {
			assert.False(t, hr.hold, "frame %d", frame)
			assert.False(t, hr.resume, "frame %d", frame)
		}
	}
	assert.True(t, got[108].hold)

	// resume still requested once the delay lapses: release, and hold
	// again only after the resume window closes
	got = gen2Run(t, 700, stoppedFrom(10), resumeUntil(200))
	for frame, hr := range got {
		wantResume := frame >= 108 && frame < 250
		wantHold := frame >= 250 && frame < 608
		assert.Equal(t, wantResume, hr.resume, "frame %d", frame)
		assert.Equal(t, wantHold, hr.hold, "frame %d", frame)
		assert.False(t, hr.hold && hr.resume, "frame %d", frame)
	}
}

func TestGen2_StartingAndOverrideRelease(t *testing.T) {
	for name, intent := range map[string]DesiredIntent{
		"starting": {LongControlState: LongControlStarting},
		"override": {Override: true},
	} {
		t.Run(name, func(t *testing.T) {
			got := gen2Run(t, 300, stoppedFrom(10), func(frame int) DesiredIntent {
				if frame == 150 {
					return intent
				}
				return DesiredIntent{}
			})
			assert.True(t, got[148].hold)
			assert.False(t, got[148].resume)
			// resume asserted for 0.5 s from the request
			assert.False(t, got[150].hold)
			assert.True(t, got[150].resume)
			assert.True(t, got[198].resume)
			assert.False(t, got[152].hold)
			assert.False(t, got[200].resume)
			assert.True(t, got[200].hold)
		})
	}
}

func TestGen2_MovingRearmsTimers(t *testing.T) {
	moving := func(frame int) bool {
		// first stop 10..799, move 800..809, second stop from 810
		return (frame >= 10 && frame < 800) || frame >= 810
	}
	got := gen2Run(t, 1200, moving, noIntent)

	assert.True(t, got[200].hold)
	assert.False(t, got[700].hold)
	assert.False(t, got[804].hold)
	assert.False(t, got[900].hold)
	assert.True(t, got[908].hold)
	assert.True(t, got[1000].hold)
}

func TestGen2_NeverHoldsWhileMoving(t *testing.T) {
	got := gen2Run(t, 400, func(int) bool { return false }, noIntent)
	for frame, hr := range got {
		assert.False(t, hr.hold, "frame %d", frame)
	}
}

func TestGen2_StartupAtStandstillDoesNotHold(t *testing.T) {
	got := gen2Run(t, 300, func(int) bool { return true }, noIntent)
	for frame, hr := range got {
		assert.False(t, hr.hold, "frame %d", frame)
		assert.False(t, hr.resume, "frame %d", frame)
	}
}

func TestGen2_HoldResumeCarriesAccelAndCruiseSignals(t *testing.T) {
	c := newTestController(t, gen2Params())
	crz := Signals{"ACC_ACTIVE": 1}
	_, cmds := c.Update(VehicleInput{CruiseInfo: crz}, DesiredIntent{Accel: 0.8})
	acc := ofKind(cmds, AccHoldResume)
	require.Len(t, acc, 1)
	assert.Equal(t, 0.8, acc[0].Accel)
	assert.Equal(t, crz, acc[0].Signals)
	assert.Equal(t, []CommandKind{AccHoldResume, SteeringTorque, InterceptorSteeringTorque}, kinds(cmds))
}
