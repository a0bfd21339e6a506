package carcontroller

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gen1Params() CarParams {
	return CarParams{
		Model:      "test-gen1",
		Generation: GenOne,
		Limits: LimiterConfig{
			Steer: testSteerLimits(),
			Interceptor: TorqueLimits{
				MaxTorque:       1000,
				MaxRate:         40,
				OverrideRate:    120,
				DriverAllowance: 20,
			},
		},
	}
}

func gen2Params() CarParams {
	p := gen1Params()
	p.Model = "test-gen2"
	p.Generation = GenTwo
	return p
}

func newTestController(t *testing.T, p CarParams) *Controller {
	t.Helper()
	c, err := New(p)
	require.NoError(t, err)
	return c
}

func kinds(cmds []Command) []CommandKind {
	out := make([]CommandKind, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, c.Kind)
	}
	return out
}

func ofKind(cmds []Command, k CommandKind) []Command {
	var out []Command
	for _, c := range cmds {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

func TestNew_RejectsInvalidParams(t *testing.T) {
	p := gen1Params()
	p.Generation = 0
	_, err := New(p)
	assert.Error(t, err)

	p = gen1Params()
	p.Limits.Steer.MaxRate = 0
	_, err = New(p)
	assert.Error(t, err)

	p = gen1Params()
	p.Limits.EnableTorqueInterceptor = true
	p.Limits.Interceptor.MaxTorque = 0
	_, err = New(p)
	assert.Error(t, err)
}

func TestUpdate_Gen1FirstCycle(t *testing.T) {
	c := newTestController(t, gen1Params())
	camLKAS := Signals{"LINE_NOT_VISIBLE": 0, "ERR_BIT_1": 0}
	laneInfo := Signals{"LANE_LINES": 3}

	report, cmds := c.Update(
		VehicleInput{CamLKAS: camLKAS, CamLaneInfo: laneInfo},
		DesiredIntent{LatActive: true, Steer: 0.5},
	)

	want := []Command{
		{Kind: Alert, Frame: 0, Signals: laneInfo},
		{Kind: SteeringTorque, Frame: 0, Torque: 50, Signals: camLKAS},
		{Kind: InterceptorSteeringTorque, Frame: 0, Torque: 0},
	}
	if diff := cmp.Diff(want, cmds); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, ActuatorReport{Steer: 50.0 / 300.0, SteerOutputCAN: 50}, report)
	assert.Equal(t, ControllerState{ApplySteerLast: 50, Frame: 1}, c.State())
}

func TestUpdate_SteeringCommandsAlwaysLast(t *testing.T) {
	for _, p := range []CarParams{gen1Params(), gen2Params()} {
		t.Run(p.Generation.String(), func(t *testing.T) {
			c := newTestController(t, p)
			for i := 0; i < 120; i++ {
				_, cmds := c.Update(VehicleInput{}, DesiredIntent{Resume: i%3 == 0})
				require.GreaterOrEqual(t, len(cmds), 2)
				n := len(cmds)
				assert.Equal(t, SteeringTorque, cmds[n-2].Kind, "frame %d", i)
				assert.Equal(t, InterceptorSteeringTorque, cmds[n-1].Kind, "frame %d", i)
				assert.Len(t, ofKind(cmds, SteeringTorque), 1)
				assert.Len(t, ofKind(cmds, InterceptorSteeringTorque), 1)
			}
		})
	}
}

func TestUpdate_RampsToTarget(t *testing.T) {
	c := newTestController(t, gen1Params())
	intent := DesiredIntent{LatActive: true, Steer: 0.5}

	var got []int
	for i := 0; i < 5; i++ {
		r, _ := c.Update(VehicleInput{}, intent)
		got = append(got, r.SteerOutputCAN)
	}
	assert.Equal(t, []int{50, 100, 150, 150, 150}, got)
}

func TestUpdate_DisengageResetsTorque(t *testing.T) {
	p := gen1Params()
	p.Limits.EnableTorqueInterceptor = true
	c := newTestController(t, p)

	in := VehicleInput{InterceptorAllowed: true}
	for i := 0; i < 20; i++ {
		c.Update(in, DesiredIntent{LatActive: true, Steer: 1})
	}
	require.Equal(t, 300, c.State().ApplySteerLast)
	require.Equal(t, 800, c.State().InterceptorApplySteerLast)

	report, cmds := c.Update(in, DesiredIntent{LatActive: false, Steer: 1})
	assert.Equal(t, 0, report.SteerOutputCAN)
	assert.Equal(t, 0, report.InterceptorSteerOutputCAN)
	assert.Equal(t, 0, c.State().ApplySteerLast)
	assert.Equal(t, 0, c.State().InterceptorApplySteerLast)
	assert.Equal(t, 0, ofKind(cmds, SteeringTorque)[0].Torque)
	assert.Equal(t, 0, ofKind(cmds, InterceptorSteeringTorque)[0].Torque)

	// re-engaging starts from zero, not from the torque before disengagement
	report, _ = c.Update(in, DesiredIntent{LatActive: true, Steer: 1})
	assert.Equal(t, 50, report.SteerOutputCAN)
	assert.Equal(t, 40, report.InterceptorSteerOutputCAN)
}

func TestUpdate_InterceptorNeedsHandshake(t *testing.T) {
	p := gen1Params()
	p.Limits.EnableTorqueInterceptor = true
	c := newTestController(t, p)
	intent := DesiredIntent{LatActive: true, Steer: 0.5}

	report, cmds := c.Update(VehicleInput{InterceptorAllowed: false}, intent)
	assert.Equal(t, 0, report.InterceptorSteerOutputCAN)
	// still transmitted so the interceptor can be discovered
	require.Len(t, ofKind(cmds, InterceptorSteeringTorque), 1)
	assert.Equal(t, 0, ofKind(cmds, InterceptorSteeringTorque)[0].Torque)

	report, cmds = c.Update(VehicleInput{InterceptorAllowed: true}, intent)
	assert.Equal(t, 40, report.InterceptorSteerOutputCAN)
	assert.Equal(t, 40, ofKind(cmds, InterceptorSteeringTorque)[0].Torque)
	assert.Equal(t, 100, report.SteerOutputCAN)
}

func TestUpdate_InterceptorDisabledIgnoresHandshake(t *testing.T) {
	c := newTestController(t, gen1Params())
	report, _ := c.Update(VehicleInput{InterceptorAllowed: true}, DesiredIntent{LatActive: true, Steer: 0.5})
	assert.Equal(t, 0, report.InterceptorSteerOutputCAN)
}

func TestUpdate_ReportCopiesLongitudinalIntent(t *testing.T) {
	c := newTestController(t, gen2Params())
	report, _ := c.Update(VehicleInput{}, DesiredIntent{
		LatActive:        true,
		Steer:            -0.1,
		Accel:            -1.25,
		LongControlState: LongControlStopping,
	})
	assert.Equal(t, -30, report.SteerOutputCAN)
	assert.InDelta(t, -0.1, report.Steer, 1e-9)
	assert.Equal(t, -1.25, report.Accel)
	assert.Equal(t, LongControlStopping, report.LongControlState)
}

func TestUpdate_FrameCounterAdvancesOncePerCycle(t *testing.T) {
	c := newTestController(t, gen1Params())
	for i := uint64(0); i < 30; i++ {
		_, cmds := c.Update(VehicleInput{}, DesiredIntent{})
		for _, cmd := range cmds {
			assert.Equal(t, i, cmd.Frame)
		}
	}
	assert.Equal(t, uint64(30), c.State().Frame)
	assert.Equal(t, uint64(30), c.clock.Frame())
}
