package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"carctrl-core/closed_loop/carcontroller"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	t.Parallel()

	vars := []struct {
		name string
		val  any
	}{
		{"CyclesTotal", CyclesTotal},
		{"CycleOverruns", CycleOverruns},
		{"CycleLatency", CycleLatency},
		{"CommandsTotal", CommandsTotal},
		{"AppliedTorque", AppliedTorque},
		{"HoldActive", HoldActive},
		{"ResumeActive", ResumeActive},
		{"TxFramesTotal", TxFramesTotal},
		{"RxFramesTotal", RxFramesTotal},
		{"RxDropped", RxDropped},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestObserveCycle(t *testing.T) {
	t.Parallel()

	// unique label keeps parallel tests off each other's series
	const car = "test-observe-cycle"

	report := carcontroller.ActuatorReport{SteerOutputCAN: 120, InterceptorSteerOutputCAN: -40}
	cmds := []carcontroller.Command{
		{Kind: carcontroller.AccHoldResume, Hold: true},
		{Kind: carcontroller.SteeringTorque, Torque: 120},
		{Kind: carcontroller.InterceptorSteeringTorque, Torque: -40},
	}

	ObserveCycle(car, report, cmds, time.Millisecond, 10*time.Millisecond)
	ObserveCycle(car, report, cmds[1:], 20*time.Millisecond, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(CyclesTotal.WithLabelValues(car)))
	assert.Equal(t, 1.0, testutil.ToFloat64(CycleOverruns.WithLabelValues(car)))
	assert.Equal(t, 2.0, testutil.ToFloat64(CommandsTotal.WithLabelValues(car, "steering_torque")))
	assert.Equal(t, 1.0, testutil.ToFloat64(CommandsTotal.WithLabelValues(car, "acc_hold_resume")))
	assert.Equal(t, 120.0, testutil.ToFloat64(AppliedTorque.WithLabelValues(car, PathPrimary)))
	assert.Equal(t, -40.0, testutil.ToFloat64(AppliedTorque.WithLabelValues(car, PathInterceptor)))
	assert.Equal(t, 1.0, testutil.ToFloat64(HoldActive.WithLabelValues(car)))
	assert.Equal(t, 0.0, testutil.ToFloat64(ResumeActive.WithLabelValues(car)))
}

func TestMetrics_CounterIncrementNoPanic(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { TxFramesTotal.WithLabelValues("test-car", "CAM_LKAS").Inc() })
	assert.NotPanics(t, func() { RxFramesTotal.WithLabelValues("test-car", "ENGINE_DATA").Inc() })
	assert.NotPanics(t, func() { RxDropped.WithLabelValues("test-car", DropChecksum).Inc() })
}
