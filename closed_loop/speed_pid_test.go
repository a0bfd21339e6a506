package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedPID_Proportional(t *testing.T) {
	pid := NewSpeedPID(SpeedPIDConfig{Kp: 0.5, MaxAccel: 2, MinAccel: -3})

	// 36 kph short is 10 m/s of error
	assert.Equal(t, 2.0, pid.Update(72, 36, 0.01), "saturated")
	assert.InDelta(t, 0.5*(1/3.6), pid.Update(50, 49, 0.01), 1e-9)
	assert.InDelta(t, -0.5*(2/3.6), pid.Update(50, 52, 0.01), 1e-9)
	assert.Equal(t, -3.0, pid.Update(0, 100, 0.01))
}

func TestSpeedPID_IntegralAntiWindup(t *testing.T) {
	pid := NewSpeedPID(SpeedPIDConfig{Ki: 1, MaxAccel: 1, MinAccel: -1, IntegralLimit: 100})

	for i := 0; i < 1000; i++ {
		pid.Update(100, 0, 0.01)
	}
	assert.Equal(t, 1.0, pid.Diagnostics().Integral, "held at the saturation point")

	// one step below target unwinds immediately
	assert.Less(t, pid.Update(0, 3.6, 0.01), 1.0)
}

func TestSpeedPID_ResetDropsHistory(t *testing.T) {
	pid := NewSpeedPID(SpeedPIDConfig{Kp: 0.1, Ki: 0.2, Kd: 0.05, MaxAccel: 2, MinAccel: -2, IntegralLimit: 5})
	first := pid.Update(60, 50, 0.01)
	pid.Update(60, 55, 0.01)

	pid.Reset()
	assert.Equal(t, first, pid.Update(60, 50, 0.01))
}

func TestSpeedPIDConfig_Validate(t *testing.T) {
	assert.Error(t, SpeedPIDConfig{MaxAccel: -1, MinAccel: 1}.validate())
	assert.Error(t, SpeedPIDConfig{MaxAccel: 1, MinAccel: -1, IntegralLimit: -1}.validate())
	assert.NoError(t, SpeedPIDConfig{MaxAccel: 2, MinAccel: -3.5}.validate())
}
