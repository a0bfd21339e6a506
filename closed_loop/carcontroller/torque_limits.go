package carcontroller

import "math"

// ApplyDriverSteerTorqueLimits limits a desired primary-path torque.
//
// The target is first confined to an envelope that shrinks as the driver
// pushes against it, then rate limited around last. While the driver
// resists last beyond DriverAllowance, the step toward zero widens to
// OverrideRate.
func ApplyDriverSteerTorqueLimits(desired, last int, driverTorque float64, lim TorqueLimits) int {
	maxTorque := float64(lim.MaxTorque)

	driverMax := maxTorque + (lim.DriverAllowance+driverTorque*lim.DriverFactor)*lim.DriverMultiplier
	driverMin := -maxTorque + (-lim.DriverAllowance+driverTorque*lim.DriverFactor)*lim.DriverMultiplier
	maxAllowed := math.Max(math.Min(maxTorque, driverMax), 0)
	minAllowed := math.Min(math.Max(-maxTorque, driverMin), 0)

	torque := clampFloat(float64(desired), minAllowed, maxAllowed)
	return rateLimit(torque, last, driverTorque, lim)
}

// ApplyInterceptorSteerTorqueLimits limits a desired interceptor-path
// torque. The interceptor enforces its own driver override, so only the
// magnitude and rate bounds apply here.
func ApplyInterceptorSteerTorqueLimits(desired, last int, driverTorque float64, lim TorqueLimits) int {
	maxTorque := float64(lim.MaxTorque)
	torque := clampFloat(float64(desired), -maxTorque, maxTorque)
	return rateLimit(torque, last, driverTorque, lim)
}

// driverOverriding reports whether the driver pushes against last harder
// than the allowance.
func driverOverriding(last int, driverTorque float64, lim TorqueLimits) bool {
	if last == 0 || math.Abs(driverTorque) <= lim.DriverAllowance {
		return false
	}
	return (last > 0) != (driverTorque > 0)
}

func rateLimit(torque float64, last int, driverTorque float64, lim TorqueLimits) int {
	up := float64(lim.MaxRate)
	down := up
	if driverOverriding(last, driverTorque, lim) && lim.OverrideRate > lim.MaxRate {
		down = float64(lim.OverrideRate)
	}

	prev := float64(last)
	if last > 0 {
		torque = clampFloat(torque, math.Max(prev-down, -up), prev+up)
	} else {
		torque = clampFloat(torque, prev-up, math.Min(prev+down, up))
	}

	out := int(math.Round(torque))
	return clampInt(out, -lim.MaxTorque, lim.MaxTorque)
}

// desiredTorque scales a normalized steer command to a raw torque.
func desiredTorque(steer float64, maxTorque int) int {
	return int(math.Round(steer * float64(maxTorque)))
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
