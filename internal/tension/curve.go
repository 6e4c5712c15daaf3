package tension

import "math"

// Curve shapes an event's contribution over its lifetime.
type Curve int

const (
	// CurveSpike rises fast and releases slowly. Used for positive impulses.
	CurveSpike Curve = iota
	// CurveSoft swells and fades smoothly. Used for relief events.
	CurveSoft
)

// Value returns the curve multiplier at progress p, where p runs from 0
// at the event's start to 1 at the end of its duration.
func (c Curve) Value(p float64) float64 {
	p = clamp01(p)
	switch c {
	case CurveSpike:
		const attack = 0.2
		if p < attack {
			q := p / attack
			return q * (2 - q)
		}
		q := (p - attack) / (1 - attack)
		return 1 - q*q
	case CurveSoft:
		return math.Sin(p * math.Pi)
	}
	return 0
}

// smoothDamp moves current toward target with critically damped spring
// motion, so the value settles without oscillating past the target.
// Returns the new value and velocity.
func smoothDamp(current, target, velocity, smoothTime, deltaTime float64) (float64, float64) {
	omega := 2.0 / smoothTime
	x := omega * deltaTime
	exp := 1.0 / (1.0 + x + 0.48*x*x + 0.235*x*x*x)

	change := current - target
	temp := (velocity + omega*change) * deltaTime
	velocity = (velocity - omega*temp) * exp
	value := target + (change+temp)*exp

	// Pin to the target if the spring carried the value past it.
	if (target > current) == (value > target) {
		value = target
		velocity = 0
	}
	return value, velocity
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
