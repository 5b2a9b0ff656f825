package stella

import "math"

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// norm returns the Euclidean norm of a vector of any length.
func norm(v []float64) float64 {
	var sum float64
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}

// norm2 returns the Euclidean norm of a 2-D vector.
func norm2(x, y float64) float64 {
	return math.Hypot(x, y)
}

// norm3 returns the Euclidean norm of a 3-D vector.
func norm3(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}

// clamp bounds v to [-limit, limit].
func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}

// wrapAngle wraps an angle into (-π, π].
func wrapAngle(θ float64) float64 {
	for θ > math.Pi {
		θ -= 2 * math.Pi
	}
	for θ <= -math.Pi {
		θ += 2 * math.Pi
	}
	return θ
}
