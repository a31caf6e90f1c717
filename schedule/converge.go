package schedule

import "math"

// converged reports whether every value in next is within absTol+relTol*|x|
// of the corresponding value in prev, the same tolerance check the
// initialization engine applies, used here for the runtime fixed-point over
// a step-time algebraic loop.
func converged(prev, next []float64, absTol, relTol float64) bool {
	for i := range next {
		tol := absTol + relTol*math.Abs(next[i])
		if math.Abs(next[i]-prev[i]) > tol {
			return false
		}
	}
	return true
}
