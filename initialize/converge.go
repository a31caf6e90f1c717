package initialize

import "math"

// converged reports whether every value in next is within
// absTol+relTol*|x| of the corresponding value in prev.
func converged(prev, next []float64, absTol, relTol float64) bool {
	for i := range next {
		tol := absTol + relTol*math.Abs(next[i])
		if math.Abs(next[i]-prev[i]) > tol {
			return false
		}
	}
	return true
}
