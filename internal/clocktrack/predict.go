package clocktrack

import (
	"fmt"

	"github.com/banshee-data/clocktrack/internal/dwt"
)

// elapsed returns the time from the tracker's timestamp to t in seconds.
// Predicting backwards in time is a caller bug and panics.
func (t *Tracker) elapsed(to dwt.Timestamp) float64 {
	d := dwt.WrappedDiff(to, t.t)
	if d < 0 {
		panic(fmt.Sprintf("clocktrack: cannot predict backwards from %v to %v", t.t, to))
	}
	return dwt.TicksToSeconds(d)
}

// PredictState returns the state extrapolated to timestamp to without
// modifying the tracker.
func (t *Tracker) PredictState(to dwt.Timestamp) Vector {
	dt := t.elapsed(to)
	x := t.x
	if dt == 0 {
		return x
	}
	// Offset integrates skew and skew integrates drift. The dt²/2 drift term
	// only enters through the covariance.
	x[Offset] += t.x[Skew] * dt
	x[Skew] += t.x[Drift] * dt
	return x
}

// PredictCovariance returns the covariance propagated to timestamp to
// without modifying the tracker.
func (t *Tracker) PredictCovariance(to dwt.Timestamp) Matrix {
	dt := t.elapsed(to)
	if dt == 0 {
		return t.cov
	}

	// State transition matrix for the second-order kinematic chain:
	// A = [1  dt  dt²/2]
	//     [0  1   dt   ]
	//     [0  0   1    ]
	A := Matrix{
		{1, dt, 0.5 * dt * dt},
		{0, 1, dt},
		{0, 0, 1},
	}

	// Continuous white-jerk process noise integrated over dt, scaled by the
	// squared acceleration noise.
	dt2 := dt * dt
	dt3 := dt * dt2
	dt4 := dt * dt3
	dt5 := dt * dt4
	q := t.accelerationNoise * t.accelerationNoise
	Q := Matrix{
		{dt5 / 20, dt4 / 8, dt3 / 6},
		{dt4 / 8, dt3 / 3, dt2 / 2},
		{dt3 / 6, dt2 / 2, dt},
	}

	// P' = A * P * A^T + Q
	var AP Matrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			var sum float64
			for k := 0; k < Dim; k++ {
				sum += A[i][k] * t.cov[k][j]
			}
			AP[i][j] = sum
		}
	}
	var P Matrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			var sum float64
			for k := 0; k < Dim; k++ {
				sum += AP[i][k] * A[j][k]
			}
			P[i][j] = sum + Q[i][j]*q
		}
	}
	return P
}

// Predict advances the tracker to timestamp to. Predicting to the current
// timestamp leaves the tracker unchanged. It panics if to is earlier than
// LastTimestamp and otherwise always reports true.
func (t *Tracker) Predict(to dwt.Timestamp) bool {
	x := t.PredictState(to)
	P := t.PredictCovariance(to)
	t.x = x
	t.cov = P
	t.t = to
	return true
}
