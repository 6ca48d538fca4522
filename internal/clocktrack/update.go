package clocktrack

import "github.com/banshee-data/clocktrack/internal/dwt"

// Innovation returns the measurement residual for timestamp ts and its
// variance, without modifying the tracker. The measurement model is
// H = [1 0 0]: ts, in seconds, is a direct noisy read of the offset.
func (t *Tracker) Innovation(ts dwt.Timestamp) (residual, variance float64) {
	residual = ts.Seconds() - t.x[Offset]
	// S = H * P * H^T + R
	variance = t.cov[0][0] + t.timestampNoise*t.timestampNoise
	return residual, variance
}

// Update corrects the state with the offset measurement ts. The tracker's
// timestamp is not advanced; callers predict to the measurement time first.
// A measurement whose residual exceeds the outlier threshold (in standard
// deviations) is rejected: Update returns false and the tracker is left
// unchanged.
func (t *Tracker) Update(ts dwt.Timestamp) bool {
	residual, s2 := t.Innovation(ts)
	if residual*residual > t.outlierRatio*t.outlierRatio*s2 {
		return false
	}

	// Kalman gain K = P * H^T / S, the first column of P scaled.
	var K Vector
	for i := 0; i < Dim; i++ {
		K[i] = t.cov[i][0] / s2
	}

	// x' = x + K * y
	for i := 0; i < Dim; i++ {
		t.x[i] += K[i] * residual
	}

	// P' = (I - K*H) * P. With H = [1 0 0], (K*H)[i][j] is K[i] for j == 0
	// and zero elsewhere, so row i of the product is P[i] - K[i]*P[0].
	var P Matrix
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			P[i][j] = t.cov[i][j] - K[i]*t.cov[0][j]
		}
	}
	t.cov = P
	return true
}
