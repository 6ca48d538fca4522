// Package clocktrack estimates the clock offset, skew and drift between two
// UWB radios with a three-state linear Kalman filter.
//
// A tracker starts out Uninitialized, carrying only its noise parameters.
// Init or InitDiag turns it into a Tracker, which is the only phase that can
// Predict and Update. Misuse (non-positive noise, predicting backwards in
// time, re-using a consumed Uninitialized) panics; a measurement rejected by
// the outlier gate is reported through Update's return value.
package clocktrack

import (
	"fmt"

	"github.com/banshee-data/clocktrack/internal/dwt"
)

// Dim is the dimension of the tracker state.
const Dim = 3

// State vector indices.
const (
	Offset = iota // seconds
	Skew          // dimensionless rate
	Drift         // rate of skew change, 1/s
)

const (
	// DefaultOutlierThreshold is the innovation gate in standard deviations.
	DefaultOutlierThreshold = 2.8
	// UninitializedVariance is the diagonal covariance of a freshly
	// constructed tracker.
	UninitializedVariance = 8e8
)

// Vector is a tracker state vector: offset, skew, drift.
type Vector [Dim]float64

// Matrix is a row-major 3x3 covariance matrix.
type Matrix [Dim][Dim]float64

// Identity returns the 3x3 identity matrix.
func Identity() Matrix {
	return Matrix{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Diag returns a diagonal matrix with d on the diagonal.
func Diag(d Vector) Matrix {
	return Matrix{
		{d[0], 0, 0},
		{0, d[1], 0},
		{0, 0, d[2]},
	}
}

// filter holds the data shared by both tracker phases.
type filter struct {
	accelerationNoise float64 // process noise spectral density
	timestampNoise    float64 // measurement noise standard deviation, seconds
	x                 Vector
	cov               Matrix
	t                 dwt.Timestamp
	outlierRatio      float64
}

// State returns a copy of the current state estimate.
func (f *filter) State() Vector { return f.x }

// Covariance returns a copy of the current state covariance.
func (f *filter) Covariance() Matrix { return f.cov }

// LastTimestamp returns the timestamp the state currently refers to.
func (f *filter) LastTimestamp() dwt.Timestamp { return f.t }

// OutlierThreshold returns the innovation gate in standard deviations.
func (f *filter) OutlierThreshold() float64 { return f.outlierRatio }

// ProcessNoise returns the acceleration noise spectral density.
func (f *filter) ProcessNoise() float64 { return f.accelerationNoise }

// MeasurementNoise returns the timestamp noise standard deviation.
func (f *filter) MeasurementNoise() float64 { return f.timestampNoise }

// SetOutlierThreshold changes the innovation gate. The threshold must be
// positive.
func (f *filter) SetOutlierThreshold(ratio float64) {
	if !(ratio > 0) {
		panic(fmt.Sprintf("clocktrack: outlier threshold must be positive, got %g", ratio))
	}
	f.outlierRatio = ratio
}

// Uninitialized is a tracker that has noise parameters but no state yet.
type Uninitialized struct {
	filter
	consumed bool
}

// Tracker is an initialized clock tracker.
type Tracker struct {
	filter
}

// New returns an uninitialized tracker. Both the process (acceleration) noise
// and the measurement (timestamp) noise must be positive.
func New(accelerationNoise, timestampNoise float64) *Uninitialized {
	if !(accelerationNoise > 0 && timestampNoise > 0) {
		panic(fmt.Sprintf("clocktrack: noise parameters must be positive, got acceleration=%g timestamp=%g",
			accelerationNoise, timestampNoise))
	}
	p := Identity()
	for i := 0; i < Dim; i++ {
		p[i][i] = UninitializedVariance
	}
	return &Uninitialized{
		filter: filter{
			accelerationNoise: accelerationNoise,
			timestampNoise:    timestampNoise,
			cov:               p,
			outlierRatio:      DefaultOutlierThreshold,
		},
	}
}

// Init starts tracking at t0 with state x0 and covariance P0. The noise
// parameters and outlier threshold carry over. An Uninitialized can only be
// initialized once.
func (u *Uninitialized) Init(t0 dwt.Timestamp, x0 Vector, P0 Matrix) *Tracker {
	if u.consumed {
		panic("clocktrack: tracker already initialized")
	}
	u.consumed = true

	f := u.filter
	f.x = x0
	f.cov = P0
	f.t = t0
	return &Tracker{filter: f}
}

// InitDiag is Init with a diagonal initial covariance.
func (u *Uninitialized) InitDiag(t0 dwt.Timestamp, x0, p0 Vector) *Tracker {
	return u.Init(t0, x0, Diag(p0))
}

func (t *Tracker) String() string {
	return fmt.Sprintf("t=%v offset=%.12g skew=%.12g drift=%.6g", t.t, t.x[Offset], t.x[Skew], t.x[Drift])
}
