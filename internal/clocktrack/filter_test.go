package clocktrack

import (
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/clocktrack/internal/dwt"
	"github.com/banshee-data/clocktrack/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictSameTimestampIsNoOp(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(1000, Vector{0.25, 1.00001, 1e-9})
	tr.Predict(1000 + dwt.Timestamp(testutil.TicksPerMillisecond))
	x, P := tr.State(), tr.Covariance()

	assert.True(t, tr.Predict(tr.LastTimestamp()))
	assert.Equal(t, x, tr.State())
	assert.Equal(t, P, tr.Covariance())
}

func TestPredictBackwardsPanics(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(1000, Vector{0, 1, 0})
	assert.Panics(t, func() { tr.Predict(999) })
	assert.Panics(t, func() { tr.PredictState(0) })
	assert.Panics(t, func() { tr.PredictCovariance(500) })
	assert.Equal(t, dwt.Timestamp(1000), tr.LastTimestamp())
}

func TestPredictAcrossCounterWrap(t *testing.T) {
	t.Parallel()

	start := dwt.Timestamp(dwt.TimestampMask - 99)
	tr := newTestTracker(start, Vector{0, 1, 0})
	to := start.Add(testutil.TicksPerMillisecond)
	require.Less(t, uint64(to), uint64(start))

	assert.True(t, tr.Predict(to))
	assert.Equal(t, to, tr.LastTimestamp())
	assert.InDelta(t, 1e-3, tr.State()[Offset], 1e-15)
}

func TestPredictState(t *testing.T) {
	t.Parallel()

	x0 := Vector{0.5, 1.00002, 3e-6}
	tr := newTestTracker(0, x0)
	x := tr.PredictState(dwt.Timestamp(10 * testutil.TicksPerMillisecond))

	dt := 10e-3
	assert.InDelta(t, x0[Offset]+x0[Skew]*dt, x[Offset], 1e-15)
	assert.InDelta(t, x0[Skew]+x0[Drift]*dt, x[Skew], 1e-15)
	assert.Equal(t, x0[Drift], x[Drift])

	// Previews do not modify the tracker.
	assert.Equal(t, x0, tr.State())
	assert.Equal(t, dwt.Timestamp(0), tr.LastTimestamp())
}

func TestPredictStateIntegratesDrift(t *testing.T) {
	t.Parallel()

	tr := newTestTracker(0, Vector{0, 1, 1e-3})
	x := tr.PredictState(dwt.Timestamp(dwt.SecondsToTicks(1)))

	assert.InDelta(t, 1.001, x[Skew], 1e-12)
	// Offset uses the skew from before the step.
	assert.InDelta(t, 1.0, x[Offset], 1e-9)
	assert.Equal(t, 1e-3, x[Drift])
}

func TestPredictCovariance(t *testing.T) {
	t.Parallel()

	u := New(2e-3, testTimestampNoise)
	tr := u.Init(0, Vector{}, Matrix{})
	dt := 0.5
	P := tr.PredictCovariance(dwt.Timestamp(dwt.SecondsToTicks(dt)))

	q := 2e-3 * 2e-3
	want := Matrix{
		{q * math.Pow(dt, 5) / 20, q * math.Pow(dt, 4) / 8, q * math.Pow(dt, 3) / 6},
		{q * math.Pow(dt, 4) / 8, q * math.Pow(dt, 3) / 3, q * dt * dt / 2},
		{q * math.Pow(dt, 3) / 6, q * dt * dt / 2, q * dt},
	}
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			assert.InEpsilon(t, want[i][j], P[i][j], 1e-9, "P[%d][%d]", i, j)
		}
	}
	assert.Equal(t, Matrix{}, tr.Covariance())
}

func TestPredictCovariancePropagatesUncertainty(t *testing.T) {
	t.Parallel()

	tr := New(testAccelerationNoise, testTimestampNoise).InitDiag(0, Vector{}, Vector{1, 2, 3})
	dt := 0.25
	P := tr.PredictCovariance(dwt.Timestamp(dwt.SecondsToTicks(dt)))

	// A * diag(1,2,3) * A^T without process noise.
	A := Matrix{{1, dt, dt * dt / 2}, {0, 1, dt}, {0, 0, 1}}
	d := Vector{1, 2, 3}
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			var want float64
			for k := 0; k < Dim; k++ {
				want += A[i][k] * d[k] * A[j][k]
			}
			assert.InDelta(t, want, P[i][j], 1e-12, "P[%d][%d]", i, j)
		}
	}
}

func TestUpdateAccepted(t *testing.T) {
	t.Parallel()

	tr := New(testAccelerationNoise, 1e-3).InitDiag(0, Vector{0, 1, 0}, Vector{4e-6, 1, 1})
	ts := dwt.Timestamp(dwt.SecondsToTicks(1e-3))

	residual, s2 := tr.Innovation(ts)
	assert.InDelta(t, 1e-3, residual, 1e-12)
	assert.InDelta(t, 4e-6+1e-6, s2, 1e-18)

	require.True(t, tr.Update(ts))

	k := 4e-6 / s2
	x := tr.State()
	assert.InDelta(t, k*residual, x[Offset], 1e-15)
	assert.Equal(t, 1.0, x[Skew])
	assert.Equal(t, 0.0, x[Drift])

	P := tr.Covariance()
	assert.InDelta(t, (1-k)*4e-6, P[0][0], 1e-18)
	assert.Equal(t, 1.0, P[1][1])
	assert.Equal(t, 1.0, P[2][2])
	assert.Equal(t, dwt.Timestamp(0), tr.LastTimestamp())
}

func TestUpdateGainUsesCrossCovariance(t *testing.T) {
	t.Parallel()

	P0 := Matrix{
		{2, 1, 0.5},
		{1, 2, 0.25},
		{0.5, 0.25, 1},
	}
	tr := New(testAccelerationNoise, 1).Init(0, Vector{}, P0)
	ts := dwt.Timestamp(dwt.SecondsToTicks(1))
	residual, s2 := tr.Innovation(ts)
	require.InDelta(t, 3.0, s2, 1e-12)
	require.True(t, tr.Update(ts))

	x := tr.State()
	for i := 0; i < Dim; i++ {
		assert.InDelta(t, P0[i][0]/s2*residual, x[i], 1e-12, "x[%d]", i)
	}
	P := tr.Covariance()
	for i := 0; i < Dim; i++ {
		for j := 0; j < Dim; j++ {
			assert.InDelta(t, P0[i][j]-P0[i][0]*P0[0][j]/s2, P[i][j], 1e-12, "P[%d][%d]", i, j)
		}
	}
}

func TestUpdateRejectsOutlier(t *testing.T) {
	t.Parallel()

	tr := New(testAccelerationNoise, 1e-9).InitDiag(0, Vector{0, 1, 0}, Vector{1e-18, 1e-12, 1e-12})
	tr.SetOutlierThreshold(1.5)
	x, P := tr.State(), tr.Covariance()

	// 1 µs is hundreds of standard deviations away from the estimate.
	ts := dwt.Timestamp(dwt.SecondsToTicks(1e-6))
	assert.False(t, tr.Update(ts))
	assert.Equal(t, x, tr.State())
	assert.Equal(t, P, tr.Covariance())

	// A consistent measurement is still accepted afterwards.
	assert.True(t, tr.Update(0))
}

func TestUpdateGateBoundary(t *testing.T) {
	t.Parallel()

	tr := New(testAccelerationNoise, 1).Init(0, Vector{}, Matrix{})
	tr.SetOutlierThreshold(2)

	// s = 1 second, so a 1.9 s residual passes and 2.1 s fails.
	assert.False(t, tr.Update(dwt.Timestamp(dwt.SecondsToTicks(2.1))))
	assert.True(t, tr.Update(dwt.Timestamp(dwt.SecondsToTicks(1.9))))
}

func TestCovarianceStaysPSD(t *testing.T) {
	t.Parallel()

	// A prior many orders of magnitude wider than the measurement noise makes
	// the (I-KH)P update cancel catastrophically, so this uses a prior matched
	// to the simulated clocks.
	p0 := Vector{1e-18, 1e-11, 1e-12}
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		c := testutil.DriftingClock{
			Start:  dwt.Timestamp(rng.Int63n(int64(dwt.TimestampModulus))),
			Step:   testutil.TicksPerMillisecond * dwt.TimeDiff(1+rng.Intn(50)),
			Skew:   1 + (rng.Float64()-0.5)*2e-6,
			Jitter: rng.Float64() * testTimestampNoise,
			Seed:   seed,
		}
		pairs := c.Pairs(300)

		tr := New(testAccelerationNoise, testTimestampNoise).InitDiag(
			pairs[0].Send,
			Vector{pairs[0].Receive.Seconds(), 1, 0},
			p0,
		)
		for i, p := range pairs {
			tr.Predict(p.Send)
			tr.Update(p.Receive)

			// Occasionally skip ahead without a measurement.
			if rng.Intn(10) == 0 && i+1 < len(pairs) {
				mid := p.Send.Add(dwt.WrappedDiff(pairs[i+1].Send, p.Send) / 2)
				tr.Predict(mid)
			}

			r := CheckCovariance(tr.Covariance())
			if !r.Healthy() {
				t.Fatalf("seed %d step %d: covariance unhealthy: %+v\n%v", seed, i, r, tr.Covariance())
			}
		}
	}
}

func TestConvergesToSimulatedSkew(t *testing.T) {
	t.Parallel()

	const trueSkew = 1 + 20e-6
	c := testutil.DriftingClock{
		Start:  1 << 30,
		Step:   testutil.TicksPerMillisecond,
		Skew:   trueSkew,
		Jitter: 0.1e-9,
		Seed:   42,
	}
	pairs := c.Pairs(200)

	tr := newTestTracker(pairs[0].Send, Vector{pairs[0].Receive.Seconds(), 1, 0})
	rejected := 0
	for _, p := range pairs {
		tr.Predict(p.Send)
		if !tr.Update(p.Receive) {
			rejected++
		}
	}

	x := tr.State()
	assert.InDelta(t, trueSkew, x[Skew], 5e-7)
	assert.InDelta(t, 0, x[Drift], 5e-3)
	assert.InDelta(t, pairs[len(pairs)-1].Receive.Seconds(), x[Offset], 2e-9)
	assert.Less(t, rejected, len(pairs)/10)
}

func TestCheckCovariance(t *testing.T) {
	t.Parallel()

	t.Run("identity is healthy", func(t *testing.T) {
		r := CheckCovariance(Identity())
		assert.True(t, r.Healthy())
		assert.InDelta(t, 1, r.MinEigenvalue, 1e-12)
		assert.InDelta(t, 1, r.MaxEigenvalue, 1e-12)
	})

	t.Run("zero matrix is PSD", func(t *testing.T) {
		assert.True(t, CheckCovariance(Matrix{}).Healthy())
	})

	t.Run("negative eigenvalue", func(t *testing.T) {
		P := Matrix{
			{1, 2, 0},
			{2, 1, 0},
			{0, 0, 1},
		}
		r := CheckCovariance(P)
		assert.False(t, r.PSD)
		assert.InDelta(t, -1, r.MinEigenvalue, 1e-12)
		assert.InDelta(t, 3, r.MaxEigenvalue, 1e-12)
	})

	t.Run("asymmetric", func(t *testing.T) {
		P := Identity()
		P[0][1] = 0.1
		r := CheckCovariance(P)
		assert.False(t, r.Healthy())
		assert.InDelta(t, 0.1, r.Asymmetry, 1e-12)
	})

	t.Run("non-finite", func(t *testing.T) {
		P := Identity()
		P[2][2] = math.Inf(1)
		r := CheckCovariance(P)
		assert.False(t, r.Finite)
		assert.False(t, r.Healthy())
	})
}
