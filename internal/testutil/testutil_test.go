package testutil

import (
	"net/http"
	"testing"

	"github.com/banshee-data/clocktrack/internal/dwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriftingClockPairs(t *testing.T) {
	t.Parallel()

	c := DriftingClock{
		Step: TicksPerMillisecond,
		Skew: 1 + 10e-6,
	}
	pairs := c.Pairs(5)
	require.Len(t, pairs, 5)

	assert.Equal(t, dwt.Pair{}, pairs[0])
	for i := 1; i < len(pairs); i++ {
		send := dwt.WrappedDiff(pairs[i].Send, pairs[i-1].Send)
		assert.Equal(t, TicksPerMillisecond, send)

		recv := dwt.WrappedDiff(pairs[i].Receive, pairs[i-1].Receive)
		assert.InDelta(t, float64(TicksPerMillisecond)*c.Skew, float64(recv), 1)
	}
}

func TestDriftingClockWraps(t *testing.T) {
	t.Parallel()

	c := DriftingClock{
		Start: dwt.Timestamp(dwt.TimestampMask) - dwt.Timestamp(TicksPerMillisecond),
		Step:  TicksPerMillisecond,
		Skew:  1,
	}
	pairs := c.Pairs(3)
	for _, p := range pairs {
		assert.True(t, p.Send.Valid())
		assert.True(t, p.Receive.Valid())
	}
	assert.Less(t, uint64(pairs[2].Send), uint64(pairs[0].Send))
	assert.Equal(t, 2*TicksPerMillisecond, dwt.WrappedDiff(pairs[2].Send, pairs[0].Send))
}

func TestDriftingClockJitterIsSeeded(t *testing.T) {
	t.Parallel()

	c := DriftingClock{Step: TicksPerMillisecond, Skew: 1, Jitter: 1e-9, Seed: 7}
	assert.Equal(t, c.Pairs(20), c.Pairs(20))
}

func TestAssertStatusCode(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertStatusCode(t, http.StatusNotFound, http.StatusNotFound)
}

func TestAssertNoError(t *testing.T) {
	t.Parallel()

	AssertNoError(t, nil)
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodGet, "/api/runs")
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/runs", req.URL.Path)

	rec := NewTestRecorder()
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
