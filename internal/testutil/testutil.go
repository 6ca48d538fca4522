// Package testutil provides shared test utilities and fixtures.
//
// It centralises the simulated clock pairs and the small assertion helpers
// used across the tracker, pipeline and API tests.
package testutil

import (
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/clocktrack/internal/dwt"
)

// TicksPerMillisecond is one millisecond of device time.
const TicksPerMillisecond dwt.TimeDiff = 63897600

// DriftingClock simulates a peer radio whose clock runs at Skew times the
// rate of the local clock, optionally with Gaussian receive jitter.
type DriftingClock struct {
	Start  dwt.Timestamp // first send timestamp
	Offset dwt.TimeDiff  // receive minus send at the first sample
	Step   dwt.TimeDiff  // send interval in ticks
	Skew   float64       // peer ticks per local tick
	Jitter float64       // receive jitter standard deviation, seconds
	Seed   int64
}

// Pairs returns n simulated (send, receive) observations. Both clocks wrap
// modulo 2^40.
func (c DriftingClock) Pairs(n int) []dwt.Pair {
	rng := rand.New(rand.NewSource(c.Seed))
	jitterTicks := c.Jitter * 1e6 * dwt.UsToDtuTime

	pairs := make([]dwt.Pair, n)
	for i := 0; i < n; i++ {
		elapsed := float64(c.Step) * float64(i)
		recv := float64(c.Offset) + elapsed*c.Skew
		if jitterTicks > 0 {
			recv += rng.NormFloat64() * jitterTicks
		}
		pairs[i] = dwt.Pair{
			Send:    c.Start.Add(dwt.TimeDiff(int64(i) * int64(c.Step))),
			Receive: c.Start.Add(dwt.TimeDiff(math.Round(recv))),
		}
	}
	return pairs
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}
