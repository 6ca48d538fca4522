// Package pipeline drives a clock tracker over a sequence of timestamp pairs
// and fans the resulting estimates out to sinks.
package pipeline

import (
	"context"
	"errors"

	"github.com/banshee-data/clocktrack/internal/clocktrack"
	"github.com/banshee-data/clocktrack/internal/config"
	"github.com/banshee-data/clocktrack/internal/dwt"
	"github.com/banshee-data/clocktrack/internal/monitoring"
)

// Estimate is the tracker state after processing one pair.
type Estimate struct {
	Index    int           `json:"index"`
	Send     dwt.Timestamp `json:"send"`
	Receive  dwt.Timestamp `json:"receive"`
	Offset   float64       `json:"offset"`
	Skew     float64       `json:"skew"`
	Drift    float64       `json:"drift"`
	Accepted bool          `json:"accepted"`
}

// Stats counts what a Runner has processed.
type Stats struct {
	Processed int `json:"processed"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	// UnhealthySteps counts steps after which the covariance check failed.
	UnhealthySteps int `json:"unhealthy_steps"`
	// Skipped counts pairs whose send time fell slightly behind the tracker.
	Skipped int `json:"skipped"`
	// Reseeded counts tracker restarts after the send counter jumped back by
	// more than the reorder window, which is what a gap longer than half the
	// counter period looks like.
	Reseeded int `json:"reseeded"`
}

// ErrSkipped is returned by Step for a stale pair. Run and Stream drop the
// pair and carry on.
var ErrSkipped = errors.New("stale pair skipped")

// NewTracker builds a tracker from cfg, anchored at the first pair: the
// initial offset is the first receive time in seconds.
func NewTracker(cfg *config.TrackerConfig, first dwt.Pair) *clocktrack.Tracker {
	u := clocktrack.New(cfg.GetAccelerationNoise(), cfg.GetTimestampNoise())
	u.SetOutlierThreshold(cfg.GetOutlierRatio())
	x0 := clocktrack.Vector{first.Receive.Seconds(), cfg.GetInitialSkew(), cfg.GetInitialDrift()}
	return u.InitDiag(first.Send, x0, clocktrack.Vector(cfg.GetInitialCovariance()))
}

// Runner feeds pairs through a tracker. The tracker is created from the
// first pair the Runner sees. A Runner is not safe for concurrent use.
type Runner struct {
	cfg     *config.TrackerConfig
	sink    Sink
	tracker *clocktrack.Tracker
	stats   Stats
	healthy bool
	logf    func(format string, v ...interface{})
}

// NewRunner returns a Runner that writes every estimate to sink. A nil sink
// discards estimates.
func NewRunner(cfg *config.TrackerConfig, sink Sink) *Runner {
	if sink == nil {
		sink = MultiSink{}
	}
	return &Runner{cfg: cfg, sink: sink, healthy: true, logf: monitoring.Prefixed("[tracker] ")}
}

// Tracker returns the underlying tracker, or nil before the first pair.
func (r *Runner) Tracker() *clocktrack.Tracker { return r.tracker }

// Stats returns the counters so far.
func (r *Runner) Stats() Stats { return r.stats }

// Step processes pair i: predict to its send time, then update with its
// receive time. A send time up to the reorder window behind the tracker is
// dropped with ErrSkipped; one further behind restarts the tracker at p.
func (r *Runner) Step(i int, p dwt.Pair) (Estimate, error) {
	if r.tracker == nil {
		r.tracker = NewTracker(r.cfg, p)
	} else if d := dwt.WrappedDiff(p.Send, r.tracker.LastTimestamp()); d < 0 {
		behind := -dwt.TicksToSeconds(d)
		if behind <= r.cfg.GetReorderWindow() {
			r.stats.Skipped++
			r.logf("i: %d, skipping stale pair: send %v is %.6f s behind %v", i, p.Send, behind, r.tracker.LastTimestamp())
			return Estimate{}, ErrSkipped
		}
		r.stats.Reseeded++
		r.logf("i: %d, send %v is %.3f s behind %v, re-seeding tracker", i, p.Send, behind, r.tracker.LastTimestamp())
		r.tracker = NewTracker(r.cfg, p)
		r.healthy = true
	}

	r.tracker.Predict(p.Send)
	accepted := r.tracker.Update(p.Receive)

	r.stats.Processed++
	if accepted {
		r.stats.Accepted++
	} else {
		r.stats.Rejected++
		r.logf("i: %d, update failed!", i)
	}

	if r.cfg.GetCovarianceCheck() {
		r.checkCovariance(i)
	}

	x := r.tracker.State()
	e := Estimate{
		Index:    i,
		Send:     p.Send,
		Receive:  p.Receive,
		Offset:   x[clocktrack.Offset],
		Skew:     x[clocktrack.Skew],
		Drift:    x[clocktrack.Drift],
		Accepted: accepted,
	}
	return e, r.sink.Write(e)
}

func (r *Runner) checkCovariance(i int) {
	report := clocktrack.CheckCovariance(r.tracker.Covariance())
	healthy := report.Healthy()
	if !healthy {
		r.stats.UnhealthySteps++
	}
	if healthy != r.healthy {
		if healthy {
			r.logf("i: %d, covariance recovered", i)
		} else {
			r.logf("i: %d, covariance unhealthy: min eigenvalue %g, max %g, asymmetry %g, finite %v",
				i, report.MinEigenvalue, report.MaxEigenvalue, report.Asymmetry, report.Finite)
		}
		r.healthy = healthy
	}
}

// Run processes pairs[start:end] in order, numbering records by their
// position in pairs. Cancellation is checked between records.
func (r *Runner) Run(ctx context.Context, pairs []dwt.Pair, start, end int) (Stats, error) {
	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return r.stats, err
		}
		if _, err := r.Step(i, pairs[i]); err != nil && !errors.Is(err, ErrSkipped) {
			return r.stats, err
		}
	}
	return r.stats, r.sink.Flush()
}

// Stream processes pairs from ch until it is closed or ctx is done.
func (r *Runner) Stream(ctx context.Context, ch <-chan dwt.Pair) (Stats, error) {
	i := r.stats.Processed + r.stats.Skipped
	for {
		select {
		case <-ctx.Done():
			if err := r.sink.Flush(); err != nil {
				return r.stats, err
			}
			return r.stats, ctx.Err()
		case p, ok := <-ch:
			if !ok {
				return r.stats, r.sink.Flush()
			}
			if _, err := r.Step(i, p); err != nil && !errors.Is(err, ErrSkipped) {
				return r.stats, err
			}
			i++
		}
	}
}
