// Package report summarises and charts the estimates produced by a tracker
// run.
package report

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/clocktrack/internal/pipeline"
)

// Summary describes a run. Skew and drift statistics cover the accepted
// estimates among the last Window records.
type Summary struct {
	Records         int     `json:"records"`
	Accepted        int     `json:"accepted"`
	Rejected        int     `json:"rejected"`
	AcceptanceRatio float64 `json:"acceptance_ratio"`

	Window    int     `json:"window"`
	SkewMean  float64 `json:"skew_mean"`
	SkewStd   float64 `json:"skew_std"`
	DriftMean float64 `json:"drift_mean"`
	DriftStd  float64 `json:"drift_std"`

	FinalOffset float64 `json:"final_offset"`
	FinalSkew   float64 `json:"final_skew"`
	// SkewPPM is FinalSkew as parts per million away from 1.
	SkewPPM float64 `json:"skew_ppm"`
}

// Summarize computes a Summary over estimates. tail limits the statistics to
// the last tail records; tail <= 0 uses all of them.
func Summarize(estimates []pipeline.Estimate, tail int) Summary {
	s := Summary{Records: len(estimates)}
	if len(estimates) == 0 {
		return s
	}
	for _, e := range estimates {
		if e.Accepted {
			s.Accepted++
		}
	}
	s.Rejected = s.Records - s.Accepted
	s.AcceptanceRatio = float64(s.Accepted) / float64(s.Records)

	window := estimates
	if tail > 0 && tail < len(window) {
		window = window[len(window)-tail:]
	}
	s.Window = len(window)

	skew := make([]float64, 0, len(window))
	drift := make([]float64, 0, len(window))
	for _, e := range window {
		if !e.Accepted {
			continue
		}
		skew = append(skew, e.Skew)
		drift = append(drift, e.Drift)
	}
	if len(skew) > 0 {
		s.SkewMean, s.SkewStd = meanStdDev(skew)
		s.DriftMean, s.DriftStd = meanStdDev(drift)
	}

	last := estimates[len(estimates)-1]
	s.FinalOffset = last.Offset
	s.FinalSkew = last.Skew
	s.SkewPPM = (last.Skew - 1) * 1e6
	return s
}

// stat.MeanStdDev returns NaN for the deviation of a single sample.
func meanStdDev(x []float64) (mean, std float64) {
	mean, std = stat.MeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

func (s Summary) String() string {
	return fmt.Sprintf("records: %d, accepted: %d, rejected: %d (%.2f%% accepted)\n"+
		"skew: %.12f (%+.3f ppm), mean %.12f, std %.3g over last %d\n"+
		"drift: mean %.6g, std %.3g\n"+
		"offset: %.12f s",
		s.Records, s.Accepted, s.Rejected, 100*s.AcceptanceRatio,
		s.FinalSkew, s.SkewPPM, s.SkewMean, s.SkewStd, s.Window,
		s.DriftMean, s.DriftStd,
		s.FinalOffset)
}
