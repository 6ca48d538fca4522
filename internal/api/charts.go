package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/clocktrack/internal/httputil"
	"github.com/banshee-data/clocktrack/internal/pipeline"
	"github.com/banshee-data/clocktrack/internal/report"
)

func (s *Server) runChart(w http.ResponseWriter, r *http.Request) {
	run, estimates, ok := s.runEstimates(w, r)
	if !ok {
		return
	}
	s.renderChart(w, fmt.Sprintf("Run %s (%s)", run.RunID, run.Source), estimates)
}

func (s *Server) liveChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.live == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no live source")
		return
	}
	s.renderChart(w, "Live clock tracking", s.live.Estimates())
}

func (s *Server) renderChart(w http.ResponseWriter, title string, estimates []pipeline.Estimate) {
	var buf bytes.Buffer
	if err := report.RenderHTML(&buf, title, estimates); err != nil {
		if errors.Is(err, report.ErrNoEstimates) {
			httputil.NotFound(w, "no estimates to chart")
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
