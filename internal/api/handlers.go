package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/httputil"
	"github.com/banshee-data/clocktrack/internal/pipeline"
	"github.com/banshee-data/clocktrack/internal/report"
)

// RunSummary is the response of /api/runs/summary.
type RunSummary struct {
	Run     *db.Run        `json:"run"`
	Summary report.Summary `json:"summary"`
}

// LiveStatus is the response of /api/live.
type LiveStatus struct {
	Latest  pipeline.Estimate `json:"latest"`
	Records int               `json:"records"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	runs, err := s.db.Runs()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// runEstimates loads the run named by the run_id query parameter. It writes
// the error response itself and returns ok=false on failure.
func (s *Server) runEstimates(w http.ResponseWriter, r *http.Request) (*db.Run, []pipeline.Estimate, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return nil, nil, false
	}
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return nil, nil, false
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		httputil.BadRequest(w, "Missing 'run_id' parameter")
		return nil, nil, false
	}

	run, err := s.db.Run(runID)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, fmt.Sprintf("run %s not found", runID))
		return nil, nil, false
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve run: %v", err))
		return nil, nil, false
	}
	rows, err := s.db.Estimates(runID)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to retrieve estimates: %v", err))
		return nil, nil, false
	}
	return run, pipeline.FromStored(rows), true
}

func (s *Server) listRunEstimates(w http.ResponseWriter, r *http.Request) {
	_, estimates, ok := s.runEstimates(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, estimates)
}

func (s *Server) showRunSummary(w http.ResponseWriter, r *http.Request) {
	tail, err := httputil.IntQuery(r, "tail", DefaultSummaryTail)
	if err != nil {
		httputil.BadRequest(w, "Invalid 'tail' parameter")
		return
	}
	run, estimates, ok := s.runEstimates(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, RunSummary{Run: run, Summary: report.Summarize(estimates, tail)})
}

func (s *Server) showLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.live == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no live source")
		return
	}
	latest, ok := s.live.Latest()
	if !ok {
		httputil.NotFound(w, "no live estimate yet")
		return
	}
	httputil.WriteJSONOK(w, LiveStatus{Latest: latest, Records: s.live.Len()})
}

func (s *Server) showLiveSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.live == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no live source")
		return
	}
	tail, err := httputil.IntQuery(r, "tail", DefaultSummaryTail)
	if err != nil {
		httputil.BadRequest(w, "Invalid 'tail' parameter")
		return
	}
	httputil.WriteJSONOK(w, report.Summarize(s.live.Estimates(), tail))
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.m == nil {
		http.Error(w, "No serial port", http.StatusServiceUnavailable)
		return
	}

	command := strings.TrimSpace(r.FormValue("command"))
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}
	if err := s.m.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
