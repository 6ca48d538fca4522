// Package api serves stored runs and the live estimate over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/monitoring"
	"github.com/banshee-data/clocktrack/internal/pipeline"
	"github.com/banshee-data/clocktrack/internal/serialmux"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultSummaryTail is the number of trailing records summarised when the
// request does not say.
const DefaultSummaryTail = 100

// Server answers API requests. Any of its sources may be nil; the routes that
// need a missing source respond with 503.
type Server struct {
	m    serialmux.SerialMuxInterface
	db   *db.DB
	live *pipeline.Collector
}

func NewServer(m serialmux.SerialMuxInterface, database *db.DB, live *pipeline.Collector) *Server {
	return &Server{
		m:    m,
		db:   database,
		live: live,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/estimates", s.listRunEstimates)
	mux.HandleFunc("/api/runs/summary", s.showRunSummary)
	mux.HandleFunc("/api/live", s.showLive)
	mux.HandleFunc("/api/live/summary", s.showLiveSummary)
	mux.HandleFunc("/charts/run", s.runChart)
	mux.HandleFunc("/charts/live", s.liveChart)
	mux.HandleFunc("/command", s.sendCommandHandler)
	return mux
}
