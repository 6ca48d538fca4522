package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/httputil"
	"github.com/banshee-data/clocktrack/internal/monitoring"
	"github.com/banshee-data/clocktrack/internal/pipeline"
	"github.com/banshee-data/clocktrack/internal/report"
	"github.com/banshee-data/clocktrack/internal/serialmux"
	"github.com/banshee-data/clocktrack/internal/testutil"
)

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := testutil.NewTestRecorder()
	s.ServeMux().ServeHTTP(w, testutil.NewTestRequest(method, target))
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), "body: %s", w.Body.String())
	return v
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[map[string]string](t, w)["error"]
}

func liveCollector(n int) *pipeline.Collector {
	c := pipeline.NewCollector(0)
	for i := 0; i < n; i++ {
		c.Write(pipeline.Estimate{Index: i, Offset: float64(i), Skew: 1 + 5e-6, Accepted: true})
	}
	return c
}

func TestListRuns(t *testing.T) {
	s := NewServer(nil, cloneAPITestDB(t), nil)

	w := serve(t, s, http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	runs := decode[[]db.Run](t, w)
	require.Len(t, runs, 1)
	assert.Equal(t, seededRunID, runs[0].RunID)
	assert.Equal(t, seededEstimates, runs[0].Processed)
	assert.Equal(t, 1, runs[0].Rejected)
	assert.NotNil(t, runs[0].FinishedAt)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodPost, "/api/runs").Code)
}

func TestListRunsEmpty(t *testing.T) {
	database := cloneAPITestDB(t)
	_, err := database.Exec("DELETE FROM runs")
	testutil.AssertNoError(t, err)

	w := serve(t, NewServer(nil, database, nil), http.MethodGet, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRunEstimates(t *testing.T) {
	s := NewServer(nil, cloneAPITestDB(t), nil)

	w := serve(t, s, http.MethodGet, "/api/runs/estimates?run_id="+seededRunID)
	require.Equal(t, http.StatusOK, w.Code)
	es := decode[[]pipeline.Estimate](t, w)
	require.Len(t, es, seededEstimates)
	assert.False(t, es[seededRejected].Accepted)
	assert.Equal(t, uint64(49*63899), uint64(es[49].Receive))

	tests := []struct {
		name    string
		method  string
		target  string
		status  int
		message string
	}{
		{"missing run id", http.MethodGet, "/api/runs/estimates", http.StatusBadRequest, "Missing 'run_id' parameter"},
		{"unknown run", http.MethodGet, "/api/runs/estimates?run_id=nope", http.StatusNotFound, "run nope not found"},
		{"wrong method", http.MethodDelete, "/api/runs/estimates?run_id=" + seededRunID, http.StatusMethodNotAllowed, "method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, s, tt.method, tt.target)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, errorMessage(t, w))
		})
	}
}

func TestRunSummary(t *testing.T) {
	s := NewServer(nil, cloneAPITestDB(t), nil)

	w := serve(t, s, http.MethodGet, "/api/runs/summary?tail=10&run_id="+seededRunID)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[RunSummary](t, w)
	assert.Equal(t, seededRunID, got.Run.RunID)
	assert.Equal(t, seededEstimates, got.Summary.Records)
	assert.Equal(t, 1, got.Summary.Rejected)
	assert.Equal(t, 10, got.Summary.Window)
	assert.InDelta(t, seededSkew, got.Summary.SkewMean, 1e-12)
	assert.InDelta(t, 0.049, got.Summary.FinalOffset, 1e-12)

	w = serve(t, s, http.MethodGet, "/api/runs/summary?run_id="+seededRunID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, seededEstimates, decode[RunSummary](t, w).Summary.Window)

	w = serve(t, s, http.MethodGet, "/api/runs/summary?tail=x&run_id="+seededRunID)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid 'tail' parameter", errorMessage(t, w))
}

func TestNoSources(t *testing.T) {
	s := NewServer(nil, nil, nil)
	for _, target := range []string{
		"/api/runs",
		"/api/runs/estimates?run_id=x",
		"/api/runs/summary?run_id=x",
		"/api/live",
		"/api/live/summary",
		"/charts/run?run_id=x",
		"/charts/live",
	} {
		testutil.AssertStatusCode(t, serve(t, s, http.MethodGet, target).Code, http.StatusServiceUnavailable)
	}
}

func TestLive(t *testing.T) {
	live := pipeline.NewCollector(0)
	s := NewServer(nil, nil, live)

	w := serve(t, s, http.MethodGet, "/api/live")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no live estimate yet", errorMessage(t, w))

	for i := 0; i < 3; i++ {
		live.Write(pipeline.Estimate{Index: i, Skew: 1.5, Accepted: true})
	}
	w = serve(t, s, http.MethodGet, "/api/live")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[LiveStatus](t, w)
	assert.Equal(t, 3, got.Records)
	assert.Equal(t, 2, got.Latest.Index)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodPut, "/api/live").Code)
}

func TestLiveSummary(t *testing.T) {
	s := NewServer(nil, nil, liveCollector(20))

	w := serve(t, s, http.MethodGet, "/api/live/summary?tail=5")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[report.Summary](t, w)
	assert.Equal(t, 20, got.Records)
	assert.Equal(t, 5, got.Window)
	assert.InDelta(t, 5, got.SkewPPM, 1e-6)

	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodGet, "/api/live/summary?tail=-1").Code)
}

func TestCharts(t *testing.T) {
	s := NewServer(nil, cloneAPITestDB(t), liveCollector(10))

	w := serve(t, s, http.MethodGet, "/charts/run?run_id="+seededRunID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), fmt.Sprintf("Run %s (dataset)", seededRunID))

	w = serve(t, s, http.MethodGet, "/charts/live")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Live clock tracking")

	assert.Equal(t, http.StatusNotFound, serve(t, s, http.MethodGet, "/charts/run?run_id=missing").Code)

	empty := NewServer(nil, nil, pipeline.NewCollector(0))
	w = serve(t, empty, http.MethodGet, "/charts/live")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no estimates to chart", errorMessage(t, w))
}

func TestSendCommand(t *testing.T) {
	port := serialmux.NewTestableSerialPort()
	s := NewServer(serialmux.NewSerialMux(port), nil, nil)

	post := func(s *Server, command string) *httptest.ResponseRecorder {
		form := url.Values{"command": {command}}
		req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		s.ServeMux().ServeHTTP(w, req)
		return w
	}

	w := post(s, "rate 100")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Command sent successfully", w.Body.String())
	assert.Equal(t, "rate 100\n", string(port.GetWrittenData()))

	assert.Equal(t, http.StatusBadRequest, post(s, "   ").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodGet, "/command").Code)
	assert.Equal(t, http.StatusServiceUnavailable, post(NewServer(nil, nil, nil), "rate 100").Code)

	port.WriteError = fmt.Errorf("unplugged")
	assert.Equal(t, http.StatusInternalServerError, post(s, "rate 100").Code)
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{503, colorBoldRed + "503" + colorReset},
		{101, "101"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeColor(tt.code), "code %d", tt.code)
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var logged []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = original })

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/live?x=1", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], colorBoldRed+"418"+colorReset)
	assert.Contains(t, logged[0], "GET")
	assert.Contains(t, logged[0], "/api/live?x=1")
}

func TestClient(t *testing.T) {
	s := NewServer(nil, cloneAPITestDB(t), liveCollector(4))
	srv := httptest.NewServer(LoggingMiddleware(s.ServeMux()))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL+"/", nil)

	live, err := c.Live(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, live.Records)
	assert.Equal(t, 3, live.Latest.Index)

	sum, err := c.LiveSummary(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Window)

	runs, err := c.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	rs, err := c.RunSummary(ctx, runs[0].RunID, 0)
	require.NoError(t, err)
	assert.Equal(t, seededEstimates, rs.Summary.Window)

	_, err = c.RunSummary(ctx, "missing", 0)
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClientUsesInjectedHTTPClient(t *testing.T) {
	m := httputil.NewMockHTTPClient().AddResponse(http.StatusOK, `{"latest": {"index": 9}, "records": 10}`)
	c := NewClient("http://tracker:8080", m)

	live, err := c.Live(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, live.Latest.Index)
	require.Equal(t, 1, m.RequestCount())
	assert.Equal(t, "http://tracker:8080/api/live", m.Requests[0].URL.String())
}
