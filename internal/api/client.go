package api

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/httputil"
	"github.com/banshee-data/clocktrack/internal/report"
)

// Client reads a running tracker's API.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a Client for the server at baseURL. A nil c uses
// http.DefaultClient.
func NewClient(baseURL string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), http: c}
}

// Live returns the most recent live estimate.
func (c *Client) Live(ctx context.Context) (LiveStatus, error) {
	var s LiveStatus
	err := httputil.GetJSON(ctx, c.http, c.base+"/api/live", &s)
	return s, err
}

// LiveSummary summarises the last tail live estimates.
func (c *Client) LiveSummary(ctx context.Context, tail int) (report.Summary, error) {
	var s report.Summary
	err := httputil.GetJSON(ctx, c.http, fmt.Sprintf("%s/api/live/summary?tail=%d", c.base, tail), &s)
	return s, err
}

// Runs lists the most recent stored runs.
func (c *Client) Runs(ctx context.Context) ([]db.Run, error) {
	var runs []db.Run
	err := httputil.GetJSON(ctx, c.http, c.base+"/api/runs", &runs)
	return runs, err
}

// RunSummary summarises a stored run.
func (c *Client) RunSummary(ctx context.Context, runID string, tail int) (RunSummary, error) {
	var s RunSummary
	q := url.Values{"run_id": {runID}, "tail": {fmt.Sprint(tail)}}
	err := httputil.GetJSON(ctx, c.http, c.base+"/api/runs/summary?"+q.Encode(), &s)
	return s, err
}
