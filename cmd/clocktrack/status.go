package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/clocktrack/internal/api"
	"github.com/banshee-data/clocktrack/internal/httputil"
)

// statusClient is replaced in tests.
var statusClient httputil.HTTPClient

// runStatus prints the latest estimate and summary of a running live
// tracker.
func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "http://localhost:8080", "base URL of a clocktrack started with -listen")
	tail := fs.Int("tail", 100, "number of trailing records summarised")
	timeout := fs.Duration("timeout", 5*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c := api.NewClient(*addr, statusClient)
	live, err := c.Live(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "clocktrack status: %v\n", err)
		return 1
	}
	summary, err := c.LiveSummary(ctx, *tail)
	if err != nil {
		fmt.Fprintf(stderr, "clocktrack status: %v\n", err)
		return 1
	}

	e := live.Latest
	fmt.Fprintf(stdout, "record %d (%d held): send %v receive %v\n", e.Index, live.Records, e.Send, e.Receive)
	fmt.Fprintf(stdout, "offset %.12f s, skew %.12f, drift %.6g, accepted %v\n", e.Offset, e.Skew, e.Drift, e.Accepted)
	fmt.Fprintln(stdout, summary)
	return 0
}
