package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/clocktrack/internal/api"
	"github.com/banshee-data/clocktrack/internal/config"
	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/pipeline"
	"github.com/banshee-data/clocktrack/internal/serialmux"
)

const mockPrefix = "mock:"

// mockInterval paces lines replayed through a mock serial port.
var mockInterval = time.Millisecond

// openSerial opens the serial device at name. "mock:<file>" replays the lines
// of file as if a node had printed them.
func openSerial(name string, cfg *config.TrackerConfig) (serialmux.SerialMuxInterface, error) {
	if path, ok := strings.CutPrefix(name, mockPrefix); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open mock serial file: %w", err)
		}
		lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
		mux, _ := serialmux.NewMockSerialMux(lines, mockInterval)
		return mux, nil
	}
	return serialmux.NewRealSerialMux(name, serialmux.OptionsFromConfig(cfg))
}

// runLive tracks pairs read from a serial port until the port closes or ctx
// is cancelled.
func runLive(ctx context.Context, opts *options, cfg *config.TrackerConfig, stdout io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mux, err := openSerial(opts.serialPort, cfg)
	if err != nil {
		return err
	}
	defer mux.Close()
	log.Printf("reading pairs from %s", opts.serialPort)

	collector := pipeline.NewCollector(opts.liveWindow)
	sinks := pipeline.MultiSink{collector}

	var (
		database *db.DB
		run      *db.Run
	)
	if opts.dbPath != "" {
		database, err = db.NewDB(opts.dbPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		run, err = database.CreateRun(db.RunParams{
			Source:            opts.serialPort,
			EndCounter:        -1,
			AccelerationNoise: cfg.GetAccelerationNoise(),
			TimestampNoise:    cfg.GetTimestampNoise(),
			OutlierRatio:      cfg.GetOutlierRatio(),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, pipeline.NewDBSink(database, run.RunID, pipeline.DefaultDBBatchSize))
	}

	// Subscribe before the monitor starts so no line is missed.
	pairs := serialmux.Pairs(ctx, mux)

	var wg sync.WaitGroup

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor serial port: %v", err)
		}
		// Closing the mux ends the pair stream once buffered lines drain.
		mux.Close()
		log.Print("monitor routine terminated")
	}()

	if opts.listen != "" {
		httpMux := http.NewServeMux()
		server := api.NewServer(mux, database, collector)
		httpMux.Handle("/", api.LoggingMiddleware(server.ServeMux()))
		mux.AttachAdminRoutes(httpMux)
		if database != nil {
			if err := database.AttachAdminRoutes(httpMux); err != nil {
				return err
			}
		}
		srv := &http.Server{Addr: opts.listen, Handler: httpMux}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveUntilDone(ctx, srv)
		}()
	}

	stats, err := pipeline.NewRunner(cfg, sinks).Stream(ctx, pairs)
	cancel()
	wg.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if stats.Skipped > 0 || stats.Reseeded > 0 {
		log.Printf("skipped %d stale pairs, re-seeded the tracker %d times", stats.Skipped, stats.Reseeded)
	}

	if run != nil {
		if err := database.FinishRun(run.RunID, db.RunStats(stats)); err != nil {
			return err
		}
		log.Printf("recorded run %s in %s", run.RunID, database.Path())
	}
	return writeReports(opts, collector.Estimates(), stdout)
}

// serveUntilDone runs srv until ctx is done and then shuts it down.
func serveUntilDone(ctx context.Context, srv *http.Server) {
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := srv.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
}
