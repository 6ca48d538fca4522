package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/clocktrack/internal/config"
	"github.com/banshee-data/clocktrack/internal/dataset"
	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/pipeline"
	"github.com/banshee-data/clocktrack/internal/report"
)

// runReplay tracks every record in [start, end) of the dataset and writes
// one offset,skew,drift row per record to <dataset>.out.
func runReplay(ctx context.Context, opts *options, cfg *config.TrackerConfig, stdout io.Writer) error {
	fmt.Fprintf(stdout, "dataset file: %s\n", opts.dataset)
	pairs, err := dataset.Load(opts.dataset)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "dataset file record num: %d\n", len(pairs))

	start, end, err := dataset.Bounds(len(pairs), opts.startCounter, opts.endCounter)
	if err != nil {
		return err
	}

	out, err := os.Create(dataset.OutputPath(opts.dataset))
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	collector := pipeline.NewCollector(0)
	sinks := pipeline.MultiSink{pipeline.NewCSVSink(out), collector}

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
			Source:            opts.dataset,
			StartCounter:      start,
			EndCounter:        end,
			AccelerationNoise: cfg.GetAccelerationNoise(),
			TimestampNoise:    cfg.GetTimestampNoise(),
			OutlierRatio:      cfg.GetOutlierRatio(),
		})
		if err != nil {
			return err
		}
		sinks = append(sinks, pipeline.NewDBSink(database, run.RunID, pipeline.DefaultDBBatchSize))
	}

	stats, err := pipeline.NewRunner(cfg, sinks).Run(ctx, pairs, start, end)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	if run != nil {
		if err := database.FinishRun(run.RunID, db.RunStats(stats)); err != nil {
			return err
		}
		log.Printf("recorded run %s in %s", run.RunID, database.Path())
	}

	return writeReports(opts, collector.Estimates(), stdout)
}

// writeReports prints the run summary and writes any requested charts.
func writeReports(opts *options, estimates []pipeline.Estimate, stdout io.Writer) error {
	fmt.Fprintln(stdout, report.Summarize(estimates, opts.tail))
	if len(estimates) == 0 {
		return nil
	}

	if opts.pngPath != "" {
		if err := report.SavePNG(opts.pngPath, estimates); err != nil {
			return err
		}
		log.Printf("wrote %s", opts.pngPath)
	}

	if opts.htmlPath != "" {
		f, err := os.Create(opts.htmlPath)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.htmlPath, err)
		}
		if err := report.RenderHTML(f, fmt.Sprintf("clocktrack %s", opts.dataset), estimates); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		log.Printf("wrote %s", opts.htmlPath)
	}
	return nil
}
