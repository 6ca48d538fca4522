// Command clocktrack estimates the offset, skew and drift between two UWB
// device clocks from (send, receive) timestamp pairs, either replayed from a
// dataset file or read live from a serial port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/clocktrack/internal/config"
	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/version"
)

const defaultDataset = "dataset"

// options holds the parsed command line for replay and live mode.
type options struct {
	dataset      string
	startCounter int
	endCounter   int

	configPath string
	dbPath     string
	pngPath    string
	htmlPath   string
	tail       int

	serialPort string
	listen     string
	liveWindow int
}

func newFlagSet(opts *options, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("clocktrack", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.IntVar(&opts.startCounter, "s", 0, "start counter of dataset (shorthand)")
	fs.IntVar(&opts.startCounter, "start-counter", 0, "start counter of dataset")
	fs.IntVar(&opts.endCounter, "e", -1, "end counter of dataset, -1 for all records (shorthand)")
	fs.IntVar(&opts.endCounter, "end-counter", -1, "end counter of dataset, -1 for all records")

	fs.StringVar(&opts.configPath, "config", "", "tracker config JSON (default: built-in defaults)")
	fs.StringVar(&opts.dbPath, "db", "", "sqlite database to record the run in")
	fs.StringVar(&opts.pngPath, "png", "", "write offset/skew/drift plots to this PNG file")
	fs.StringVar(&opts.htmlPath, "html", "", "write interactive charts to this HTML file")
	fs.IntVar(&opts.tail, "tail", 100, "number of trailing records summarised")

	fs.StringVar(&opts.serialPort, "serial", "", "read pairs live from this serial port, or mock:<file> to replay a file as a port")
	fs.StringVar(&opts.listen, "listen", "", "serve the API and debug routes on this address in live mode")
	fs.IntVar(&opts.liveWindow, "live-window", 10000, "estimates kept in memory in live mode")

	fs.Usage = func() {
		fmt.Fprint(stderr, `Usage: clocktrack [flags] [dataset]
       clocktrack migrate <action> [-db file]
       clocktrack status [-addr url]
       clocktrack version

Flags:
`)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := newFlagSet(opts, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
		opts.dataset = defaultDataset
	case 1:
		opts.dataset = fs.Arg(0)
	default:
		return nil, fmt.Errorf("expected at most one dataset, got %d arguments", fs.NArg())
	}
	if opts.startCounter < 0 {
		return nil, fmt.Errorf("start counter must be >= 0, got %d", opts.startCounter)
	}
	if opts.endCounter < -1 {
		return nil, fmt.Errorf("end counter must be > 0 or -1, got %d", opts.endCounter)
	}
	return opts, nil
}

func loadConfig(path string) (*config.TrackerConfig, error) {
	if path == "" {
		return config.EmptyTrackerConfig(), nil
	}
	return config.LoadTrackerConfig(path)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 {
		switch args[0] {
		case "migrate":
			return runMigrate(args[1:], stdout, stderr)
		case "status":
			return runStatus(ctx, args[1:], stdout, stderr)
		case "version":
			fmt.Fprintln(stdout, version.String())
			return 0
		}
	}

	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "clocktrack: %v\n", err)
		return 2
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "clocktrack: %v\n", err)
		return 1
	}

	if opts.serialPort != "" {
		err = runLive(ctx, opts, cfg, stdout)
	} else {
		err = runReplay(ctx, opts, cfg, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "clocktrack: %v\n", err)
		return 1
	}
	return 0
}

func runMigrate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "clocktrack.db", "sqlite database to migrate")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if err := db.RunMigrateCommand(fs.Args(), *dbPath, stdout); err != nil {
		fmt.Fprintf(stderr, "clocktrack migrate: %v\n", err)
		return 1
	}
	return 0
}
