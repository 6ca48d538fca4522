// Package dataset reads recorded (send, receive) timestamp pairs and writes
// tracker estimates.
//
// A dataset is a text file with one record per line. Each record holds at
// least two whitespace-separated hexadecimal device timestamps: the local
// send time and the peer receive time. Further columns are ignored.
package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/clocktrack/internal/dwt"
)

// ErrMalformedRecord reports a dataset line that cannot be parsed.
var ErrMalformedRecord = errors.New("malformed record")

// ParseTimestamp parses a hexadecimal device timestamp with an optional 0x
// prefix.
func ParseTimestamp(s string) (dwt.Timestamp, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if h == "" {
		return 0, fmt.Errorf("empty timestamp %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	ts := dwt.Timestamp(v)
	if !ts.Valid() {
		return 0, fmt.Errorf("timestamp %q exceeds %d bits", s, dwt.TimestampBits)
	}
	return ts, nil
}

// Read parses every record in r. Blank lines are skipped.
func Read(r io.Reader) ([]dwt.Pair, error) {
	var pairs []dwt.Pair
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: %w: want 2 columns, got %d", line, ErrMalformedRecord, len(fields))
		}
		send, err := ParseTimestamp(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRecord, err)
		}
		recv, err := ParseTimestamp(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", line, ErrMalformedRecord, err)
		}
		pairs = append(pairs, dwt.Pair{Send: send, Receive: recv})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return pairs, nil
}

// Load reads the dataset file at path.
func Load(path string) ([]dwt.Pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Bounds resolves the start and end counters for a dataset of n records.
// A negative end selects every record through the last one. The resolved
// range is [start, end).
func Bounds(n, start, end int) (int, int, error) {
	if end < 0 {
		end = n
	}
	if start < 0 {
		return 0, 0, fmt.Errorf("start counter must be >= 0, got %d", start)
	}
	if end > n {
		return 0, 0, fmt.Errorf("end counter %d beyond dataset of %d records", end, n)
	}
	if start >= end {
		return 0, 0, fmt.Errorf("empty range: start %d, end %d", start, end)
	}
	return start, end, nil
}
