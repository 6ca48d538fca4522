package pipeline

import (
	"errors"
	"io"
	"sync"

	"github.com/banshee-data/clocktrack/internal/dataset"
	"github.com/banshee-data/clocktrack/internal/db"
	"github.com/banshee-data/clocktrack/internal/dwt"
)

// Sink receives estimates as they are produced.
type Sink interface {
	Write(e Estimate) error
	// Flush persists anything buffered.
	Flush() error
}

// MultiSink writes to every sink in order and stops at the first error.
type MultiSink []Sink

func (m MultiSink) Write(e Estimate) error {
	for _, s := range m {
		if err := s.Write(e); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink and joins their errors.
func (m MultiSink) Flush() error {
	var errs []error
	for _, s := range m {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CSVSink writes offset,skew,drift rows.
type CSVSink struct {
	w *dataset.EstimateWriter
}

func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: dataset.NewEstimateWriter(w)}
}

func (c *CSVSink) Write(e Estimate) error { return c.w.Write(e.Offset, e.Skew, e.Drift) }
func (c *CSVSink) Flush() error           { return c.w.Flush() }

// DefaultDBBatchSize is the number of estimates a DBSink buffers per
// transaction.
const DefaultDBBatchSize = 500

// DBSink stores estimates under a run.
type DBSink struct {
	db        *db.DB
	runID     string
	batch     []db.Estimate
	batchSize int
}

// NewDBSink buffers up to batchSize estimates per insert. A non-positive
// batchSize uses DefaultDBBatchSize.
func NewDBSink(database *db.DB, runID string, batchSize int) *DBSink {
	if batchSize <= 0 {
		batchSize = DefaultDBBatchSize
	}
	return &DBSink{db: database, runID: runID, batchSize: batchSize}
}

func (d *DBSink) Write(e Estimate) error {
	d.batch = append(d.batch, db.Estimate{
		Index:    e.Index,
		SendTick: uint64(e.Send),
		RecvTick: uint64(e.Receive),
		Offset:   e.Offset,
		Skew:     e.Skew,
		Drift:    e.Drift,
		Accepted: e.Accepted,
	})
	if len(d.batch) >= d.batchSize {
		return d.Flush()
	}
	return nil
}

func (d *DBSink) Flush() error {
	if len(d.batch) == 0 {
		return nil
	}
	if err := d.db.RecordEstimates(d.runID, d.batch); err != nil {
		return err
	}
	d.batch = d.batch[:0]
	return nil
}

// Collector keeps estimates in memory for charts and the live API. It is
// safe for concurrent use. A positive limit keeps only the most recent
// estimates.
type Collector struct {
	mu        sync.RWMutex
	limit     int
	estimates []Estimate
}

func NewCollector(limit int) *Collector {
	return &Collector{limit: limit}
}

func (c *Collector) Write(e Estimate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimates = append(c.estimates, e)
	if c.limit > 0 && len(c.estimates) > c.limit {
		n := copy(c.estimates, c.estimates[len(c.estimates)-c.limit:])
		c.estimates = c.estimates[:n]
	}
	return nil
}

func (c *Collector) Flush() error { return nil }

// Estimates returns a copy of the collected estimates.
func (c *Collector) Estimates() []Estimate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Estimate, len(c.estimates))
	copy(out, c.estimates)
	return out
}

// Latest returns the most recent estimate.
func (c *Collector) Latest() (Estimate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.estimates) == 0 {
		return Estimate{}, false
	}
	return c.estimates[len(c.estimates)-1], true
}

// Len returns the number of estimates held.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.estimates)
}

// FromStored converts estimates read back from the database.
func FromStored(rows []db.Estimate) []Estimate {
	out := make([]Estimate, len(rows))
	for i, r := range rows {
		out[i] = Estimate{
			Index:    r.Index,
			Send:     dwt.Timestamp(r.SendTick),
			Receive:  dwt.Timestamp(r.RecvTick),
			Offset:   r.Offset,
			Skew:     r.Skew,
			Drift:    r.Drift,
			Accepted: r.Accepted,
		}
	}
	return out
}
