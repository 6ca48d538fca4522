package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// OutputPath returns the estimate file written for a dataset.
func OutputPath(dataset string) string {
	return dataset + ".out"
}

// EstimateWriter writes one "offset,skew,drift" row per processed record.
// There is no header row.
type EstimateWriter struct {
	w *csv.Writer
}

// NewEstimateWriter wraps w.
func NewEstimateWriter(w io.Writer) *EstimateWriter {
	return &EstimateWriter{w: csv.NewWriter(w)}
}

// Write appends a row.
func (e *EstimateWriter) Write(offset, skew, drift float64) error {
	row := []string{formatFloat(offset), formatFloat(skew), formatFloat(drift)}
	if err := e.w.Write(row); err != nil {
		return fmt.Errorf("write estimate: %w", err)
	}
	return nil
}

// Flush writes any buffered rows to the underlying writer.
func (e *EstimateWriter) Flush() error {
	e.w.Flush()
	return e.w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
