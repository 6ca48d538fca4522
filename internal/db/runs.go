package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunParams describes a run at creation time.
type RunParams struct {
	Source            string // dataset path or serial device
	StartCounter      int
	EndCounter        int
	AccelerationNoise float64
	TimestampNoise    float64
	OutlierRatio      float64
}

// RunStats are the counters written when a run finishes.
type RunStats struct {
	Processed      int
	Accepted       int
	Rejected       int
	UnhealthySteps int
	Skipped        int // stale pairs dropped
	Reseeded       int // tracker restarts after a send-counter jump
}

// Run is one pass of the tracker over a dataset or a live source.
type Run struct {
	RunID             string     `json:"run_id"`
	Source            string     `json:"source"`
	StartCounter      int        `json:"start_counter"`
	EndCounter        int        `json:"end_counter"`
	AccelerationNoise float64    `json:"acceleration_noise"`
	TimestampNoise    float64    `json:"timestamp_noise"`
	OutlierRatio      float64    `json:"outlier_ratio"`
	Processed         int        `json:"processed"`
	Accepted          int        `json:"accepted"`
	Rejected          int        `json:"rejected"`
	UnhealthySteps    int        `json:"unhealthy_steps"`
	Skipped           int        `json:"skipped"`
	Reseeded          int        `json:"reseeded"`
	CreatedAt         time.Time  `json:"created_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty"`
}

// Estimate is the tracker state stored after one record.
type Estimate struct {
	Index    int     `json:"idx"`
	SendTick uint64  `json:"send_tick"`
	RecvTick uint64  `json:"recv_tick"`
	Offset   float64 `json:"offset"`
	Skew     float64 `json:"skew"`
	Drift    float64 `json:"drift"`
	Accepted bool    `json:"accepted"`
}

// CreateRun inserts a new run with a fresh ID.
func (db *DB) CreateRun(p RunParams) (*Run, error) {
	run := &Run{
		RunID:             uuid.New().String(),
		Source:            p.Source,
		StartCounter:      p.StartCounter,
		EndCounter:        p.EndCounter,
		AccelerationNoise: p.AccelerationNoise,
		TimestampNoise:    p.TimestampNoise,
		OutlierRatio:      p.OutlierRatio,
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
	}

	_, err := db.Exec(
		`INSERT INTO runs (
			run_id, source, start_counter, end_counter,
			acceleration_noise, timestamp_noise, outlier_ratio, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.StartCounter, run.EndCounter,
		run.AccelerationNoise, run.TimestampNoise, run.OutlierRatio, run.CreatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

const insertEstimate = `INSERT INTO estimates (
	run_id, idx, send_tick, recv_tick, clock_offset, skew, drift, accepted
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// RecordEstimate stores a single estimate.
func (db *DB) RecordEstimate(runID string, e Estimate) error {
	_, err := db.Exec(insertEstimate,
		runID, e.Index, int64(e.SendTick), int64(e.RecvTick), e.Offset, e.Skew, e.Drift, e.Accepted)
	if err != nil {
		return fmt.Errorf("failed to record estimate %d: %w", e.Index, err)
	}
	return nil
}

// RecordEstimates stores a batch of estimates in one transaction.
func (db *DB) RecordEstimates(runID string, es []Estimate) error {
	if len(es) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertEstimate)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range es {
		if _, err := stmt.Exec(runID, e.Index, int64(e.SendTick), int64(e.RecvTick),
			e.Offset, e.Skew, e.Drift, e.Accepted); err != nil {
			return fmt.Errorf("failed to record estimate %d: %w", e.Index, err)
		}
	}
	return tx.Commit()
}

// FinishRun stores the final counters of a run.
func (db *DB) FinishRun(runID string, s RunStats) error {
	res, err := db.Exec(
		`UPDATE runs SET processed = ?, accepted = ?, rejected = ?, unhealthy_steps = ?,
		skipped = ?, reseeded = ?, finished_at = ?
		WHERE run_id = ?`,
		s.Processed, s.Accepted, s.Rejected, s.UnhealthySteps,
		s.Skipped, s.Reseeded, time.Now().UTC().Unix(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const selectRun = `SELECT run_id, source, start_counter, end_counter,
	acceleration_noise, timestamp_noise, outlier_ratio,
	processed, accepted, rejected, unhealthy_steps, skipped, reseeded,
	created_at, finished_at
	FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r         Run
		createdAt int64
		finished  sql.NullInt64
	)
	if err := s.Scan(
		&r.RunID, &r.Source, &r.StartCounter, &r.EndCounter,
		&r.AccelerationNoise, &r.TimestampNoise, &r.OutlierRatio,
		&r.Processed, &r.Accepted, &r.Rejected, &r.UnhealthySteps,
		&r.Skipped, &r.Reseeded,
		&createdAt, &finished,
	); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	if finished.Valid {
		t := time.Unix(finished.Int64, 0).UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}

// Run returns a single run.
func (db *DB) Run(runID string) (*Run, error) {
	r, err := scanRun(db.QueryRow(selectRun+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return r, nil
}

// Runs returns the 100 most recent runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(selectRun + ` ORDER BY created_at DESC, rowid DESC LIMIT 100`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Estimates returns every estimate of a run in record order.
func (db *DB) Estimates(runID string) ([]Estimate, error) {
	if _, err := db.Run(runID); err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT idx, send_tick, recv_tick, clock_offset, skew, drift, accepted
		FROM estimates WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var es []Estimate
	for rows.Next() {
		var (
			e          Estimate
			send, recv int64
		)
		if err := rows.Scan(&e.Index, &send, &recv, &e.Offset, &e.Skew, &e.Drift, &e.Accepted); err != nil {
			return nil, err
		}
		e.SendTick, e.RecvTick = uint64(send), uint64(recv)
		es = append(es, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return es, nil
}
