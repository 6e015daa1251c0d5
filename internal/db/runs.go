package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mozzaic/internal/pixelate"
)

// ErrRunNotFound is returned when no run has the requested id.
var ErrRunNotFound = errors.New("run not found")

// Run is one pass of a video through the pipeline.
type Run struct {
	RunID       string   `json:"run_id"`
	Input       string   `json:"input"`
	Output      string   `json:"output"`
	TargetWidth int      `json:"target_width"`
	K           int      `json:"k"`
	FlowAlpha   float64  `json:"flow_alpha"`
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	FrameRate   float64  `json:"frame_rate"`
	Frames      int      `json:"frames"`
	Interrupted bool     `json:"interrupted"`
	Error       string   `json:"error,omitempty"`
	StartedAt   float64  `json:"started_at"`
	FinishedAt  *float64 `json:"finished_at,omitempty"`
}

// Finished reports whether FinishRun has been recorded.
func (r *Run) Finished() bool { return r.FinishedAt != nil }

func unixNow() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// CreateRun inserts a run in the started state. An empty RunID is replaced
// with a new UUID and StartedAt defaults to now.
func (db *DB) CreateRun(r *Run) error {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.StartedAt == 0 {
		r.StartedAt = unixNow()
	}
	_, err := db.Exec(`INSERT INTO runs (
			run_id, input, output, target_width, k, flow_alpha, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Input, r.Output, r.TargetWidth, r.K, r.FlowAlpha, r.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

// FinishRun records the outcome of a run. runErr may be nil.
func (db *DB) FinishRun(runID string, report pixelate.RunReport, runErr error) error {
	var errText sql.NullString
	switch {
	case runErr != nil:
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	case report.ReadErr != nil:
		errText = sql.NullString{String: report.ReadErr.Error(), Valid: true}
	}
	res, err := db.Exec(`UPDATE runs SET
			width = ?, height = ?, frame_rate = ?, frames = ?,
			interrupted = ?, error = ?, finished_at = ?
		WHERE run_id = ?`,
		report.Output.Width, report.Output.Height, report.Output.FrameRate, report.Frames,
		report.Interrupted, errText, unixNow(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, input, output, target_width, k, flow_alpha, width, height,
	frame_rate, frames, interrupted, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(s rowScanner) (*Run, error) {
	var (
		r        Run
		errText  sql.NullString
		finished sql.NullFloat64
	)
	if err := s.Scan(
		&r.RunID, &r.Input, &r.Output, &r.TargetWidth, &r.K, &r.FlowAlpha,
		&r.Width, &r.Height, &r.FrameRate, &r.Frames, &r.Interrupted,
		&errText, &r.StartedAt, &finished,
	); err != nil {
		return nil, err
	}
	r.Error = errText.String
	if finished.Valid {
		r.FinishedAt = &finished.Float64
	}
	return &r, nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
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

// DeleteRun removes a run and its frame statistics.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// InsertFrameStats stores the statistics of one emitted frame.
func (db *DB) InsertFrameStats(runID string, s pixelate.FrameStats) error {
	_, err := db.Exec(`INSERT INTO frame_stats (
			run_id, frame_index, distinct_colors, mean_flow, flicker, blended
		) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, s.Index, s.DistinctColors, s.MeanFlow, s.Flicker, s.Blended,
	)
	if err != nil {
		return fmt.Errorf("failed to insert stats for frame %d of run %s: %w", s.Index, runID, err)
	}
	return nil
}

// FrameStats returns a run's per-frame statistics in frame order.
func (db *DB) FrameStats(runID string) ([]pixelate.FrameStats, error) {
	rows, err := db.Query(`SELECT frame_index, distinct_colors, mean_flow, flicker, blended
		FROM frame_stats WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []pixelate.FrameStats
	for rows.Next() {
		var s pixelate.FrameStats
		if err := rows.Scan(&s.Index, &s.DistinctColors, &s.MeanFlow, &s.Flicker, &s.Blended); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}
