package db

import (
	"github.com/banshee-data/mozzaic/internal/pixelate"
)

// RunRecorder persists pipeline frame statistics for one run. It implements
// pixelate.Observer.
type RunRecorder struct {
	db    *DB
	runID string
}

// NewRunRecorder creates the run row and returns a recorder bound to it.
func (db *DB) NewRunRecorder(r *Run) (*RunRecorder, error) {
	if err := db.CreateRun(r); err != nil {
		return nil, err
	}
	return &RunRecorder{db: db, runID: r.RunID}, nil
}

// RunID returns the id of the recorded run.
func (rr *RunRecorder) RunID() string { return rr.runID }

// ObserveFrame stores one frame's statistics.
func (rr *RunRecorder) ObserveFrame(s pixelate.FrameStats) error {
	return rr.db.InsertFrameStats(rr.runID, s)
}

// Finish records the run's outcome.
func (rr *RunRecorder) Finish(report pixelate.RunReport, runErr error) error {
	return rr.db.FinishRun(rr.runID, report, runErr)
}

var _ pixelate.Observer = (*RunRecorder)(nil)
