package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/mozzaic/internal/db"
	"github.com/banshee-data/mozzaic/internal/httputil"
	"github.com/banshee-data/mozzaic/internal/monitoring"
	"github.com/banshee-data/mozzaic/internal/pixelate"
	"github.com/banshee-data/mozzaic/internal/report"
)

const defaultRunLimit = 100

// RunDetail is the response body of /api/runs/{id}.
type RunDetail struct {
	Run     *db.Run               `json:"run"`
	Summary pixelate.Summary      `json:"summary"`
	Frames  []pixelate.FrameStats `json:"frames"`
}

func (s *Server) requireHistory(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return false
	}
	if s.db == nil {
		httputil.NotFound(w, "run history is disabled")
		return false
	}
	return true
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			httputil.BadRequest(w, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	runs, err := s.db.ListRuns(limit)
	if err != nil {
		monitoring.Logf("api: list runs: %v", err)
		httputil.InternalServerError(w, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	httputil.WriteJSONOK(w, runs)
}

// loadRun fetches a run and its frame statistics, writing the error
// response itself when it returns false.
func (s *Server) loadRun(w http.ResponseWriter, id string) (*db.Run, []pixelate.FrameStats, bool) {
	run, err := s.db.GetRun(id)
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return nil, nil, false
	}
	if err != nil {
		monitoring.Logf("api: get run %s: %v", id, err)
		httputil.InternalServerError(w, "failed to load run")
		return nil, nil, false
	}
	stats, err := s.db.FrameStats(id)
	if err != nil {
		monitoring.Logf("api: frame stats %s: %v", id, err)
		httputil.InternalServerError(w, "failed to load frame statistics")
		return nil, nil, false
	}
	return run, stats, true
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	run, stats, ok := s.loadRun(w, r.PathValue("id"))
	if !ok {
		return
	}
	if stats == nil {
		stats = []pixelate.FrameStats{}
	}
	httputil.WriteJSONOK(w, RunDetail{Run: run, Summary: pixelate.Summarize(stats), Frames: stats})
}

func (s *Server) showRunChart(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w, r) {
		return
	}
	run, stats, ok := s.loadRun(w, r.PathValue("id"))
	if !ok {
		return
	}
	if len(stats) == 0 {
		httputil.NotFound(w, "run has no frame statistics")
		return
	}

	var buf bytes.Buffer
	if err := report.RenderChart(&buf, "Run "+run.RunID+" ("+run.Input+")", stats); err != nil {
		monitoring.Logf("api: render chart %s: %v", run.RunID, err)
		httputil.InternalServerError(w, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
