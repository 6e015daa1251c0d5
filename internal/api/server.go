// Package api serves the video upload endpoint and the run history API.
package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/db"
	"github.com/banshee-data/mozzaic/internal/httputil"
	"github.com/banshee-data/mozzaic/internal/monitoring"
	"github.com/banshee-data/mozzaic/internal/pixelate"
	"github.com/banshee-data/mozzaic/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Processor runs one uploaded file through the pipeline, writing the result
// to out and reporting every frame to obs (which may be nil).
type Processor func(ctx context.Context, cfg *config.PixelateConfig, in, out string, obs pixelate.Observer) (pixelate.RunReport, error)

// ProcessWithFFmpeg is the production Processor.
func ProcessWithFFmpeg(ctx context.Context, cfg *config.PixelateConfig, in, out string, obs pixelate.Observer) (pixelate.RunReport, error) {
	p, err := pixelate.NewPipeline(cfg)
	if err != nil {
		return pixelate.RunReport{}, err
	}
	p.Observer = obs
	return p.ProcessFile(ctx, in, out, cfg.GetCodec())
}

type Server struct {
	cfg     *config.PixelateConfig
	db      *db.DB
	process Processor
	// runs bounds concurrent pipeline runs; each one is CPU bound
	runs *semaphore.Weighted
}

// NewServer creates a server using cfg for defaults and storage locations.
// database may be nil, in which case runs are not recorded and the history
// endpoints return 404.
func NewServer(cfg *config.PixelateConfig, database *db.DB) *Server {
	if cfg == nil {
		cfg = config.DefaultPixelateConfig()
	}
	return &Server{
		cfg:     cfg,
		db:      database,
		process: ProcessWithFFmpeg,
		runs:    semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
}

// WithProcessor replaces the pipeline runner, for tests.
func (s *Server) WithProcessor(p Processor) *Server {
	s.process = p
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", s.hello)
	mux.HandleFunc("/process/video", s.processVideo)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.showRun)
	mux.HandleFunc("/api/runs/{id}/chart", s.showRunChart)
	return mux
}

func (s *Server) hello(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"message": "Hello from Mozzaic Server"})
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Info())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.cfg)
}
