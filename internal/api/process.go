package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/db"
	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/httputil"
	"github.com/banshee-data/mozzaic/internal/monitoring"
	"github.com/banshee-data/mozzaic/internal/pixelate"
	"github.com/banshee-data/mozzaic/internal/security"
	"github.com/banshee-data/mozzaic/internal/video"
)

// multipart parts beyond this size spill to temporary files
const maxMemoryBytes = 32 << 20

// ErrNoFrames is returned when an upload decodes to zero frames.
var ErrNoFrames = errors.New("no frames decoded")

// parseOverrides reads k, width and alpha from the query string.
func parseOverrides(r *http.Request) (*config.PixelateConfig, error) {
	q := r.URL.Query()
	override := config.EmptyPixelateConfig()
	if v := q.Get("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: k must be an integer, got %q", config.ErrInvalidConfiguration, v)
		}
		override.K = &k
	}
	if v := q.Get("width"); v != "" {
		width, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: width must be an integer, got %q", config.ErrInvalidConfiguration, v)
		}
		override.TargetWidth = &width
	}
	if v := q.Get("alpha"); v != "" {
		alpha, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: alpha must be a number, got %q", config.ErrInvalidConfiguration, v)
		}
		override.FlowAlpha = &alpha
	}
	return override, nil
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrInvalidConfiguration), errors.Is(err, video.ErrUnsupportedCodec):
		return http.StatusBadRequest
	case errors.Is(err, video.ErrSourceUnavailable), errors.Is(err, video.ErrDecode),
		errors.Is(err, frame.ErrInvalidDimension), errors.Is(err, ErrNoFrames):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) processVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}

	override, err := parseOverrides(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	cfg := s.cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cfg.GetMaxUploadBytes())
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		// some multipart paths flatten the error to text
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", cfg.GetMaxUploadBytes()))
			return
		}
		httputil.BadRequest(w, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing form file \"file\"")
		return
	}
	defer file.Close()

	runID := uuid.NewString()
	name := security.UploadName(header.Filename)
	if filepath.Ext(name) == "" {
		// ffmpeg picks the output container from the extension
		name += ".mp4"
	}
	inPath, outPath, err := s.workPaths(cfg, runID, name)
	if err != nil {
		monitoring.Logf("api: prepare paths for %s: %v", name, err)
		httputil.InternalServerError(w, "failed to prepare storage")
		return
	}

	if err := saveUpload(file, inPath); err != nil {
		monitoring.Logf("api: save upload %s: %v", inPath, err)
		httputil.InternalServerError(w, "failed to store upload")
		return
	}
	defer func() {
		if err := os.Remove(inPath); err != nil && !os.IsNotExist(err) {
			monitoring.Logf("api: remove upload %s: %v", inPath, err)
		}
	}()

	if err := s.runs.Acquire(r.Context(), 1); err != nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "request cancelled while waiting for a worker")
		return
	}
	report, err := s.runPipeline(r, cfg, runID, name, inPath, outPath)
	s.runs.Release(1)
	if err != nil {
		os.Remove(outPath)
		monitoring.Logf("api: run %s failed: %v", runID, err)
		httputil.WriteJSONError(w, statusFor(err), err.Error())
		return
	}
	monitoring.Logf("api: run %s wrote %d frames to %s", runID, report.Frames, outPath)

	out, err := os.Open(outPath)
	if err != nil {
		httputil.InternalServerError(w, "processed file missing")
		return
	}
	defer out.Close()
	info, err := out.Stat()
	if err != nil {
		httputil.InternalServerError(w, "processed file unreadable")
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(outPath))
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "pixel_" + name}))
	w.Header().Set("X-Run-ID", runID)
	if report.Interrupted {
		w.Header().Set("X-Run-Interrupted", "true")
	}
	http.ServeContent(w, r, "", info.ModTime(), out)
}

// workPaths returns the upload and output locations for one run. The run id
// prefix keeps concurrent uploads of the same name apart.
func (s *Server) workPaths(cfg *config.PixelateConfig, runID, name string) (string, string, error) {
	uploadDir, processedDir := cfg.GetUploadDir(), cfg.GetProcessedDir()
	for _, dir := range []string{uploadDir, processedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", "", err
		}
	}
	inPath, err := security.ResolveWithin(uploadDir, runID+"_"+name)
	if err != nil {
		return "", "", err
	}
	outPath, err := security.ResolveWithin(processedDir, "pixel_"+runID+"_"+name)
	if err != nil {
		return "", "", err
	}
	return inPath, outPath, nil
}

func saveUpload(src io.Reader, path string) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

// runPipeline processes one upload and records it when history is enabled.
func (s *Server) runPipeline(r *http.Request, cfg *config.PixelateConfig, runID, name, inPath, outPath string) (pixelate.RunReport, error) {
	var (
		obs pixelate.Observer
		rec *db.RunRecorder
	)
	if s.db != nil {
		var err error
		rec, err = s.db.NewRunRecorder(&db.Run{
			RunID:       runID,
			Input:       name,
			Output:      outPath,
			TargetWidth: cfg.GetTargetWidth(),
			K:           cfg.GetK(),
			FlowAlpha:   cfg.GetFlowAlpha(),
		})
		if err != nil {
			// history is best effort; the upload still gets processed
			monitoring.Logf("api: record run %s: %v", runID, err)
		} else {
			obs = rec
		}
	}

	report, err := s.process(r.Context(), cfg, inPath, outPath, obs)
	if err == nil && report.Frames == 0 {
		err = ErrNoFrames
		if report.ReadErr != nil {
			err = fmt.Errorf("%w: %w", ErrNoFrames, report.ReadErr)
		}
	}
	if rec != nil {
		if ferr := rec.Finish(report, err); ferr != nil {
			monitoring.Logf("api: finish run %s: %v", runID, ferr)
		}
	}
	return report, err
}
