package video

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/monitoring"
)

// ErrDecode is returned by Source.Next when ffmpeg fails part way through.
var ErrDecode = errors.New("video decode failed")

// Source decodes a video file into RGB frames through an ffmpeg subprocess.
type Source struct {
	path   string
	meta   frame.StreamMetadata
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	stderr *tailBuffer

	index     int
	done      bool
	closeOnce sync.Once
	closeErr  error
	// failed is set once Next has returned ErrDecode for the exit status,
	// so Close does not report the same failure again.
	failed bool
}

// Open probes path and starts decoding it. Errors before the first frame
// wrap ErrSourceUnavailable.
func Open(ctx context.Context, path string) (*Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	meta, err := Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, FFmpegPath, decodeArgs(path)...)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrSourceUnavailable, FFmpegPath, err)
	}
	monitoring.Logf("video: decoding %s (%s)", path, meta)

	return &Source{
		path:   path,
		meta:   meta,
		cmd:    cmd,
		stdout: stdout,
		reader: bufio.NewReaderSize(stdout, meta.Width*meta.Height*frame.Channels),
		stderr: stderr,
	}, nil
}

// decodeArgs streams the first video track as packed rgb24. Autorotation is
// off so frames keep the stored width and height that ffprobe reports.
func decodeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-i", path,
		"-map", "0:v:0",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	}
}

// Metadata returns the probed stream geometry.
func (s *Source) Metadata() frame.StreamMetadata { return s.meta }

// Next returns the next decoded frame, io.EOF after the last one, or an
// error wrapping ErrDecode if ffmpeg stopped abnormally.
func (s *Source) Next() (*frame.Frame, error) {
	if s.done {
		return nil, io.EOF
	}
	f, err := frame.New(s.meta.Width, s.meta.Height)
	if err != nil {
		return nil, err
	}
	_, err = io.ReadFull(s.reader, f.Pix)
	switch {
	case err == nil:
		f.Index = s.index
		s.index++
		return f, nil
	case errors.Is(err, io.EOF):
		s.done = true
		if werr := s.wait(); werr != nil {
			s.failed = true
			return nil, fmt.Errorf("%w: after %d frames: %v", ErrDecode, s.index, werr)
		}
		return nil, io.EOF
	default:
		// A short final frame means ffmpeg closed stdout mid-frame. Reap it
		// now so the error carries its exit status and stderr.
		s.done = true
		s.failed = true
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			_ = s.cmd.Process.Kill()
		}
		if werr := s.wait(); werr != nil {
			return nil, fmt.Errorf("%w: frame %d: %v: %v", ErrDecode, s.index, err, werr)
		}
		return nil, fmt.Errorf("%w: frame %d: %v", ErrDecode, s.index, err)
	}
}

func (s *Source) wait() error {
	s.closeOnce.Do(func() {
		if err := s.cmd.Wait(); err != nil {
			s.closeErr = fmt.Errorf("%v: %s", err, strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.closeErr
}

// Close stops ffmpeg if it is still running and releases the pipe.
func (s *Source) Close() error {
	if !s.done && s.cmd.Process != nil {
		// An early close is expected to kill the decoder, so its exit
		// status is not reported.
		_ = s.cmd.Process.Kill()
		s.done = true
		_ = s.wait()
		return nil
	}
	s.done = true
	if err := s.wait(); err != nil && !s.failed {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

// tailBuffer keeps the last n bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	n   int
	buf []byte
}

func newTailBuffer(n int) *tailBuffer { return &tailBuffer{n: n} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.n; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
