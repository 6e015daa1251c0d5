package video

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/monitoring"
)

// Sink encodes RGB frames of a fixed size into a video file through an
// ffmpeg subprocess.
type Sink struct {
	path   string
	meta   frame.StreamMetadata
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	frames int
	closed bool
}

// Create starts an encoder writing meta-sized frames to path with the codec
// named by fourcc. An existing file at path is overwritten.
func Create(ctx context.Context, path string, meta frame.StreamMetadata, fourcc string) (*Sink, error) {
	codec, err := LookupCodec(fourcc)
	if err != nil {
		return nil, err
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return nil, fmt.Errorf("%w: sink %dx%d", frame.ErrInvalidDimension, meta.Width, meta.Height)
	}
	fps := meta.FrameRate
	if fps <= 0 {
		fps = 30
	}

	cmd := exec.CommandContext(ctx, FFmpegPath, encodeArgs(path, meta.Width, meta.Height, fps, codec)...)
	stderr := newTailBuffer(4096)
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", FFmpegPath, err)
	}
	monitoring.Logf("video: encoding %s (%s, %s)", path, meta, codec.Encoder)

	return &Sink{path: path, meta: meta, cmd: cmd, stdin: stdin, stderr: stderr}, nil
}

func encodeArgs(path string, w, h int, fps float64, c Codec) []string {
	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", w, h),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-c:v", c.Encoder,
	}
	pixFmt := c.PixFmt
	// 4:2:0 chroma needs even dimensions. Encoders with a 4:4:4 mode keep
	// the exact size; the rest get one padded row or column.
	if w%2 != 0 || h%2 != 0 {
		if c.FullChromaPixFmt != "" {
			pixFmt = c.FullChromaPixFmt
		} else {
			args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
		}
	}
	if c.Tag != "" {
		args = append(args, "-tag:v", c.Tag)
	}
	args = append(args, "-pix_fmt", pixFmt, path)
	return args
}

// Write sends one frame to the encoder.
func (s *Sink) Write(f *frame.Frame) error {
	if s.closed {
		return fmt.Errorf("write to closed sink %s", s.path)
	}
	if f.Width != s.meta.Width || f.Height != s.meta.Height {
		return fmt.Errorf("%w: sink expects %dx%d, got %dx%d", frame.ErrDimensionMismatch,
			s.meta.Width, s.meta.Height, f.Width, f.Height)
	}
	if _, err := s.stdin.Write(f.Pix); err != nil {
		return fmt.Errorf("encode frame %d: %w: %s", s.frames, err, strings.TrimSpace(s.stderr.String()))
	}
	s.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (s *Sink) Frames() int { return s.frames }

// Close flushes the encoder and waits for the output file to be finalised.
func (s *Sink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.stdin.Close(); err != nil {
		return err
	}
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode %s: %w: %s", s.path, err, strings.TrimSpace(s.stderr.String()))
	}
	return nil
}
