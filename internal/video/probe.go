// Package video decodes and encodes raw RGB frame streams through ffmpeg and
// ffprobe subprocesses, and provides in-memory sources and sinks for tests.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// ErrSourceUnavailable is returned when an input cannot be opened as a video.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Binaries used for decoding and encoding. Overridable for tests and for
// installations outside PATH.
var (
	FFmpegPath  = "ffmpeg"
	FFprobePath = "ffprobe"
)

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe reads the first video stream's geometry and frame rate.
func Probe(ctx context.Context, path string) (frame.StreamMetadata, error) {
	cmd := exec.CommandContext(ctx, FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return frame.StreamMetadata{}, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrSourceUnavailable, path, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (frame.StreamMetadata, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return frame.StreamMetadata{}, fmt.Errorf("%w: decode ffprobe output: %v", ErrSourceUnavailable, err)
	}
	if len(p.Streams) == 0 {
		return frame.StreamMetadata{}, fmt.Errorf("%w: no video stream", ErrSourceUnavailable)
	}
	s := p.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return frame.StreamMetadata{}, fmt.Errorf("%w: video stream reports %dx%d", ErrSourceUnavailable, s.Width, s.Height)
	}
	fps, err := parseRate(s.AvgFrameRate)
	if err != nil || fps <= 0 {
		fps, err = parseRate(s.RFrameRate)
	}
	if err != nil || fps <= 0 {
		return frame.StreamMetadata{}, fmt.Errorf("%w: unusable frame rate %q", ErrSourceUnavailable, s.RFrameRate)
	}
	return frame.StreamMetadata{Width: s.Width, Height: s.Height, FrameRate: fps}, nil
}

// parseRate parses ffprobe rationals such as "30000/1001" or plain "25".
func parseRate(s string) (float64, error) {
	num, den, found := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("zero denominator in %q", s)
	}
	return n / d, nil
}
