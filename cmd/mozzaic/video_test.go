package main

import (
	"context"
	"os/exec"
	"testing"

	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/testutil"
	"github.com/banshee-data/mozzaic/internal/video"
)

func requireFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{video.FFmpegPath, video.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

// writeTestVideo encodes four frames of a drifting pattern to path.
func writeTestVideo(t *testing.T, path string) {
	t.Helper()
	sink, err := video.Create(context.Background(), path, frame.StreamMetadata{Width: 48, Height: 32, FrameRate: 10}, "mp4v")
	testutil.AssertNoError(t, err)
	for i := 0; i < 4; i++ {
		testutil.AssertNoError(t, sink.Write(testutil.PatternFrame(t, 48, 32, float64(i))))
	}
	testutil.AssertNoError(t, sink.Close())
}
