package testutil

import (
	"errors"
	"image/color"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"testing"
)

func TestAssertHelpers_Passing(t *testing.T) {
	t.Parallel()

	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
	AssertError(t, errors.New("test error"))
}

func TestNewTestRequest(t *testing.T) {
	t.Parallel()

	req := NewTestRequest(http.MethodPost, "/process/video")
	if req.Method != http.MethodPost {
		t.Errorf("method = %s, want POST", req.Method)
	}
	if req.URL.Path != "/process/video" {
		t.Errorf("path = %s, want /process/video", req.URL.Path)
	}
	if NewTestRecorder() == nil {
		t.Fatal("recorder is nil")
	}
}

func TestNewMultipartRequest(t *testing.T) {
	t.Parallel()

	req := NewMultipartRequest(t, http.MethodPost, "/process/video", "file", "clip.mp4", []byte("payload"))
	file, header, err := req.FormFile("file")
	AssertNoError(t, err)
	defer file.Close()
	if header.Filename != "clip.mp4" {
		t.Errorf("filename = %q, want clip.mp4", header.Filename)
	}
	data, err := io.ReadAll(file)
	AssertNoError(t, err)
	if string(data) != "payload" {
		t.Errorf("content = %q, want payload", data)
	}
}

func TestSolidFrame(t *testing.T) {
	t.Parallel()

	f := SolidFrame(t, 5, 4, color.RGBA{200, 100, 50, 255})
	if f.Width != 5 || f.Height != 4 {
		t.Fatalf("size = %dx%d", f.Width, f.Height)
	}
	if n := f.DistinctColors(); n != 1 {
		t.Errorf("DistinctColors = %d, want 1", n)
	}
}

func TestNoiseFrame_Deterministic(t *testing.T) {
	t.Parallel()

	a := NoiseFrame(t, 8, 8, 42)
	b := NoiseFrame(t, 8, 8, 42)
	c := NoiseFrame(t, 8, 8, 43)
	if !a.Equal(b) {
		t.Error("same seed produced different frames")
	}
	if a.Equal(c) {
		t.Error("different seeds produced identical frames")
	}
}

func TestPatternFrame_Shifts(t *testing.T) {
	t.Parallel()

	a := PatternFrame(t, 32, 16, 0)
	b := PatternFrame(t, 32, 16, 3)
	r1, g1, b1 := a.RGB(10, 5)
	r2, g2, b2 := b.RGB(13, 5)
	if r1 != r2 || g1 != g2 || b1 != b2 {
		t.Errorf("pixel did not move with the pattern: %v,%v,%v vs %v,%v,%v", r1, g1, b1, r2, g2, b2)
	}
}

func TestWriteScript(t *testing.T) {
	path := WriteScript(t, "hello", "echo hello\n")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat script: %v", err)
	}
	if info.Mode().Perm()&0o100 == 0 {
		t.Errorf("script mode %v is not executable", info.Mode())
	}
	out, err := exec.Command(path).Output()
	if err != nil {
		t.Fatalf("run script: %v", err)
	}
	if strings.TrimSpace(string(out)) != "hello" {
		t.Errorf("script output = %q, want hello", out)
	}
}
