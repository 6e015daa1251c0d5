// Package testutil provides shared test helpers and synthetic frame fixtures.
package testutil

import (
	"bytes"
	"image/color"
	"math"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t testing.TB, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewMultipartRequest builds a request carrying one file part named field.
func NewMultipartRequest(t testing.TB, method, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	AssertNoError(t, err)
	_, err = part.Write(content)
	AssertNoError(t, err)
	AssertNoError(t, mw.Close())

	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// WriteScript writes an executable shell script named name into a temporary
// directory and returns its path. Tests that need one are skipped on Windows.
func WriteScript(t testing.TB, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), name)
	AssertNoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// SolidFrame returns a w x h frame of a single colour.
func SolidFrame(t testing.TB, w, h int, c color.RGBA) *frame.Frame {
	t.Helper()
	f, err := frame.Solid(w, h, c)
	AssertNoError(t, err)
	return f
}

// NoiseFrame returns a frame of uniformly random colours from a fixed seed.
func NoiseFrame(t testing.TB, w, h int, seed uint64) *frame.Frame {
	t.Helper()
	f, err := frame.New(w, h)
	AssertNoError(t, err)
	r := rand.New(rand.NewPCG(seed, seed+1))
	for i := range f.Pix {
		f.Pix[i] = uint8(r.IntN(256))
	}
	return f
}

// PatternFrame renders a smooth colour texture shifted right by dx pixels.
// Consecutive calls with increasing dx simulate a horizontal pan.
func PatternFrame(t testing.TB, w, h int, dx float64) *frame.Frame {
	t.Helper()
	f, err := frame.New(w, h)
	AssertNoError(t, err)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := float64(x) - dx
			s := math.Sin(2*math.Pi*fx/24) * math.Cos(2*math.Pi*float64(y)/32)
			f.SetRGB(x, y,
				uint8(128+100*s),
				uint8(128-80*s),
				uint8(64+40*math.Cos(2*math.Pi*fx/48)),
			)
		}
	}
	return f
}
