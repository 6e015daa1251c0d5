package video

import (
	"fmt"
	"io"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// SliceSource replays frames from memory. After the frames are exhausted Next
// returns Err if set, otherwise io.EOF.
type SliceSource struct {
	Meta   frame.StreamMetadata
	Frames []*frame.Frame
	// Err simulates a decode failure after the last frame.
	Err    error
	Closed bool

	pos int
}

// NewSliceSource infers metadata from the first frame.
func NewSliceSource(fps float64, frames ...*frame.Frame) *SliceSource {
	s := &SliceSource{Frames: frames, Meta: frame.StreamMetadata{FrameRate: fps}}
	if len(frames) > 0 {
		s.Meta.Width, s.Meta.Height = frames[0].Width, frames[0].Height
	}
	return s
}

func (s *SliceSource) Metadata() frame.StreamMetadata { return s.Meta }

func (s *SliceSource) Next() (*frame.Frame, error) {
	if s.Closed {
		return nil, fmt.Errorf("read from closed source")
	}
	if s.pos >= len(s.Frames) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	f := s.Frames[s.pos].Clone()
	f.Index = s.pos
	s.pos++
	return f, nil
}

func (s *SliceSource) Close() error {
	s.Closed = true
	return nil
}

// MemorySink collects written frames.
type MemorySink struct {
	Meta   frame.StreamMetadata
	Frames []*frame.Frame
	Closed bool
	// FailAfter makes Write fail once this many frames are stored. Zero
	// disables the failure.
	FailAfter int
	// CloseErr is returned from Close.
	CloseErr error
}

// NewMemorySink returns a sink for frames of meta's size.
func NewMemorySink(meta frame.StreamMetadata) *MemorySink {
	return &MemorySink{Meta: meta}
}

func (m *MemorySink) Write(f *frame.Frame) error {
	if m.Closed {
		return fmt.Errorf("write to closed sink")
	}
	if f.Width != m.Meta.Width || f.Height != m.Meta.Height {
		return fmt.Errorf("%w: sink expects %dx%d, got %dx%d", frame.ErrDimensionMismatch,
			m.Meta.Width, m.Meta.Height, f.Width, f.Height)
	}
	if m.FailAfter > 0 && len(m.Frames) >= m.FailAfter {
		return fmt.Errorf("sink full after %d frames", m.FailAfter)
	}
	m.Frames = append(m.Frames, f.Clone())
	return nil
}

func (m *MemorySink) Close() error {
	m.Closed = true
	return m.CloseErr
}
