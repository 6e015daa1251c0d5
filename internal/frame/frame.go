package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// Channels is the number of interleaved samples per pixel in a Frame.
const Channels = 3

// ErrInvalidDimension is returned when a frame or a requested size has a
// non-positive width or height.
var ErrInvalidDimension = errors.New("invalid frame dimension")

// ErrDimensionMismatch is returned when two rasters that must share a size do not.
var ErrDimensionMismatch = errors.New("frame dimension mismatch")

// StreamMetadata describes a video stream. It is read once from the source
// and stays fixed for the lifetime of a run.
type StreamMetadata struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
}

func (m StreamMetadata) String() string {
	return fmt.Sprintf("%dx%d@%.3ffps", m.Width, m.Height, m.FrameRate)
}

// Frame is a dense width x height grid of 8-bit RGB pixels stored row-major
// with three interleaved channels per pixel.
type Frame struct {
	Width, Height int
	Pix           []uint8
	// Index is the zero-based position of the frame in its stream.
	Index int
}

// New allocates a black frame of the given size.
func New(width, height int) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*Channels),
	}, nil
}

// FromRGB wraps an existing packed RGB buffer. The buffer is not copied.
func FromRGB(width, height int, pix []uint8) (*Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimension, width, height)
	}
	if len(pix) != width*height*Channels {
		return nil, fmt.Errorf("%w: buffer holds %d bytes, want %d", ErrInvalidDimension, len(pix), width*height*Channels)
	}
	return &Frame{Width: width, Height: height, Pix: pix}, nil
}

// Solid returns a frame filled with a single color.
func Solid(width, height int, c color.RGBA) (*Frame, error) {
	f, err := New(width, height)
	if err != nil {
		return nil, err
	}
	for i := 0; i < len(f.Pix); i += Channels {
		f.Pix[i] = c.R
		f.Pix[i+1] = c.G
		f.Pix[i+2] = c.B
	}
	return f, nil
}

// Empty reports whether the frame holds no pixels.
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Pix) < f.Width*f.Height*Channels
}

// SameSize reports whether both frames have identical dimensions.
func (f *Frame) SameSize(o *Frame) bool {
	return f != nil && o != nil && f.Width == o.Width && f.Height == o.Height
}

// Offset returns the index of the red sample of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return (y*f.Width + x) * Channels
}

// RGB returns the color of pixel (x, y).
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	i := f.Offset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetRGB sets the color of pixel (x, y).
func (f *Frame) SetRGB(x, y int, r, g, b uint8) {
	i := f.Offset(x, y)
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix, Index: f.Index}
}

// Equal reports whether two frames have the same size and pixel values.
// Index is ignored.
func (f *Frame) Equal(o *Frame) bool {
	if !f.SameSize(o) {
		return false
	}
	for i := range f.Pix {
		if f.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// DistinctColors returns the number of unique RGB triples in the frame.
func (f *Frame) DistinctColors() int {
	seen := make(map[uint32]struct{})
	for i := 0; i+2 < len(f.Pix); i += Channels {
		seen[PackRGB(f.Pix[i], f.Pix[i+1], f.Pix[i+2])] = struct{}{}
	}
	return len(seen)
}

// PackRGB packs a color into the low 24 bits of a uint32.
func PackRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// Gray derives the BT.601 luma plane of the frame.
func (f *Frame) Gray() *Gray {
	g := &Gray{Width: f.Width, Height: f.Height, Pix: make([]uint8, f.Width*f.Height)}
	for i, j := 0, 0; j < len(g.Pix); i, j = i+Channels, j+1 {
		y := 0.299*float64(f.Pix[i]) + 0.587*float64(f.Pix[i+1]) + 0.114*float64(f.Pix[i+2])
		g.Pix[j] = uint8(math.Min(255, math.Round(y)))
	}
	return g
}

// RGBA converts the frame into an opaque *image.RGBA.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+Channels, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// FromImage copies any image into a new Frame, discarding alpha.
func FromImage(img image.Image) (*Frame, error) {
	b := img.Bounds()
	f, err := New(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := rgba.Pix[(y+b.Min.Y-rgba.Rect.Min.Y)*rgba.Stride+(b.Min.X-rgba.Rect.Min.X)*4:]
			dst := f.Pix[y*f.Width*Channels:]
			for x := 0; x < f.Width; x++ {
				dst[x*Channels] = src[x*4]
				dst[x*Channels+1] = src[x*4+1]
				dst[x*Channels+2] = src[x*4+2]
			}
		}
		return f, nil
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			f.SetRGB(x, y, c.R, c.G, c.B)
		}
	}
	return f, nil
}
