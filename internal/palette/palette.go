// Package palette maps frames onto a fixed, caller-supplied set of colours
// by nearest neighbour in CIE L*a*b*.
package palette

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/mozzaic/internal/frame"
)

var (
	// ErrEmptyPalette is returned when a palette has no colours.
	ErrEmptyPalette = errors.New("palette has no colours")
	// ErrBadColor is returned for an unparseable hex colour.
	ErrBadColor = errors.New("invalid hex colour")
)

// Palette is an immutable nearest-colour index. It is safe for concurrent use.
type Palette struct {
	colors []color.RGBA
	tree   *kdtree.Tree
	byLab  map[[3]float64]color.RGBA
}

// New builds a palette from colors. Duplicates are dropped and alpha is ignored.
func New(colors []color.RGBA) (*Palette, error) {
	if len(colors) == 0 {
		return nil, ErrEmptyPalette
	}
	p := &Palette{byLab: make(map[[3]float64]color.RGBA, len(colors))}
	points := make(kdtree.Points, 0, len(colors))
	for _, c := range colors {
		c.A = 0xff
		key := labOf(c.R, c.G, c.B)
		if _, dup := p.byLab[key]; dup {
			continue
		}
		p.byLab[key] = c
		p.colors = append(p.colors, c)
		points = append(points, kdtree.Point{key[0], key[1], key[2]})
	}
	p.tree = kdtree.New(points, false)
	return p, nil
}

func labOf(r, g, b uint8) [3]float64 {
	l, a, bb := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Lab()
	return [3]float64{l, a, bb}
}

// Colors returns the distinct palette colours in insertion order.
func (p *Palette) Colors() []color.RGBA {
	return append([]color.RGBA(nil), p.colors...)
}

// Len returns the number of distinct colours.
func (p *Palette) Len() int { return len(p.colors) }

// Nearest returns the palette colour perceptually closest to (r, g, b).
func (p *Palette) Nearest(r, g, b uint8) color.RGBA {
	key := labOf(r, g, b)
	got, _ := p.tree.Nearest(kdtree.Point{key[0], key[1], key[2]})
	pt := got.(kdtree.Point)
	return p.byLab[[3]float64{pt[0], pt[1], pt[2]}]
}

// Apply returns a copy of f with every pixel replaced by its nearest palette
// colour.
func (p *Palette) Apply(f *frame.Frame) (*frame.Frame, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty frame", frame.ErrInvalidDimension)
	}
	out := &frame.Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix)), Index: f.Index}
	cache := make(map[uint32]color.RGBA)
	for i := 0; i < len(f.Pix); i += frame.Channels {
		key := frame.PackRGB(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
		c, ok := cache[key]
		if !ok {
			c = p.Nearest(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
			cache[key] = c
		}
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c.R, c.G, c.B
	}
	return out, nil
}

// ParseHex parses a comma-separated list such as "#1a1c2c,5d275d,b13e53".
func ParseHex(list string) ([]color.RGBA, error) {
	var out []color.RGBA
	for _, field := range strings.Split(list, ",") {
		s := strings.TrimPrefix(strings.TrimSpace(field), "#")
		if s == "" {
			continue
		}
		if len(s) == 3 {
			s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
		}
		if len(s) != 6 {
			return nil, fmt.Errorf("%w: %q", ErrBadColor, field)
		}
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadColor, field)
		}
		out = append(out, color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff})
	}
	if len(out) == 0 {
		return nil, ErrEmptyPalette
	}
	return out, nil
}
