package video

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedCodec is returned for a four-character code with no encoder mapping.
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Codec maps a four-character code onto ffmpeg encoder arguments.
type Codec struct {
	FourCC  string
	Encoder string
	PixFmt  string
	// Tag is written as the container's codec tag when set.
	Tag string
	// FullChromaPixFmt is a 4:4:4 format the encoder accepts at odd sizes.
	// Empty means odd frames are padded to even dimensions.
	FullChromaPixFmt string
}

var codecs = map[string]Codec{
	"mp4v": {FourCC: "mp4v", Encoder: "mpeg4", PixFmt: "yuv420p", Tag: "mp4v"},
	"avc1": {FourCC: "avc1", Encoder: "libx264", PixFmt: "yuv420p", Tag: "avc1", FullChromaPixFmt: "yuv444p"},
	"h264": {FourCC: "h264", Encoder: "libx264", PixFmt: "yuv420p", FullChromaPixFmt: "yuv444p"},
	"x264": {FourCC: "x264", Encoder: "libx264", PixFmt: "yuv420p", FullChromaPixFmt: "yuv444p"},
	"mjpg": {FourCC: "mjpg", Encoder: "mjpeg", PixFmt: "yuvj420p", FullChromaPixFmt: "yuvj444p"},
	"vp09": {FourCC: "vp09", Encoder: "libvpx-vp9", PixFmt: "yuv420p", FullChromaPixFmt: "yuv444p"},
	"xvid": {FourCC: "xvid", Encoder: "mpeg4", PixFmt: "yuv420p", Tag: "xvid"},
}

// LookupCodec resolves a four-character code case-insensitively.
func LookupCodec(fourcc string) (Codec, error) {
	c, ok := codecs[strings.ToLower(strings.TrimSpace(fourcc))]
	if !ok {
		return Codec{}, fmt.Errorf("%w: %q", ErrUnsupportedCodec, fourcc)
	}
	return c, nil
}
