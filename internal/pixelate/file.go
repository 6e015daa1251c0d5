package pixelate

import (
	"context"

	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/monitoring"
	"github.com/banshee-data/mozzaic/internal/video"
)

// ProcessFile decodes the video at in, runs it through p and encodes the
// result to out with the given four-character codec.
func (p *Pipeline) ProcessFile(ctx context.Context, in, out, fourcc string) (RunReport, error) {
	if _, err := video.LookupCodec(fourcc); err != nil {
		return RunReport{}, err
	}
	defer monitoring.Stage("pixelate: %s", in)()

	src, err := video.Open(ctx, in)
	if err != nil {
		return RunReport{}, err
	}
	return p.Run(src, func(meta frame.StreamMetadata) (FrameSink, error) {
		return video.Create(ctx, out, meta, fourcc)
	})
}
