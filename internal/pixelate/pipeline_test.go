package pixelate

import (
	"errors"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/flow"
	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/monitoring"
	"github.com/banshee-data/mozzaic/internal/testutil"
	"github.com/banshee-data/mozzaic/internal/video"
)

func init() {
	monitoring.SetLogger(nil)
}

func zeroMotion() MotionEstimator {
	return MotionEstimatorFunc(func(prev, cur *frame.Gray) (*frame.MotionField, error) {
		return frame.NewMotionField(cur.Width, cur.Height), nil
	})
}

func testPipeline(k, width int, alpha float64, seed uint64) *Pipeline {
	return &Pipeline{
		TargetWidth: width,
		Alpha:       alpha,
		Quantizer:   seededQuantizer(k, seed),
		Motion:      flow.NewFarneback(flow.DefaultParams()),
	}
}

// memorySinkFactory returns a factory and a pointer to the sink it opens.
func memorySinkFactory() (SinkFactory, **video.MemorySink) {
	var sink *video.MemorySink
	return func(out frame.StreamMetadata) (FrameSink, error) {
		sink = video.NewMemorySink(out)
		return sink, nil
	}, &sink
}

func TestPhase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, AwaitingFirstFrame, State{}.Phase())
	assert.Equal(t, "awaiting_first_frame", AwaitingFirstFrame.String())
	assert.Equal(t, "steady_state", SteadyState.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}

func TestStep_FirstFrameIsCandidate(t *testing.T) {
	t.Parallel()

	raw := testutil.PatternFrame(t, 64, 48, 0)
	p := testPipeline(4, 16, 0.7, 42)

	state, out, stats, err := p.Step(State{}, raw)
	require.NoError(t, err)

	small, err := Downsample(raw, 16)
	require.NoError(t, err)
	want, err := seededQuantizer(4, 42).Quantize(small)
	require.NoError(t, err)

	assert.True(t, out.Equal(want), "frame 1 must be Quantize(Downsample(raw)) with no blending")
	assert.Equal(t, SteadyState, state.Phase())
	require.NotNil(t, state.PrevGray)
	require.NotNil(t, state.PrevOutput)
	assert.True(t, state.PrevOutput.Equal(out))
	assert.False(t, stats.Blended)
	assert.Zero(t, stats.Flicker)
	assert.LessOrEqual(t, stats.DistinctColors, 4)
}

func TestStep_SolidTwoFrameScenario(t *testing.T) {
	t.Parallel()

	solid := color.RGBA{200, 100, 50, 255}
	f1 := testutil.SolidFrame(t, 64, 64, solid)
	f2 := testutil.SolidFrame(t, 64, 64, solid)

	var field *frame.MotionField
	farneback := flow.NewFarneback(flow.DefaultParams())
	p := testPipeline(2, 16, 0.7, 1)
	p.Motion = MotionEstimatorFunc(func(prev, cur *frame.Gray) (*frame.MotionField, error) {
		var err error
		field, err = farneback.Estimate(prev, cur)
		return field, err
	})

	state, out1, _, err := p.Step(State{}, f1)
	require.NoError(t, err)
	assert.Equal(t, 16, out1.Width)
	assert.Equal(t, 16, out1.Height)

	state, out2, stats, err := p.Step(state, f2)
	require.NoError(t, err)

	require.NotNil(t, field)
	assert.Zero(t, field.MaxAbs(), "identical frames must give a zero field")

	warped, err := Warp(out1, field)
	require.NoError(t, err)
	assert.True(t, warped.Equal(out1))

	small, err := Downsample(f2, 16)
	require.NoError(t, err)
	cand2, err := seededQuantizer(2, 99).Quantize(small)
	require.NoError(t, err)
	want, err := Blend(cand2, out1, 0.7)
	require.NoError(t, err)
	assert.True(t, out2.Equal(want), "output 2 = round(0.3*candidate + 0.7*output 1)")
	assert.True(t, out2.Equal(out1), "solid input must be stable")

	assert.True(t, stats.Blended)
	assert.Zero(t, stats.MeanFlow)
	assert.Zero(t, stats.Flicker)
	assert.True(t, state.PrevOutput.Equal(out2))
}

func TestStep_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	p := testPipeline(3, 16, 0.5, 5)
	p.Motion = zeroMotion()
	raw1 := testutil.PatternFrame(t, 32, 32, 0)
	raw2 := testutil.PatternFrame(t, 32, 32, 2)

	s1, _, _, err := p.Step(State{}, raw1)
	require.NoError(t, err)
	prevOut := s1.PrevOutput.Clone()
	raw2Copy := raw2.Clone()

	s2, _, _, err := p.Step(s1, raw2)
	require.NoError(t, err)
	assert.True(t, s1.PrevOutput.Equal(prevOut), "old state must be untouched")
	assert.True(t, raw2.Equal(raw2Copy))
	assert.NotSame(t, s1.PrevOutput, s2.PrevOutput)
}

func TestStep_HalfPopulatedState(t *testing.T) {
	t.Parallel()

	p := testPipeline(2, 8, 0.5, 1)
	raw := testutil.SolidFrame(t, 8, 8, color.RGBA{})
	_, _, _, err := p.Step(State{PrevOutput: raw}, raw)
	assert.ErrorIs(t, err, ErrInconsistentState)
	_, _, _, err = p.Step(State{PrevGray: raw.Gray()}, raw)
	assert.ErrorIs(t, err, ErrInconsistentState)
}

func TestStep_MotionErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("flow failed")
	p := testPipeline(2, 8, 0.5, 1)
	p.Motion = MotionEstimatorFunc(func(prev, cur *frame.Gray) (*frame.MotionField, error) {
		return nil, boom
	})
	raw := testutil.SolidFrame(t, 8, 8, color.RGBA{})
	s, _, _, err := p.Step(State{}, raw)
	require.NoError(t, err)
	_, _, _, err = p.Step(s, raw)
	assert.ErrorIs(t, err, boom)
}

func TestRun_EndOfStream(t *testing.T) {
	t.Parallel()

	frames := make([]*frame.Frame, 5)
	for i := range frames {
		frames[i] = testutil.PatternFrame(t, 64, 36, float64(i))
	}
	src := video.NewSliceSource(25, frames...)
	newSink, sink := memorySinkFactory()

	p := testPipeline(4, 32, 0.7, 8)
	report, err := p.Run(src, newSink)
	require.NoError(t, err)

	assert.Equal(t, Done, report.Phase)
	assert.Equal(t, 5, report.Frames)
	assert.False(t, report.Interrupted)
	assert.Equal(t, frame.StreamMetadata{Width: 32, Height: 18, FrameRate: 25}, report.Output)
	assert.Equal(t, frame.StreamMetadata{Width: 64, Height: 36, FrameRate: 25}, report.Source)
	require.Len(t, report.Stats, 5)
	assert.False(t, report.Stats[0].Blended)
	for i, st := range report.Stats {
		assert.Equal(t, i, st.Index)
		if i > 0 {
			assert.True(t, st.Blended)
		}
	}

	assert.True(t, src.Closed)
	require.NotNil(t, *sink)
	assert.True(t, (*sink).Closed)
	require.Len(t, (*sink).Frames, 5)
	for _, f := range (*sink).Frames {
		assert.Equal(t, 32, f.Width)
		assert.Equal(t, 18, f.Height)
	}
}

func TestRun_ReadFailureKeepsEmittedFrames(t *testing.T) {
	t.Parallel()

	readErr := errors.New("corrupt packet")
	src := video.NewSliceSource(30,
		testutil.NoiseFrame(t, 32, 32, 1),
		testutil.NoiseFrame(t, 32, 32, 2),
	)
	src.Err = readErr
	newSink, sink := memorySinkFactory()

	p := testPipeline(3, 16, 0.7, 8)
	p.Motion = zeroMotion()
	report, err := p.Run(src, newSink)
	require.NoError(t, err, "a decode failure ends the run like end of stream")

	assert.True(t, report.Interrupted)
	assert.ErrorIs(t, report.ReadErr, readErr)
	assert.Equal(t, Done, report.Phase)
	assert.Equal(t, 2, report.Frames)
	assert.Len(t, (*sink).Frames, 2)
	assert.True(t, src.Closed)
	assert.True(t, (*sink).Closed)
}

func TestRun_EmptySource(t *testing.T) {
	t.Parallel()

	src := &video.SliceSource{Meta: frame.StreamMetadata{Width: 20, Height: 10, FrameRate: 24}}
	newSink, sink := memorySinkFactory()
	report, err := testPipeline(2, 10, 0.5, 1).Run(src, newSink)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Frames)
	assert.Equal(t, Done, report.Phase)
	assert.True(t, (*sink).Closed)
}

func TestRun_SinkFailureIsFatal(t *testing.T) {
	t.Parallel()

	src := video.NewSliceSource(30,
		testutil.NoiseFrame(t, 16, 16, 1),
		testutil.NoiseFrame(t, 16, 16, 2),
		testutil.NoiseFrame(t, 16, 16, 3),
	)
	var sink *video.MemorySink
	newSink := func(out frame.StreamMetadata) (FrameSink, error) {
		sink = video.NewMemorySink(out)
		sink.FailAfter = 1
		return sink, nil
	}

	p := testPipeline(2, 8, 0.5, 1)
	p.Motion = zeroMotion()
	report, err := p.Run(src, newSink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write frame 1")
	assert.Equal(t, 1, report.Frames)
	assert.True(t, src.Closed)
	assert.True(t, sink.Closed)
}

func TestRun_SinkCloseErrorIsReported(t *testing.T) {
	t.Parallel()

	closeErr := errors.New("moov atom not written")
	src := video.NewSliceSource(30, testutil.NoiseFrame(t, 16, 16, 1))
	newSink := func(out frame.StreamMetadata) (FrameSink, error) {
		s := video.NewMemorySink(out)
		s.CloseErr = closeErr
		return s, nil
	}
	_, err := testPipeline(2, 8, 0.5, 1).Run(src, newSink)
	assert.ErrorIs(t, err, closeErr)
}

func TestRun_SinkOpenFailureClosesSource(t *testing.T) {
	t.Parallel()

	openErr := errors.New("disk full")
	src := video.NewSliceSource(30, testutil.NoiseFrame(t, 16, 16, 1))
	_, err := testPipeline(2, 8, 0.5, 1).Run(src, func(frame.StreamMetadata) (FrameSink, error) {
		return nil, openErr
	})
	assert.ErrorIs(t, err, openErr)
	assert.True(t, src.Closed)
}

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Pipeline)
	}{
		{"zero width", func(p *Pipeline) { p.TargetWidth = 0 }},
		{"alpha high", func(p *Pipeline) { p.Alpha = 1.5 }},
		{"alpha negative", func(p *Pipeline) { p.Alpha = -0.1 }},
		{"k zero", func(p *Pipeline) { p.Quantizer.K = 0 }},
		{"no motion", func(p *Pipeline) { p.Motion = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPipeline(2, 8, 0.5, 1)
			tt.mutate(p)
			src := video.NewSliceSource(30, testutil.NoiseFrame(t, 16, 16, 1))
			opened := false
			_, err := p.Run(src, func(out frame.StreamMetadata) (FrameSink, error) {
				opened = true
				return video.NewMemorySink(out), nil
			})
			assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
			assert.False(t, opened, "no sink may be opened for a rejected configuration")
			assert.True(t, src.Closed)
		})
	}
}

type recordingObserver struct {
	stats []FrameStats
	err   error
}

func (r *recordingObserver) ObserveFrame(s FrameStats) error {
	r.stats = append(r.stats, s)
	return r.err
}

func TestRun_ObserverAndPostProcess(t *testing.T) {
	t.Parallel()

	src := video.NewSliceSource(30,
		testutil.PatternFrame(t, 32, 32, 0),
		testutil.PatternFrame(t, 32, 32, 1),
		testutil.PatternFrame(t, 32, 32, 2),
	)
	newSink, sink := memorySinkFactory()

	obs := &recordingObserver{err: errors.New("db locked")}
	p := testPipeline(3, 16, 0.6, 2)
	p.Observer = obs
	var seen []*frame.Frame
	p.PostProcess = func(f *frame.Frame) (*frame.Frame, error) {
		seen = append(seen, f.Clone())
		inv := f.Clone()
		for i := range inv.Pix {
			inv.Pix[i] = 255 - inv.Pix[i]
		}
		return inv, nil
	}

	report, err := p.Run(src, newSink)
	require.NoError(t, err, "observer errors are not fatal")
	assert.Equal(t, 3, report.Frames)

	if diff := cmp.Diff(report.Stats, obs.stats); diff != "" {
		t.Errorf("observer stats mismatch (-report +observer):\n%s", diff)
	}
	require.Len(t, (*sink).Frames, 3)
	for i, f := range (*sink).Frames {
		assert.Equal(t, 255-seen[i].Pix[0], f.Pix[0], "frame %d was not post-processed", i)
	}
}

func TestRun_RepeatedRunsStayBounded(t *testing.T) {
	t.Parallel()

	frames := make([]*frame.Frame, 4)
	for i := range frames {
		frames[i] = testutil.PatternFrame(t, 48, 32, 1.5*float64(i))
	}
	const k = 3
	for run := 0; run < 2; run++ {
		newSink, sink := memorySinkFactory()
		p := testPipeline(k, 24, 0, uint64(run))
		p.Quantizer.Rand = nil
		_, err := p.Run(video.NewSliceSource(30, frames...), newSink)
		require.NoError(t, err)
		for i, f := range (*sink).Frames {
			assert.LessOrEqual(t, f.DistinctColors(), k, "run %d frame %d", run, i)
		}
	}
}

func TestNewPipeline(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(nil)
	require.NoError(t, err)
	assert.Equal(t, 320, p.TargetWidth)
	assert.Equal(t, 0.7, p.Alpha)
	assert.Equal(t, 8, p.Quantizer.K)
	assert.Equal(t, 4096, p.Quantizer.BatchSize)
	assert.IsType(t, &flow.Farneback{}, p.Motion)

	cfg := config.DefaultPixelateConfig().WithK(5).WithTargetWidth(64).WithFlowAlpha(0.25)
	p, err = NewPipeline(cfg)
	require.NoError(t, err)
	assert.Equal(t, 64, p.TargetWidth)
	assert.Equal(t, 0.25, p.Alpha)
	assert.Equal(t, 5, p.Quantizer.K)
	assert.Equal(t, flow.DefaultParams(), p.Motion.(*flow.Farneback).Params())

	_, err = NewPipeline(config.EmptyPixelateConfig().WithK(0))
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)

	unknown := "lucas-kanade"
	_, err = NewPipeline(config.EmptyPixelateConfig().Merge(&config.PixelateConfig{FlowBackend: &unknown}))
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
}
