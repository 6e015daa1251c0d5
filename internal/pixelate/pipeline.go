package pixelate

import (
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/flow"
	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/monitoring"
)

// ErrInconsistentState is returned by Step when exactly one of the two
// loop-carried frames is set.
var ErrInconsistentState = errors.New("pipeline state half populated")

// Phase is the orchestrator's position in its run.
type Phase int

const (
	AwaitingFirstFrame Phase = iota
	SteadyState
	Done
)

func (p Phase) String() string {
	switch p {
	case AwaitingFirstFrame:
		return "awaiting_first_frame"
	case SteadyState:
		return "steady_state"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is carried from one Step to the next. Both fields are nil before the
// first frame and both are set afterwards.
type State struct {
	PrevGray   *frame.Gray
	PrevOutput *frame.Frame
}

// Phase reports AwaitingFirstFrame for the zero State and SteadyState once
// history exists.
func (s State) Phase() Phase {
	if s.PrevGray == nil && s.PrevOutput == nil {
		return AwaitingFirstFrame
	}
	return SteadyState
}

func (s State) check() error {
	if (s.PrevGray == nil) != (s.PrevOutput == nil) {
		return ErrInconsistentState
	}
	return nil
}

// FrameSource yields raw frames in stream order. Next returns io.EOF once
// the stream is exhausted; any other error is a decode failure.
type FrameSource interface {
	Metadata() frame.StreamMetadata
	Next() (*frame.Frame, error)
	Close() error
}

// FrameSink persists output frames, all of one size, in emission order.
type FrameSink interface {
	Write(*frame.Frame) error
	Close() error
}

// SinkFactory opens a sink once the output stream geometry is known.
type SinkFactory func(out frame.StreamMetadata) (FrameSink, error)

// Observer receives statistics for every emitted frame. Observer errors are
// logged and do not stop the run.
type Observer interface {
	ObserveFrame(FrameStats) error
}

// Pipeline holds the per-run configuration of the stabilisation loop. A
// Pipeline must not be shared between concurrent runs.
type Pipeline struct {
	TargetWidth int
	Alpha       float64
	Quantizer   *Quantizer
	Motion      MotionEstimator

	// PostProcess, when set, transforms each output before it reaches the
	// sink. The untransformed output is what the next frame is blended with.
	PostProcess func(*frame.Frame) (*frame.Frame, error)
	Observer    Observer
}

// NewPipeline builds a pipeline from cfg with the flow estimator named by its
// flow_backend. cfg is validated first.
func NewPipeline(cfg *config.PixelateConfig) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.EmptyPixelateConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	q := NewQuantizer(cfg.GetK())
	q.BatchSize = cfg.GetBatchSize()
	q.Restarts = cfg.GetRestarts()
	q.MaxIter = cfg.GetMaxIter()

	motion, err := flow.NewEstimator(cfg.GetFlowBackend(), FlowParams(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfiguration, err)
	}

	return &Pipeline{
		TargetWidth: cfg.GetTargetWidth(),
		Alpha:       cfg.GetFlowAlpha(),
		Quantizer:   q,
		Motion:      motion,
	}, nil
}

// FlowParams extracts the dense flow settings from cfg.
func FlowParams(cfg *config.PixelateConfig) flow.Params {
	return flow.Params{
		PyrScale:   cfg.GetPyrScale(),
		Levels:     cfg.GetLevels(),
		WinSize:    cfg.GetWinSize(),
		Iterations: cfg.GetIterations(),
		PolyN:      cfg.GetPolyN(),
		PolySigma:  cfg.GetPolySigma(),
	}
}

func (p *Pipeline) validate() error {
	if p.TargetWidth <= 0 {
		return fmt.Errorf("%w: target_width must be positive, got %d", config.ErrInvalidConfiguration, p.TargetWidth)
	}
	if !(p.Alpha >= 0 && p.Alpha <= 1) {
		return fmt.Errorf("%w: flow_alpha must be between 0 and 1, got %v", config.ErrInvalidConfiguration, p.Alpha)
	}
	if p.Quantizer == nil || p.Quantizer.K < 1 {
		return fmt.Errorf("%w: k must be at least 1", config.ErrInvalidConfiguration)
	}
	if p.Motion == nil {
		return fmt.Errorf("%w: no motion estimator", config.ErrInvalidConfiguration)
	}
	return nil
}

// Step advances the loop by one raw frame. It returns the next state, the
// frame to emit and that frame's statistics. Step does not modify state or
// raw.
func (p *Pipeline) Step(state State, raw *frame.Frame) (State, *frame.Frame, FrameStats, error) {
	if err := state.check(); err != nil {
		return state, nil, FrameStats{}, err
	}

	small, err := Downsample(raw, p.TargetWidth)
	if err != nil {
		return state, nil, FrameStats{}, fmt.Errorf("downsample: %w", err)
	}
	gray := small.Gray()
	candidate, err := p.Quantizer.Quantize(small)
	if err != nil {
		return state, nil, FrameStats{}, fmt.Errorf("quantize: %w", err)
	}

	stats := FrameStats{Index: raw.Index}

	if state.Phase() == AwaitingFirstFrame {
		stats.DistinctColors = candidate.DistinctColors()
		return State{PrevGray: gray, PrevOutput: candidate}, candidate, stats, nil
	}

	field, err := p.Motion.Estimate(state.PrevGray, gray)
	if err != nil {
		return state, nil, FrameStats{}, fmt.Errorf("estimate motion: %w", err)
	}
	warped, err := Warp(state.PrevOutput, field)
	if err != nil {
		return state, nil, FrameStats{}, fmt.Errorf("warp: %w", err)
	}
	output, err := Blend(candidate, warped, p.Alpha)
	if err != nil {
		return state, nil, FrameStats{}, fmt.Errorf("blend: %w", err)
	}
	output.Index = raw.Index

	stats.Blended = true
	stats.DistinctColors = output.DistinctColors()
	stats.MeanFlow = meanFlow(field)
	stats.Flicker = changedFraction(output, warped)

	return State{PrevGray: gray, PrevOutput: output}, output, stats, nil
}

// RunReport summarises a finished run.
type RunReport struct {
	Source frame.StreamMetadata
	Output frame.StreamMetadata
	Frames int
	Phase  Phase
	// Interrupted is set when the source failed mid-stream. The frames
	// emitted before the failure are kept and ReadErr holds the cause.
	Interrupted bool
	ReadErr     error
	Stats       []FrameStats
}

// Run drives Step over every frame of src and writes the results to a sink
// obtained from newSink. src and the sink are closed on every return path.
// A decode failure ends the run like end of stream and is reported through
// RunReport; sink and pipeline failures are returned as errors.
func (p *Pipeline) Run(src FrameSource, newSink SinkFactory) (report RunReport, err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close source: %w", cerr))
		}
	}()

	if err := p.validate(); err != nil {
		return report, err
	}

	meta := src.Metadata()
	report.Source = meta
	w, h, err := OutputSize(meta.Width, meta.Height, p.TargetWidth)
	if err != nil {
		return report, err
	}
	report.Output = frame.StreamMetadata{Width: w, Height: h, FrameRate: meta.FrameRate}

	sink, err := newSink(report.Output)
	if err != nil {
		return report, fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close sink: %w", cerr))
		}
	}()

	monitoring.Logf("pixelate: %s -> %s k=%d alpha=%.2f", meta, report.Output, p.Quantizer.K, p.Alpha)

	var state State
	for {
		raw, rerr := src.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			report.Interrupted = true
			report.ReadErr = rerr
			monitoring.Logf("pixelate: read failed after %d frames: %v", report.Frames, rerr)
			break
		}
		raw.Index = report.Frames

		next, out, stats, serr := p.Step(state, raw)
		if serr != nil {
			return report, fmt.Errorf("frame %d: %w", raw.Index, serr)
		}

		emit := out
		if p.PostProcess != nil {
			if emit, serr = p.PostProcess(out); serr != nil {
				return report, fmt.Errorf("post-process frame %d: %w", raw.Index, serr)
			}
		}
		if werr := sink.Write(emit); werr != nil {
			return report, fmt.Errorf("write frame %d: %w", raw.Index, werr)
		}

		state = next
		report.Frames++
		report.Stats = append(report.Stats, stats)
		if p.Observer != nil {
			if oerr := p.Observer.ObserveFrame(stats); oerr != nil {
				monitoring.Logf("pixelate: observer failed on frame %d: %v", stats.Index, oerr)
			}
		}
	}

	report.Phase = Done
	monitoring.Logf("pixelate: done, %d frames emitted (interrupted=%t)", report.Frames, report.Interrupted)
	return report, nil
}
