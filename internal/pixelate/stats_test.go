package pixelate

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/mozzaic/internal/frame"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stats []FrameStats
		want  Summary
	}{
		{
			name:  "empty",
			stats: nil,
			want:  Summary{},
		},
		{
			name:  "single frame",
			stats: []FrameStats{{Index: 0, DistinctColors: 4}},
			want:  Summary{Frames: 1, MaxColors: 4},
		},
		{
			name: "three frames",
			stats: []FrameStats{
				{Index: 0, DistinctColors: 4},
				{Index: 1, DistinctColors: 9, Flicker: 0.2, MeanFlow: 1, Blended: true},
				{Index: 2, DistinctColors: 7, Flicker: 0.4, MeanFlow: 2, Blended: true},
			},
			want: Summary{
				Frames:       3,
				MeanFlicker:  0.2,
				StdFlicker:   0.2,
				MeanFlow:     1,
				StdFlow:      1,
				MaxColors:    9,
				BlendedCount: 2,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summarize(tt.stats)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMeanFlowAndChangedFraction(t *testing.T) {
	t.Parallel()

	field := frame.NewMotionField(2, 1)
	field.Set(0, 0, 3, 4)
	if got := meanFlow(field); math.Abs(got-2.5) > 1e-9 {
		t.Errorf("meanFlow = %v, want 2.5", got)
	}
	if got := meanFlow(nil); got != 0 {
		t.Errorf("meanFlow(nil) = %v", got)
	}

	a, _ := frame.New(2, 2)
	b := a.Clone()
	b.SetRGB(1, 1, 0, 0, 1)
	if got := changedFraction(a, b); got != 0.25 {
		t.Errorf("changedFraction = %v, want 0.25", got)
	}
}
