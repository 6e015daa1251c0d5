//go:build gocv

package flow

import "testing"

func TestOpenCV_IdenticalFramesNearZero(t *testing.T) {
	g := sinePattern(64, 64, 0)
	field, err := NewOpenCV(DefaultParams()).Estimate(g, g)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if m := field.MaxAbs(); m > 1e-3 {
		t.Errorf("MaxAbs = %v, want ~0", m)
	}
}

func TestOpenCV_AgreesWithFarnebackOnSign(t *testing.T) {
	prev := sinePattern(64, 64, 0)
	cur := sinePattern(64, 64, 2)
	field, err := NewOpenCV(DefaultParams()).Estimate(prev, cur)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if u, _ := interiorMean(field, 12); u <= 0 {
		t.Errorf("mean u = %v, want positive for a rightward shift", u)
	}
}

func TestNewEstimator_OpenCV(t *testing.T) {
	est, err := NewEstimator(BackendOpenCV, DefaultParams())
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	if _, ok := est.(*OpenCV); !ok {
		t.Fatalf("NewEstimator(opencv) = %T, want *OpenCV", est)
	}
}
