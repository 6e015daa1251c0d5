// Package pixelate implements the temporally stabilised pixel-art pipeline.
//
// Each raw frame is downsampled, colour-quantised independently, and then
// blended with the previous output after that output has been warped along
// the dense motion field between the two frames' luma planes:
//
//	raw -> Downsample -> Quantize -> candidate
//	prevGray, curGray -> MotionEstimator -> field
//	prevOutput, field -> Warp -> warped
//	candidate, warped, alpha -> Blend -> output
//
// The loop-carried values live in an explicit State which Step consumes and
// returns. Run wraps Step with a FrameSource and FrameSink and owns both for
// the lifetime of a run.
//
// Clustering is refit from scratch on every frame. Cluster-to-colour
// assignments may therefore drift between frames; the warp and blend stages
// exist to hide that drift, not to remove it.
package pixelate
