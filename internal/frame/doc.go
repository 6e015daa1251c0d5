// Package frame owns the raster data model shared by every stage of the
// pixelation pipeline.
//
// Responsibilities: packed 8-bit RGB frames, single-channel luma frames,
// dense motion fields and per-stream metadata.
// Key types: Frame, Gray, MotionField, StreamMetadata.
//
// Dependency rule: frame depends on nothing else in this module. Video I/O,
// quantization and flow estimation all import frame, never the reverse.
package frame
