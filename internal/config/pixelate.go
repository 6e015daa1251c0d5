package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultConfigPath is the path to the canonical pixelation defaults file.
const DefaultConfigPath = "config/pixelate.defaults.json"

// ErrInvalidConfiguration is wrapped by every validation failure so callers
// can reject a request before any frame is processed.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// PixelateConfig is the root configuration for a pixelation run. The schema
// matches the query parameters accepted by the /process/video endpoint so the
// same JSON can seed both the CLI and the server.
type PixelateConfig struct {
	// Core stabilization params
	TargetWidth *int     `json:"target_width,omitempty"`
	K           *int     `json:"k,omitempty"`
	FlowAlpha   *float64 `json:"flow_alpha,omitempty"`

	// Clustering params
	BatchSize *int `json:"batch_size,omitempty"`
	Restarts  *int `json:"restarts,omitempty"`
	MaxIter   *int `json:"max_iter,omitempty"`

	// Dense flow params
	PyrScale   *float64 `json:"pyr_scale,omitempty"`
	Levels     *int     `json:"levels,omitempty"`
	WinSize    *int     `json:"win_size,omitempty"`
	Iterations *int     `json:"iterations,omitempty"`
	PolyN      *int     `json:"poly_n,omitempty"`
	PolySigma  *float64 `json:"poly_sigma,omitempty"`

	// "farneback" (pure Go) or "opencv" (needs a gocv build)
	FlowBackend *string `json:"flow_backend,omitempty"`

	// Output params
	Codec *string `json:"codec,omitempty"` // four-character code like "mp4v"

	// Server storage params
	UploadDir      *string `json:"upload_dir,omitempty"`
	ProcessedDir   *string `json:"processed_dir,omitempty"`
	MaxUploadBytes *int64  `json:"max_upload_bytes,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyPixelateConfig returns a PixelateConfig with all fields set to nil.
// The Get* accessors fall back to built-in defaults for nil fields.
func EmptyPixelateConfig() *PixelateConfig {
	return &PixelateConfig{}
}

// DefaultPixelateConfig returns a config with every field populated from the
// built-in defaults.
func DefaultPixelateConfig() *PixelateConfig {
	c := EmptyPixelateConfig()
	return &PixelateConfig{
		TargetWidth:    ptrInt(c.GetTargetWidth()),
		K:              ptrInt(c.GetK()),
		FlowAlpha:      ptrFloat64(c.GetFlowAlpha()),
		BatchSize:      ptrInt(c.GetBatchSize()),
		Restarts:       ptrInt(c.GetRestarts()),
		MaxIter:        ptrInt(c.GetMaxIter()),
		PyrScale:       ptrFloat64(c.GetPyrScale()),
		Levels:         ptrInt(c.GetLevels()),
		WinSize:        ptrInt(c.GetWinSize()),
		Iterations:     ptrInt(c.GetIterations()),
		PolyN:          ptrInt(c.GetPolyN()),
		PolySigma:      ptrFloat64(c.GetPolySigma()),
		FlowBackend:    ptrString(c.GetFlowBackend()),
		Codec:          ptrString(c.GetCodec()),
		UploadDir:      ptrString(c.GetUploadDir()),
		ProcessedDir:   ptrString(c.GetProcessedDir()),
		MaxUploadBytes: ptrInt64(c.GetMaxUploadBytes()),
	}
}

// LoadPixelateConfig loads a PixelateConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadPixelateConfig(path string) (*PixelateConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPixelateConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *PixelateConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ or deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPixelateConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable. Every failure wraps
// ErrInvalidConfiguration.
func (c *PixelateConfig) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
	}

	if c.TargetWidth != nil && *c.TargetWidth <= 0 {
		return invalid("target_width must be positive, got %d", *c.TargetWidth)
	}
	if c.K != nil && *c.K < 1 {
		return invalid("k must be at least 1, got %d", *c.K)
	}
	if c.FlowAlpha != nil && !(*c.FlowAlpha >= 0 && *c.FlowAlpha <= 1) {
		return invalid("flow_alpha must be between 0 and 1, got %f", *c.FlowAlpha)
	}
	if c.BatchSize != nil && *c.BatchSize < 1 {
		return invalid("batch_size must be positive, got %d", *c.BatchSize)
	}
	if c.Restarts != nil && *c.Restarts < 1 {
		return invalid("restarts must be positive, got %d", *c.Restarts)
	}
	if c.MaxIter != nil && *c.MaxIter < 1 {
		return invalid("max_iter must be positive, got %d", *c.MaxIter)
	}
	if c.PyrScale != nil && (*c.PyrScale <= 0 || *c.PyrScale >= 1) {
		return invalid("pyr_scale must be in (0, 1), got %f", *c.PyrScale)
	}
	if c.Levels != nil && *c.Levels < 1 {
		return invalid("levels must be positive, got %d", *c.Levels)
	}
	if c.WinSize != nil && *c.WinSize < 1 {
		return invalid("win_size must be positive, got %d", *c.WinSize)
	}
	if c.Iterations != nil && *c.Iterations < 1 {
		return invalid("iterations must be positive, got %d", *c.Iterations)
	}
	if c.PolyN != nil && *c.PolyN < 1 {
		return invalid("poly_n must be positive, got %d", *c.PolyN)
	}
	if c.PolySigma != nil && *c.PolySigma <= 0 {
		return invalid("poly_sigma must be positive, got %f", *c.PolySigma)
	}
	if c.FlowBackend != nil {
		switch strings.ToLower(*c.FlowBackend) {
		case "", "farneback", "opencv":
		default:
			return invalid("flow_backend must be farneback or opencv, got %q", *c.FlowBackend)
		}
	}
	if c.Codec != nil && len(*c.Codec) != 4 {
		return invalid("codec must be a four-character code, got %q", *c.Codec)
	}
	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return invalid("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}

	return nil
}

// Merge returns a copy of c with every non-nil field of override applied.
func (c *PixelateConfig) Merge(override *PixelateConfig) *PixelateConfig {
	out := *c
	if override == nil {
		return &out
	}
	if override.TargetWidth != nil {
		out.TargetWidth = override.TargetWidth
	}
	if override.K != nil {
		out.K = override.K
	}
	if override.FlowAlpha != nil {
		out.FlowAlpha = override.FlowAlpha
	}
	if override.BatchSize != nil {
		out.BatchSize = override.BatchSize
	}
	if override.Restarts != nil {
		out.Restarts = override.Restarts
	}
	if override.MaxIter != nil {
		out.MaxIter = override.MaxIter
	}
	if override.PyrScale != nil {
		out.PyrScale = override.PyrScale
	}
	if override.Levels != nil {
		out.Levels = override.Levels
	}
	if override.WinSize != nil {
		out.WinSize = override.WinSize
	}
	if override.Iterations != nil {
		out.Iterations = override.Iterations
	}
	if override.PolyN != nil {
		out.PolyN = override.PolyN
	}
	if override.PolySigma != nil {
		out.PolySigma = override.PolySigma
	}
	if override.FlowBackend != nil {
		out.FlowBackend = override.FlowBackend
	}
	if override.Codec != nil {
		out.Codec = override.Codec
	}
	if override.UploadDir != nil {
		out.UploadDir = override.UploadDir
	}
	if override.ProcessedDir != nil {
		out.ProcessedDir = override.ProcessedDir
	}
	if override.MaxUploadBytes != nil {
		out.MaxUploadBytes = override.MaxUploadBytes
	}
	return &out
}

// WithTargetWidth returns a copy with target_width set.
func (c *PixelateConfig) WithTargetWidth(v int) *PixelateConfig {
	return c.Merge(&PixelateConfig{TargetWidth: ptrInt(v)})
}

// WithK returns a copy with k set.
func (c *PixelateConfig) WithK(v int) *PixelateConfig {
	return c.Merge(&PixelateConfig{K: ptrInt(v)})
}

// WithFlowAlpha returns a copy with flow_alpha set.
func (c *PixelateConfig) WithFlowAlpha(v float64) *PixelateConfig {
	return c.Merge(&PixelateConfig{FlowAlpha: ptrFloat64(v)})
}

// GetTargetWidth returns the target_width value or the default.
func (c *PixelateConfig) GetTargetWidth() int {
	if c.TargetWidth == nil {
		return 320
	}
	return *c.TargetWidth
}

// GetK returns the k value or the default.
func (c *PixelateConfig) GetK() int {
	if c.K == nil {
		return 8
	}
	return *c.K
}

// GetFlowAlpha returns the flow_alpha value or the default.
func (c *PixelateConfig) GetFlowAlpha() float64 {
	if c.FlowAlpha == nil {
		return 0.7
	}
	return *c.FlowAlpha
}

// GetBatchSize returns the batch_size value or the default.
func (c *PixelateConfig) GetBatchSize() int {
	if c.BatchSize == nil {
		return 4096
	}
	return *c.BatchSize
}

// GetRestarts returns the restarts value or the default.
func (c *PixelateConfig) GetRestarts() int {
	if c.Restarts == nil {
		return 3
	}
	return *c.Restarts
}

// GetMaxIter returns the max_iter value or the default.
func (c *PixelateConfig) GetMaxIter() int {
	if c.MaxIter == nil {
		return 100
	}
	return *c.MaxIter
}

// GetPyrScale returns the pyr_scale value or the default.
func (c *PixelateConfig) GetPyrScale() float64 {
	if c.PyrScale == nil {
		return 0.5
	}
	return *c.PyrScale
}

// GetLevels returns the levels value or the default.
func (c *PixelateConfig) GetLevels() int {
	if c.Levels == nil {
		return 3
	}
	return *c.Levels
}

// GetWinSize returns the win_size value or the default.
func (c *PixelateConfig) GetWinSize() int {
	if c.WinSize == nil {
		return 15
	}
	return *c.WinSize
}

// GetIterations returns the iterations value or the default.
func (c *PixelateConfig) GetIterations() int {
	if c.Iterations == nil {
		return 3
	}
	return *c.Iterations
}

// GetPolyN returns the poly_n value or the default.
func (c *PixelateConfig) GetPolyN() int {
	if c.PolyN == nil {
		return 5
	}
	return *c.PolyN
}

// GetPolySigma returns the poly_sigma value or the default.
func (c *PixelateConfig) GetPolySigma() float64 {
	if c.PolySigma == nil {
		return 1.2
	}
	return *c.PolySigma
}

// GetFlowBackend returns the flow_backend value or the default.
func (c *PixelateConfig) GetFlowBackend() string {
	if c.FlowBackend == nil || *c.FlowBackend == "" {
		return "farneback"
	}
	return strings.ToLower(*c.FlowBackend)
}

// GetCodec returns the codec four-character code or the default.
func (c *PixelateConfig) GetCodec() string {
	if c.Codec == nil || *c.Codec == "" {
		return "mp4v"
	}
	return strings.ToLower(*c.Codec)
}

// GetUploadDir returns the upload_dir value or the default.
func (c *PixelateConfig) GetUploadDir() string {
	if c.UploadDir == nil || *c.UploadDir == "" {
		return "uploads"
	}
	return *c.UploadDir
}

// GetProcessedDir returns the processed_dir value or the default.
func (c *PixelateConfig) GetProcessedDir() string {
	if c.ProcessedDir == nil || *c.ProcessedDir == "" {
		return "processed"
	}
	return *c.ProcessedDir
}

// GetMaxUploadBytes returns the max_upload_bytes value or the default.
func (c *PixelateConfig) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return 512 << 20 // 512MB
	}
	return *c.MaxUploadBytes
}
