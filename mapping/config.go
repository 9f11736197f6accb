package mapping

import (
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"go.viam.com/voxmap/tsdf"
)

// DefaultWorldFrame is the map coordinate frame used when none is configured.
// All transforms are looked up into this frame.
const DefaultWorldFrame = "world"

const (
	defaultVoxelSize     = 0.02
	defaultVoxelsPerSide = 16
)

// Config configures a mapping server. Zero values take defaults; negative
// geometry is rejected.
type Config struct {
	// WorldFrame labels published clouds. Empty means "world".
	WorldFrame string `json:"world_frame"`
	// VoxelSize is the voxel edge length in meters. Zero means 0.02.
	VoxelSize float64 `json:"voxel_size"`
	// VoxelsPerSide is the block side length in voxels. Zero means 16.
	VoxelsPerSide int `json:"voxels_per_side"`
	// SurfaceDistanceThreshold overrides the surface extraction band. Zero
	// means 0.75 voxel sizes.
	SurfaceDistanceThreshold float64 `json:"surface_distance_threshold"`
	// TruncationDistance bounds stored distances; handed to the integrator.
	// Zero means the integrator's default.
	TruncationDistance float64 `json:"truncation_distance"`
	// CarvingEnabled clears observed free space along each ray.
	CarvingEnabled bool `json:"carving_enabled"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if cfg.VoxelSize < 0 {
		return errors.Errorf("invalid voxel size (%.4f)", cfg.VoxelSize)
	}
	if cfg.VoxelsPerSide < 0 {
		return errors.Errorf("invalid voxels per side (%d)", cfg.VoxelsPerSide)
	}
	if cfg.SurfaceDistanceThreshold < 0 {
		return errors.Errorf("invalid surface distance threshold (%.4f)", cfg.SurfaceDistanceThreshold)
	}
	if cfg.TruncationDistance < 0 {
		return errors.Errorf("invalid truncation distance (%.4f)", cfg.TruncationDistance)
	}
	return nil
}

// ConfigFromAttributes decodes a raw attribute map into a Config, matching
// keys against the json tag names.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &cfg})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mapConfig resolves the store geometry with defaults applied.
func (cfg *Config) mapConfig() tsdf.Config {
	mc := tsdf.Config{VoxelSize: cfg.VoxelSize, VoxelsPerSide: cfg.VoxelsPerSide}
	if mc.VoxelSize == 0 {
		mc.VoxelSize = defaultVoxelSize
	}
	if mc.VoxelsPerSide == 0 {
		mc.VoxelsPerSide = defaultVoxelsPerSide
	}
	return mc
}

func (cfg *Config) worldFrame() string {
	if cfg.WorldFrame == "" {
		return DefaultWorldFrame
	}
	return cfg.WorldFrame
}

func (cfg *Config) surfaceThreshold(voxelSize float64) float64 {
	if cfg.SurfaceDistanceThreshold == 0 {
		return tsdf.DefaultSurfaceThreshold(voxelSize)
	}
	return cfg.SurfaceDistanceThreshold
}
