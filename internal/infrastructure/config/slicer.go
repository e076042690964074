package config

import "time"

// SlicerConfig holds the external slicing service client settings
type SlicerConfig struct {
	// Base URL of the slicing service
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// Directory sliced programs are downloaded to
	WorkDir string `mapstructure:"work_dir" validate:"required"`

	// Request timeout
	Timeout time.Duration `mapstructure:"timeout"`
}
