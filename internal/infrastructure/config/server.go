package config

// ServerConfig holds the operator REST surface settings
type ServerConfig struct {
	// Listen address (host:port)
	Address string `mapstructure:"address" validate:"required"`

	// Metrics endpoint settings
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	// Serve /metrics on the operator listener
	Enabled bool `mapstructure:"enabled"`

	// Exposition path
	Path string `mapstructure:"path"`
}
