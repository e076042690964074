package config

import "time"

// FleetConfig holds the device controller and print host client settings
type FleetConfig struct {
	// Status poll period per printer
	PollPeriod time.Duration `mapstructure:"poll_period" validate:"required"`

	// Device controller dispatch tick period
	DispatchPeriod time.Duration `mapstructure:"dispatch_period" validate:"required"`

	// Dispatch ticks an awaiting-human task sits before the printer beeps
	BeepThreshold int `mapstructure:"beep_threshold" validate:"min=0"`

	// Print host HTTP client settings
	Host HostConfig `mapstructure:"host"`
}

// HostConfig holds the print host HTTP client configuration
type HostConfig struct {
	// TCP connect timeout
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Per-request read timeout
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// Retry configuration
	Retry RetryConfig `mapstructure:"retry"`

	// Rate limiting settings
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RetryConfig holds retry configuration for failed requests
type RetryConfig struct {
	// Maximum number of attempts including the first
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=0"`

	// Base duration for exponential backoff
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	// Maximum requests per second per host
	Requests int `mapstructure:"requests" validate:"min=1"`

	// Burst size for token bucket
	Burst int `mapstructure:"burst" validate:"min=1"`
}
