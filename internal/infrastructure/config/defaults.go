package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "printfarm"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "printfarm"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "printfarm.db"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Fleet defaults
	if cfg.Fleet.PollPeriod == 0 {
		cfg.Fleet.PollPeriod = 2 * time.Second
	}
	if cfg.Fleet.DispatchPeriod == 0 {
		cfg.Fleet.DispatchPeriod = 1 * time.Second
	}
	if cfg.Fleet.BeepThreshold == 0 {
		cfg.Fleet.BeepThreshold = 30
	}
	if cfg.Fleet.Host.ConnectTimeout == 0 {
		cfg.Fleet.Host.ConnectTimeout = 5 * time.Second
	}
	if cfg.Fleet.Host.ReadTimeout == 0 {
		cfg.Fleet.Host.ReadTimeout = 10 * time.Second
	}
	if cfg.Fleet.Host.Retry.MaxAttempts == 0 {
		cfg.Fleet.Host.Retry.MaxAttempts = 3
	}
	if cfg.Fleet.Host.Retry.BackoffBase == 0 {
		cfg.Fleet.Host.Retry.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Fleet.Host.RateLimit.Requests == 0 {
		cfg.Fleet.Host.RateLimit.Requests = 4
	}
	if cfg.Fleet.Host.RateLimit.Burst == 0 {
		cfg.Fleet.Host.RateLimit.Burst = 4
	}

	// Scheduler defaults
	if cfg.Scheduler.Period == 0 {
		cfg.Scheduler.Period = 10 * time.Second
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "Local"
	}

	// Slicer defaults
	if cfg.Slicer.BaseURL == "" {
		cfg.Slicer.BaseURL = "http://localhost:9000"
	}
	if cfg.Slicer.WorkDir == "" {
		cfg.Slicer.WorkDir = "/tmp/printfarm"
	}
	if cfg.Slicer.Timeout == 0 {
		cfg.Slicer.Timeout = 30 * time.Second
	}

	// Server defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = "localhost:8080"
	}
	if cfg.Server.Metrics.Path == "" {
		cfg.Server.Metrics.Path = "/metrics"
	}

	// Daemon defaults
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = "/tmp/printfarm-daemon.pid"
	}
	if cfg.Daemon.ShutdownTimeout == 0 {
		cfg.Daemon.ShutdownTimeout = 30 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
