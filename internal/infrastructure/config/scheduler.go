package config

import "time"

// SchedulerConfig holds the optimizer service settings
type SchedulerConfig struct {
	// Solve period; ticks landing while a chain runs are coalesced
	Period time.Duration `mapstructure:"period" validate:"required"`

	// IANA timezone the forbidden zones are expressed in
	Timezone string `mapstructure:"timezone"`

	// Branch-and-bound node budget, 0 for the built-in cap
	NodeCap int `mapstructure:"node_cap" validate:"min=0"`

	// Daily wall-clock windows during which no task may start
	ForbiddenZones []ZoneConfig `mapstructure:"forbidden_zones" validate:"dive"`
}

// ZoneConfig is one daily forbidden window
type ZoneConfig struct {
	StartHour     float64 `mapstructure:"start_hour" validate:"min=0,lt=24"`
	DurationHours float64 `mapstructure:"duration_hours" validate:"gt=0,max=24"`
}
