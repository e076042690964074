package printing

import "time"

// PrinterFlags mirrors the state flags reported by the printer host.
type PrinterFlags struct {
	Operational   bool
	Printing      bool
	Paused        bool
	Ready         bool
	ClosedOrError bool
}

// Temperatures holds the actual tool and bed temperatures in degC.
type Temperatures struct {
	Tool float64
	Bed  float64
}

// JobStatus mirrors the printer host's current job report. EstimatedLeft is
// nil when the host does not know the remaining time.
type JobStatus struct {
	FileName       string
	EstimatedTotal time.Duration
	EstimatedLeft  *time.Duration
}

// Status is the cached aggregate a device controller keeps per printer. The
// status poller is the only writer; everything else reads snapshots.
type Status struct {
	Flags           PrinterFlags
	Temps           Temperatures
	Job             JobStatus
	ConnectionError bool
	UpdatedAt       time.Time
}

// Busy reports whether the remote is actively running or paused on a program.
func (s Status) Busy() bool {
	return s.Flags.Printing || s.Flags.Paused
}
