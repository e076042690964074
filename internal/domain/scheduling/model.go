package scheduling

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SolverStatus tags the outcome of one optimizer run.
type SolverStatus string

const (
	StatusOptimal    SolverStatus = "OPTIMAL"
	StatusInfeasible SolverStatus = "INFEASIBLE"
	StatusInvalid    SolverStatus = "INVALID"
	StatusUnknown    SolverStatus = "UNKNOWN"
)

// TaskSpec is one schedulable unit handed to the solver: either one pending
// copy of a piece, or an in-flight device task pinned to its machine.
// Times are integer seconds measured from the solve instant.
type TaskSpec struct {
	ID         string
	PieceID    int    // set for pending piece copies
	DeviceTask string // set for in-flight device tasks
	Processing int64
	Deadline   int64
	Machines   []int // compatible machine indexes
	Pinned     bool  // in-flight: single machine, start fixed at 0
}

// Assignment is the solver's placement of one task.
type Assignment struct {
	Task    TaskSpec
	Machine int
	Start   int64
	End     int64
}

// Solution is the raw solver output before it is materialized into a
// persisted Schedule.
type Solution struct {
	Status     SolverStatus
	Makespan   int64
	Assignment []Assignment
}

// Schedule is one persisted optimizer run: its status, its entries, and the
// set of device tasks the dispatcher launched from it.
type Schedule struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Status    SolverStatus
	Entries   []*ScheduleEntry

	mu         sync.Mutex
	finishedAt *time.Time
	launched   []uuid.UUID
}

// ScheduleEntry reserves one printer for one task over a time window.
// Exactly one of PieceID or DeviceTaskID is set.
type ScheduleEntry struct {
	PrinterID    int
	PieceID      int
	DeviceTaskID string
	Start        time.Time
	End          time.Time
	Deadline     time.Time
}

// NewSchedule stamps a fresh schedule for one optimizer run.
func NewSchedule(now time.Time, status SolverStatus) *Schedule {
	return &Schedule{
		ID:        uuid.New(),
		CreatedAt: now,
		Status:    status,
	}
}

// MarkFinished stamps the end of the scheduler→dispatcher chain. Until then
// the next scheduler tick is coalesced away.
func (s *Schedule) MarkFinished(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := now
	s.finishedAt = &at
}

// Ready reports whether this run's chain has finished.
func (s *Schedule) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt != nil
}

// FinishedAt returns the chain completion time, nil while running.
func (s *Schedule) FinishedAt() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

// RecordLaunched appends a dispatched device task to the launched set.
func (s *Schedule) RecordLaunched(taskID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launched = append(s.launched, taskID)
}

// LaunchedTasks returns a snapshot of the launched device task ids.
func (s *Schedule) LaunchedTasks() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.launched))
	copy(out, s.launched)
	return out
}
