package printing

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
)

// PrintJob is the bookkeeping record of one physical print attempt. Success
// is tri-state: nil until a human confirms the outcome at the printer.
//
// A job can exist while its program task is still queued behind a filament
// change; Pending covers that window too.
type PrintJob struct {
	ID           uuid.UUID
	Task         *DeviceTask
	Filament     *inventory.Filament
	PieceID      int     // set when the job is linked to its piece
	WeightG      float64 // quoted filament weight, for stock accounting
	CreatedAt    time.Time
	EstimatedEnd time.Time

	mu      sync.Mutex
	success *bool
	endTime *time.Time
}

// NewPrintJob links a job to its program task and records the launch estimate.
func NewPrintJob(task *DeviceTask, filament *inventory.Filament, now time.Time, buildTime time.Duration) *PrintJob {
	job := &PrintJob{
		ID:           uuid.New(),
		Task:         task,
		Filament:     filament,
		CreatedAt:    now,
		EstimatedEnd: now.Add(buildTime),
	}
	task.Job = job
	task.EstimatedEnd = job.EstimatedEnd
	return job
}

// Success returns the confirmed outcome, nil while undecided.
func (j *PrintJob) Success() *bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.success
}

// EndTime returns the confirmation time, nil while undecided.
func (j *PrintJob) EndTime() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.endTime
}

// Confirm records the human-confirmed outcome and stamps the end time.
func (j *PrintJob) Confirm(success bool, now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.success = &success
	at := now
	j.endTime = &at
}

// MarkFailed force-fails the job without overwriting an earlier confirmation.
// Used when the task is cancelled or loses tracking.
func (j *PrintJob) MarkFailed(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.success != nil {
		return
	}
	failed := false
	j.success = &failed
	at := now
	j.endTime = &at
}

// Printing reports whether the underlying device task is still non-terminal.
func (j *PrintJob) Printing() bool {
	return !j.Task.Terminal()
}

// AwaitingBedRemoval reports whether the program finished but no human has
// confirmed the outcome yet.
func (j *PrintJob) AwaitingBedRemoval() bool {
	return !j.Printing() && j.Success() == nil
}

// Pending reports whether the attempt still occupies one copy of its piece.
func (j *PrintJob) Pending() bool {
	return j.Printing() || j.AwaitingBedRemoval()
}
