package printing

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	toposort "github.com/philopon/go-toposort"

	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// TaskKind discriminates the four device task variants.
type TaskKind string

const (
	// TaskCommand fires a short command script and returns immediately
	TaskCommand TaskKind = "COMMAND"

	// TaskProgram uploads a ready print program and tracks it to completion
	TaskProgram TaskKind = "PROGRAM"

	// TaskSliceProgram waits for an external slice job, then behaves as TaskProgram
	TaskSliceProgram TaskKind = "SLICE_PROGRAM"

	// TaskFilamentChange parks the printer at temperature and waits for a
	// human to swap the spool and confirm
	TaskFilamentChange TaskKind = "FILAMENT_CHANGE"
)

// TaskState is the lifecycle tag of a device task.
type TaskState string

const (
	TaskQueued    TaskState = "QUEUED"
	TaskClaimed   TaskState = "CLAIMED"
	TaskRunning   TaskState = "RUNNING"
	TaskDone      TaskState = "DONE"
	TaskCancelled TaskState = "CANCELLED"
	TaskFailed    TaskState = "FAILED"
)

// SliceJob is the handle a slice-then-program task holds on the external
// slicing service. Implementations live in the application layer.
type SliceJob interface {
	Ready() bool
	Err() error
	BuildTime() time.Duration
	Weight() float64
	ProgramPath() string
	EstimatedBuildTime() time.Duration
}

// filamentChangeDuration is the constant time-left estimate for a pending
// spool swap; the scheduler needs a bounded number for in-flight work.
const filamentChangeDuration = 15 * time.Minute

// programFallbackFloor bounds the time-left estimate for a program whose host
// reports no remaining time.
const programFallbackFloor = 600 * time.Second

// DeviceTask is one unit of work bound to a single device controller. A task
// carries at most one dependency; it may only become active once its whole
// dependency chain is finished.
type DeviceTask struct {
	ID           uuid.UUID
	Kind         TaskKind
	PrinterID    int
	Commands     []string  // TaskCommand
	ProgramPath  string    // TaskProgram
	Slice        SliceJob  // TaskSliceProgram
	Change       *FilamentChange
	Dependency   *DeviceTask
	Job          *PrintJob // set for tasks that wrap a physical print attempt
	EstimatedEnd time.Time // coarse completion estimate recorded at launch
	CreatedAt    time.Time

	mu             sync.Mutex
	state          TaskState
	sent           bool
	remoteFilename string
	failure        string
}

// NewCommandTask builds a task that fires a command script on the printer.
func NewCommandTask(printerID int, commands []string, now time.Time) *DeviceTask {
	return &DeviceTask{
		ID:        uuid.New(),
		Kind:      TaskCommand,
		PrinterID: printerID,
		Commands:  commands,
		CreatedAt: now,
		state:     TaskQueued,
	}
}

// NewProgramTask builds a task that uploads and tracks a ready print program.
func NewProgramTask(printerID int, programPath string, now time.Time) *DeviceTask {
	return &DeviceTask{
		ID:          uuid.New(),
		Kind:        TaskProgram,
		PrinterID:   printerID,
		ProgramPath: programPath,
		CreatedAt:   now,
		state:       TaskQueued,
	}
}

// NewSliceProgramTask builds a task that waits on an external slice job and
// then uploads the resulting program.
func NewSliceProgramTask(printerID int, slice SliceJob, now time.Time) *DeviceTask {
	return &DeviceTask{
		ID:        uuid.New(),
		Kind:      TaskSliceProgram,
		PrinterID: printerID,
		Slice:     slice,
		CreatedAt: now,
		state:     TaskQueued,
	}
}

// State returns the current lifecycle tag.
func (t *DeviceTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Claim moves a queued task into the active slot.
func (t *DeviceTask) Claim() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskQueued {
		return fmt.Errorf("cannot claim task %s in state %s", t.ID, t.state)
	}
	t.state = TaskClaimed
	return nil
}

// Start marks the task as running under its task runner.
func (t *DeviceTask) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskClaimed {
		return fmt.Errorf("cannot start task %s in state %s", t.ID, t.state)
	}
	t.state = TaskRunning
	return nil
}

// Finish marks the task terminally done.
func (t *DeviceTask) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskCancelled || t.state == TaskFailed {
		return
	}
	t.state = TaskDone
}

// Fail marks the task terminally failed with a reason.
func (t *DeviceTask) Fail(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskCancelled || t.state == TaskDone {
		return
	}
	t.state = TaskFailed
	t.failure = reason
}

// MarkCancelled flags the task cancelled. Idempotent; a done task stays done.
func (t *DeviceTask) MarkCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == TaskDone {
		return
	}
	t.state = TaskCancelled
}

// Failure returns the terminal failure reason, empty unless state is FAILED.
func (t *DeviceTask) Failure() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure
}

// Cancelled reports whether the task was cancelled.
func (t *DeviceTask) Cancelled() bool {
	return t.State() == TaskCancelled
}

// Terminal reports whether the task reached any terminal state.
func (t *DeviceTask) Terminal() bool {
	switch t.State() {
	case TaskDone, TaskCancelled, TaskFailed:
		return true
	}
	return false
}

// Finished reports terminal success. Dependency readiness is defined over
// this predicate, so a failed or cancelled dependency never unblocks its
// dependents.
func (t *DeviceTask) Finished() bool {
	return t.State() == TaskDone
}

// MarkSent records that the task's payload reached the remote.
func (t *DeviceTask) MarkSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = true
}

// Sent reports whether the payload reached the remote.
func (t *DeviceTask) Sent() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// SetRemoteFilename records the filename the host assigned at upload.
func (t *DeviceTask) SetRemoteFilename(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteFilename = name
}

// RemoteFilename returns the host-assigned filename, empty before upload.
func (t *DeviceTask) RemoteFilename() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteFilename
}

// DependenciesReady reports whether the whole dependency chain is finished.
func (t *DeviceTask) DependenciesReady() bool {
	for dep := t.Dependency; dep != nil; dep = dep.Dependency {
		if !dep.Finished() {
			return false
		}
	}
	return true
}

// DependencyCancelled reports whether any task up the chain was cancelled or
// failed. Dependents of such a task are treated as failed and never promoted.
func (t *DeviceTask) DependencyCancelled() bool {
	for dep := t.Dependency; dep != nil; dep = dep.Dependency {
		switch dep.State() {
		case TaskCancelled, TaskFailed:
			return true
		}
	}
	return false
}

// AwaitingHuman reports whether the task is parked on a human action: a
// filament change between send and confirmation, or a completed program whose
// print job has not been confirmed removed from the bed.
func (t *DeviceTask) AwaitingHuman() bool {
	switch t.Kind {
	case TaskFilamentChange:
		if t.Change == nil {
			return false
		}
		return t.Sent() && !t.Change.Confirmed()
	case TaskProgram, TaskSliceProgram:
		if t.Job == nil {
			return false
		}
		return t.Finished() && t.Job.Success() == nil
	}
	return false
}

// TimeLeft estimates the seconds of printer occupancy remaining for this
// task, using the latest polled status. The program estimate prefers the
// host's own remaining-time report and otherwise falls back to the recorded
// completion estimate with a 600 s floor.
func (t *DeviceTask) TimeLeft(now time.Time, status Status) time.Duration {
	switch t.Kind {
	case TaskCommand:
		return time.Second
	case TaskProgram:
		return t.programTimeLeft(now, status)
	case TaskSliceProgram:
		if t.Slice != nil && !t.Slice.Ready() {
			return t.Slice.EstimatedBuildTime()
		}
		return t.programTimeLeft(now, status)
	case TaskFilamentChange:
		return filamentChangeDuration
	}
	return 0
}

func (t *DeviceTask) programTimeLeft(now time.Time, status Status) time.Duration {
	if status.Job.EstimatedLeft != nil {
		return *status.Job.EstimatedLeft
	}
	left := t.EstimatedEnd.Sub(now)
	if left < programFallbackFloor {
		return programFallbackFloor
	}
	return left
}

// ValidateChain rejects dependency graphs with cycles. Tasks reference at
// most one dependency, but chains are wired incrementally by the dispatcher
// and a cycle would deadlock the controller queue forever.
func ValidateChain(tasks []*DeviceTask) error {
	graph := toposort.NewGraph(len(tasks))
	for _, t := range tasks {
		graph.AddNode(t.ID.String())
	}
	for _, t := range tasks {
		if t.Dependency != nil {
			graph.AddEdge(t.Dependency.ID.String(), t.ID.String())
		}
	}
	if _, ok := graph.Toposort(); !ok {
		return fmt.Errorf("device task dependency cycle: %w", shared.ErrTaskNotRunnable)
	}
	return nil
}
