package fleet

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

var testEpoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeDevice is an in-memory DeviceClient for controller tests.
type fakeDevice struct {
	mu         sync.Mutex
	flags      printing.PrinterFlags
	temps      printing.Temperatures
	job        printing.JobStatus
	stateErr   error
	uploadName string
	uploadErr  error
	commands   [][]string
	cancels    int
}

func (f *fakeDevice) Ping(ctx context.Context) bool { return f.stateErr == nil }

func (f *fakeDevice) IssueCommands(ctx context.Context, lines []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, lines)
	return nil
}

func (f *fakeDevice) UploadAndStart(ctx context.Context, file io.Reader, filename string) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	if f.uploadName != "" {
		return f.uploadName, nil
	}
	return filename, nil
}

func (f *fakeDevice) FetchPrinterState(ctx context.Context) (printing.PrinterFlags, printing.Temperatures, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return printing.PrinterFlags{}, printing.Temperatures{}, f.stateErr
	}
	return f.flags, f.temps, nil
}

func (f *fakeDevice) FetchJobState(ctx context.Context) (printing.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return printing.JobStatus{}, f.stateErr
	}
	return f.job, nil
}

func (f *fakeDevice) Cancel(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeDevice) commandCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commands)
}

func (f *fakeDevice) setJob(job printing.JobStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.job = job
}

func newTestController(t *testing.T, device *fakeDevice) (*Controller, *shared.MockClock) {
	t.Helper()
	clock := shared.NewMockClock(testEpoch)
	registry := NewStatusRegistry(time.Minute)
	printer := &printing.Printer{ID: 1, Name: "mk3-01"}
	c := NewController(printer, device, registry, clock, zap.NewNop().Sugar())
	return c, clock
}

func markOnline(c *Controller) {
	c.registry.Put(c.printer.ID, printing.Status{
		Flags:     printing.PrinterFlags{Operational: true, Ready: true},
		UpdatedAt: testEpoch,
	})
}

func TestDispatchTickRunsCommandTask(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	markOnline(c)

	task := c.Enqueue(printing.NewCommandTask(1, []string{"G28"}, clock.Now()))
	c.DispatchTick(context.Background(), 0)
	c.WaitIdle()

	assert.Equal(t, printing.TaskDone, task.State())
	assert.Equal(t, 1, device.commandCount())
	assert.Empty(t, c.QueueSnapshot())
}

func TestDispatchTickHoldsWhileConnectionDown(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	// No status was ever polled: the registry reads as a connection error.

	task := c.Enqueue(printing.NewCommandTask(1, []string{"G28"}, clock.Now()))
	c.DispatchTick(context.Background(), 0)

	assert.Equal(t, printing.TaskQueued, task.State())
	assert.Len(t, c.QueueSnapshot(), 1)
	assert.False(t, c.PrinterReady())
}

func TestDispatchTickPromotesDependentOfFinishedTask(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	markOnline(c)

	first := c.Enqueue(printing.NewCommandTask(1, []string{"G28"}, clock.Now()))
	c.DispatchTick(context.Background(), 0)
	c.WaitIdle()
	require.Equal(t, printing.TaskDone, first.State())

	unrelated := c.Enqueue(printing.NewCommandTask(1, []string{"M84"}, clock.Now()))
	dependent := printing.NewCommandTask(1, []string{"M300"}, clock.Now())
	dependent.Dependency = first
	c.Enqueue(dependent)

	// The dependent of the task that just vacated the slot goes first even
	// though the unrelated task was queued earlier.
	c.DispatchTick(context.Background(), 0)
	c.WaitIdle()

	assert.Equal(t, printing.TaskDone, dependent.State())
	assert.Equal(t, printing.TaskQueued, unrelated.State())
}

func TestTakeRunnablePrefersLastReadyTask(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)

	older := c.Enqueue(printing.NewCommandTask(1, []string{"G28"}, clock.Now()))
	newer := c.Enqueue(printing.NewCommandTask(1, []string{"M84"}, clock.Now()))

	picked := c.takeRunnable(nil)

	assert.Same(t, newer, picked)
	require.Len(t, c.QueueSnapshot(), 1)
	assert.Same(t, older, c.QueueSnapshot()[0])
}

func TestTakeRunnableSkipsBlockedDependents(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)

	gate := printing.NewCommandTask(1, []string{"G28"}, clock.Now())
	blocked := printing.NewCommandTask(1, []string{"M84"}, clock.Now())
	blocked.Dependency = gate
	ready := c.Enqueue(printing.NewCommandTask(1, []string{"M300"}, clock.Now()))
	c.Enqueue(blocked)

	assert.Same(t, ready, c.takeRunnable(nil))
}

func TestReapFailedDependents(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	markOnline(c)

	gate := printing.NewCommandTask(1, nil, clock.Now())
	gate.MarkCancelled()
	orphan := printing.NewProgramTask(1, "/tmp/a.gcode", clock.Now())
	orphan.Dependency = gate
	job := printing.NewPrintJob(orphan, nil, clock.Now(), time.Hour)
	c.Enqueue(orphan)

	c.DispatchTick(context.Background(), 0)

	assert.Equal(t, printing.TaskFailed, orphan.State())
	assert.Empty(t, c.QueueSnapshot())
	require.NotNil(t, job.Success())
	assert.False(t, *job.Success())
}

func TestRunProgramTracksToCompletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bracket.gcode")
	require.NoError(t, os.WriteFile(path, []byte("G28\n"), 0o644))

	device := &fakeDevice{
		flags:      printing.PrinterFlags{Operational: true, Ready: true},
		uploadName: "bracket_0.gcode",
		job:        printing.JobStatus{FileName: "bracket_0.gcode"},
	}
	c, clock := newTestController(t, device)
	markOnline(c)

	task := c.Enqueue(printing.NewProgramTask(1, path, clock.Now()))
	c.DispatchTick(context.Background(), 0)
	c.WaitIdle()

	assert.Equal(t, printing.TaskDone, task.State())
	assert.Equal(t, "bracket_0.gcode", task.RemoteFilename())
}

func TestRunProgramTrackingLost(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bracket.gcode")
	require.NoError(t, os.WriteFile(path, []byte("G28\n"), 0o644))

	// The host reports a different file after upload: someone started a job
	// from the printer's own panel and the attempt can no longer be tracked.
	device := &fakeDevice{
		flags:      printing.PrinterFlags{Operational: true, Printing: true},
		uploadName: "bracket_0.gcode",
		job:        printing.JobStatus{FileName: "intruder.gcode"},
	}
	c, clock := newTestController(t, device)
	markOnline(c)

	task := printing.NewProgramTask(1, path, clock.Now())
	job := printing.NewPrintJob(task, nil, clock.Now(), time.Hour)
	c.Enqueue(task)

	c.DispatchTick(context.Background(), 0)
	c.WaitIdle()

	assert.Equal(t, printing.TaskFailed, task.State())
	assert.Equal(t, shared.ErrTrackingLost.Error(), task.Failure())
	assert.Equal(t, 1, device.cancels)
	require.NotNil(t, job.Success())
	assert.False(t, *job.Success())
}

func TestRunFilamentChangeWarmsAndWaitsForConfirm(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	markOnline(c)

	spool := &inventory.Filament{ID: 2, Name: "PLA blue", Color: "blue", Material: "PLA", BedTemp: 60, NozzleTemp: 210}
	change := printing.NewFilamentChange(1, nil, spool, clock.Now())
	// Confirmed ahead of the runner so the wait loop terminates immediately.
	change.Confirm(clock.Now())
	c.Enqueue(change.Task)

	c.DispatchTick(context.Background(), 0)
	c.WaitIdle()

	assert.Equal(t, printing.TaskDone, change.Task.State())
	require.Equal(t, 1, device.commandCount())
	assert.Contains(t, device.commands[0], "G28")
}

func TestAwaitingHumanBlocksDispatchAndBeeps(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	markOnline(c)

	spool := &inventory.Filament{ID: 2, Color: "blue", Material: "PLA"}
	change := printing.NewFilamentChange(1, nil, spool, clock.Now())
	change.Task.MarkSent()
	c.active = change.Task
	queued := c.Enqueue(printing.NewCommandTask(1, []string{"G28"}, clock.Now()))

	for i := 0; i < 3; i++ {
		c.DispatchTick(context.Background(), 3)
	}

	// Nothing was promoted and the threshold fired exactly one buzzer tone.
	assert.Equal(t, printing.TaskQueued, queued.State())
	require.Equal(t, 1, device.commandCount())
	assert.Equal(t, printing.BuzzerTone, device.commands[0])

	// Counter restarts after the beep.
	c.DispatchTick(context.Background(), 3)
	assert.Equal(t, 1, device.commandCount())
}

func TestCancelActiveClearsSlotAndNotifiesRemote(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)

	task := printing.NewProgramTask(1, "/tmp/a.gcode", clock.Now())
	job := printing.NewPrintJob(task, nil, clock.Now(), time.Hour)
	require.NoError(t, task.Claim())
	c.active = task

	c.CancelActive(context.Background(), true)

	assert.Nil(t, c.ActiveTask())
	assert.Equal(t, printing.TaskCancelled, task.State())
	assert.Equal(t, 1, device.cancels)
	require.NotNil(t, job.Success())
	assert.False(t, *job.Success())

	// Second cancel on an empty slot is a no-op.
	c.CancelActive(context.Background(), true)
	assert.Equal(t, 1, device.cancels)
}

func TestResetClearsSlotAndStatus(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)
	markOnline(c)

	task := printing.NewCommandTask(1, nil, clock.Now())
	require.NoError(t, task.Claim())
	c.active = task

	c.Reset()

	assert.Nil(t, c.ActiveTask())
	assert.Equal(t, printing.TaskCancelled, task.State())
	assert.True(t, c.SnapshotStatus().ConnectionError)
}

func TestLockedControllerNeverReady(t *testing.T) {
	device := &fakeDevice{}
	c, _ := newTestController(t, device)
	markOnline(c)

	assert.True(t, c.PrinterReady())
	c.SetLocked(true)
	assert.False(t, c.PrinterReady())
	c.SetLocked(false)
	assert.True(t, c.PrinterReady())
}

func TestTimeLeftEmptySlotIsZero(t *testing.T) {
	device := &fakeDevice{}
	c, clock := newTestController(t, device)

	assert.Zero(t, c.TimeLeft(clock.Now()))
}

func TestRefreshStatusDegradesToConnectionError(t *testing.T) {
	device := &fakeDevice{stateErr: context.DeadlineExceeded}
	c, _ := newTestController(t, device)

	c.RefreshStatus(context.Background())

	status := c.SnapshotStatus()
	assert.True(t, status.ConnectionError)
	assert.False(t, c.ConnectionReady())
}
