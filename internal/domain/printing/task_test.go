package printing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
)

var testEpoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func TestTaskLifecycle(t *testing.T) {
	task := NewCommandTask(1, []string{"G28"}, testEpoch)

	assert.Equal(t, TaskQueued, task.State())
	require.NoError(t, task.Claim())
	assert.Equal(t, TaskClaimed, task.State())
	require.NoError(t, task.Start())
	assert.Equal(t, TaskRunning, task.State())
	task.Finish()
	assert.Equal(t, TaskDone, task.State())
	assert.True(t, task.Terminal())
	assert.True(t, task.Finished())
}

func TestTaskClaimRejectsNonQueued(t *testing.T) {
	task := NewCommandTask(1, nil, testEpoch)
	require.NoError(t, task.Claim())

	assert.Error(t, task.Claim())
}

func TestTaskFailKeepsReason(t *testing.T) {
	task := NewProgramTask(1, "/tmp/a.gcode", testEpoch)
	require.NoError(t, task.Claim())
	require.NoError(t, task.Start())

	task.Fail("upload refused")

	assert.Equal(t, TaskFailed, task.State())
	assert.Equal(t, "upload refused", task.Failure())
}

func TestTaskCancelDoesNotOverrideDone(t *testing.T) {
	task := NewCommandTask(1, nil, testEpoch)
	require.NoError(t, task.Claim())
	require.NoError(t, task.Start())
	task.Finish()

	task.MarkCancelled()

	assert.Equal(t, TaskDone, task.State())
}

func TestDependenciesReadyWalksChain(t *testing.T) {
	a := NewCommandTask(1, nil, testEpoch)
	b := NewCommandTask(1, nil, testEpoch)
	c := NewCommandTask(1, nil, testEpoch)
	b.Dependency = a
	c.Dependency = b

	assert.False(t, c.DependenciesReady())

	finish := func(task *DeviceTask) {
		require.NoError(t, task.Claim())
		require.NoError(t, task.Start())
		task.Finish()
	}
	finish(a)
	assert.False(t, c.DependenciesReady())
	finish(b)
	assert.True(t, c.DependenciesReady())
}

func TestDependencyCancelledPropagates(t *testing.T) {
	a := NewCommandTask(1, nil, testEpoch)
	b := NewCommandTask(1, nil, testEpoch)
	b.Dependency = a

	a.MarkCancelled()

	assert.True(t, b.DependencyCancelled())
	assert.False(t, b.DependenciesReady())
}

func TestFailedDependencyNeverUnblocks(t *testing.T) {
	a := NewCommandTask(1, nil, testEpoch)
	b := NewCommandTask(1, nil, testEpoch)
	b.Dependency = a

	require.NoError(t, a.Claim())
	require.NoError(t, a.Start())
	a.Fail("nope")

	assert.True(t, b.DependencyCancelled())
	assert.False(t, b.DependenciesReady())
}

func TestAwaitingHumanFilamentChange(t *testing.T) {
	spool := &inventory.Filament{ID: 1, Name: "PLA red", Color: "red", Material: "PLA", BedTemp: 60, NozzleTemp: 210}
	fc := NewFilamentChange(1, nil, spool, testEpoch)

	assert.False(t, fc.Task.AwaitingHuman(), "not parked before the warm-up is sent")
	fc.Task.MarkSent()
	assert.True(t, fc.Task.AwaitingHuman())
	fc.Confirm(testEpoch.Add(time.Minute))
	assert.False(t, fc.Task.AwaitingHuman())
}

func TestAwaitingHumanFinishedProgram(t *testing.T) {
	task := NewProgramTask(1, "/tmp/a.gcode", testEpoch)
	job := NewPrintJob(task, nil, testEpoch, time.Hour)

	require.NoError(t, task.Claim())
	require.NoError(t, task.Start())
	assert.False(t, task.AwaitingHuman())

	task.Finish()
	assert.True(t, task.AwaitingHuman())

	job.Confirm(true, testEpoch.Add(time.Hour))
	assert.False(t, task.AwaitingHuman())
}

func TestProgramTimeLeftPrefersHostReport(t *testing.T) {
	task := NewProgramTask(1, "/tmp/a.gcode", testEpoch)
	NewPrintJob(task, nil, testEpoch, 2*time.Hour)

	left := 42 * time.Minute
	status := Status{Job: JobStatus{EstimatedLeft: &left}}

	assert.Equal(t, left, task.TimeLeft(testEpoch, status))
}

func TestProgramTimeLeftFallbackHasFloor(t *testing.T) {
	task := NewProgramTask(1, "/tmp/a.gcode", testEpoch)
	NewPrintJob(task, nil, testEpoch, 2*time.Hour)

	// Host reports nothing and the estimate is nearly exhausted: the floor
	// keeps the scheduler from treating the printer as free.
	nearEnd := testEpoch.Add(2*time.Hour - time.Minute)
	assert.Equal(t, 600*time.Second, task.TimeLeft(nearEnd, Status{}))

	// Far from the estimate the remaining wall time wins.
	early := testEpoch.Add(30 * time.Minute)
	assert.Equal(t, 90*time.Minute, task.TimeLeft(early, Status{}))
}

func TestFilamentChangeTimeLeftConstant(t *testing.T) {
	spool := &inventory.Filament{ID: 1, Color: "red", Material: "PLA"}
	fc := NewFilamentChange(1, nil, spool, testEpoch)

	assert.Equal(t, 15*time.Minute, fc.Task.TimeLeft(testEpoch, Status{}))
}

func TestValidateChainDetectsCycle(t *testing.T) {
	a := NewCommandTask(1, nil, testEpoch)
	b := NewCommandTask(1, nil, testEpoch)
	a.Dependency = b
	b.Dependency = a

	assert.Error(t, ValidateChain([]*DeviceTask{a, b}))
}

func TestValidateChainAcceptsLinear(t *testing.T) {
	a := NewCommandTask(1, nil, testEpoch)
	b := NewCommandTask(1, nil, testEpoch)
	b.Dependency = a

	assert.NoError(t, ValidateChain([]*DeviceTask{a, b}))
}
