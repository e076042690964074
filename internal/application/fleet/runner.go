package fleet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
	"github.com/polyforge/printfarm-go/pkg/gcode"
)

// run drives one claimed task to a terminal state. Each kind has its own
// contract; all of them suspend cooperatively between polls so the worker
// never spins against the host.
func (c *Controller) run(ctx context.Context, task *printing.DeviceTask) {
	if err := task.Start(); err != nil {
		c.log.Warnw("runner start failed", "task", task.ID, "error", err)
		return
	}

	var err error
	switch task.Kind {
	case printing.TaskCommand:
		err = c.runCommand(ctx, task)
	case printing.TaskProgram:
		err = c.runProgram(ctx, task)
	case printing.TaskSliceProgram:
		err = c.runSliceProgram(ctx, task)
	case printing.TaskFilamentChange:
		err = c.runFilamentChange(ctx, task)
	default:
		err = fmt.Errorf("unknown task kind %s", task.Kind)
	}

	if err != nil {
		if task.Cancelled() {
			return
		}
		task.Fail(err.Error())
		if task.Job != nil {
			task.Job.MarkFailed(c.clock.Now())
		}
		c.log.Errorw("task failed", "task", task.ID, "kind", task.Kind, "error", err)
	}
}

// runCommand fires the script and is terminal as soon as the host accepts.
func (c *Controller) runCommand(ctx context.Context, task *printing.DeviceTask) error {
	task.MarkSent()
	if err := c.client.IssueCommands(ctx, task.Commands); err != nil {
		return err
	}
	task.Finish()
	return nil
}

// runProgram uploads the program once, then polls the cached status until
// the job leaves the printing/paused states. Tracking is tied to the
// filename the host assigned at upload; a mismatch means another job took
// the machine and the attempt is lost.
func (c *Controller) runProgram(ctx context.Context, task *printing.DeviceTask) error {
	if !task.Sent() {
		if err := c.upload(ctx, task); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if task.Cancelled() {
			return nil
		}

		status := c.SnapshotStatus()
		if !status.ConnectionError {
			if status.Job.FileName != task.RemoteFilename() {
				c.onTrackingLost(ctx, task)
				return shared.ErrTrackingLost
			}
			if !status.Busy() {
				task.Finish()
				c.log.Infow("program finished", "task", task.ID, "file", task.RemoteFilename())
				return nil
			}
		}
		c.clock.Sleep(c.retryDelay)
	}
}

// runSliceProgram waits cooperatively for the external slice job, adopts its
// program file, and continues under the program contract.
func (c *Controller) runSliceProgram(ctx context.Context, task *printing.DeviceTask) error {
	for !task.Slice.Ready() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if task.Cancelled() {
			return nil
		}
		if err := task.Slice.Err(); err != nil {
			return fmt.Errorf("slice job: %w", err)
		}
		c.clock.Sleep(c.retryDelay)
	}
	task.ProgramPath = task.Slice.ProgramPath()
	return c.runProgram(ctx, task)
}

// runFilamentChange warms the printer for the swap and then waits for the
// operator's confirmation; remote status plays no part in its completion.
func (c *Controller) runFilamentChange(ctx context.Context, task *printing.DeviceTask) error {
	if !task.Sent() {
		if err := c.client.IssueCommands(ctx, task.Commands); err != nil {
			return err
		}
		task.MarkSent()
	}

	for !task.Change.Confirmed() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if task.Cancelled() {
			// A cancelled change never commits its filament swap.
			return nil
		}
		c.clock.Sleep(c.retryDelay)
	}
	task.Finish()
	c.log.Infow("filament change confirmed", "task", task.ID, "filament", task.Change.NewFilament.Name)
	return nil
}

// upload streams the program plus the end-of-file sentinel to the host and
// records the assigned remote filename, then forces a status refresh so the
// first poll already sees the new job name.
func (c *Controller) upload(ctx context.Context, task *printing.DeviceTask) error {
	file, err := os.Open(task.ProgramPath)
	if err != nil {
		return fmt.Errorf("open program: %w", err)
	}
	defer file.Close()

	assigned, err := c.client.UploadAndStart(ctx, gcode.WithSentinel(file), filepath.Base(task.ProgramPath))
	if err != nil {
		return fmt.Errorf("upload program: %w", err)
	}
	task.SetRemoteFilename(assigned)
	task.MarkSent()
	c.RefreshStatus(ctx)
	return nil
}

// onTrackingLost fails the attempt and aborts whatever the host is running.
func (c *Controller) onTrackingLost(ctx context.Context, task *printing.DeviceTask) {
	if task.Job != nil {
		task.Job.MarkFailed(c.clock.Now())
	}
	if err := c.client.Cancel(ctx); err != nil {
		c.log.Warnw("remote cancel after tracking loss failed", "task", task.ID, "error", err)
	}
}

// RefreshStatus polls the host once and updates the cached aggregate. Any
// failure reads as a connection error; it never propagates.
func (c *Controller) RefreshStatus(ctx context.Context) {
	flags, temps, err := c.client.FetchPrinterState(ctx)
	if err != nil {
		c.registry.Put(c.printer.ID, printing.Status{ConnectionError: true, UpdatedAt: c.clock.Now()})
		return
	}
	job, err := c.client.FetchJobState(ctx)
	if err != nil {
		c.registry.Put(c.printer.ID, printing.Status{ConnectionError: true, UpdatedAt: c.clock.Now()})
		return
	}
	c.registry.Put(c.printer.ID, printing.Status{
		Flags:     flags,
		Temps:     temps,
		Job:       job,
		UpdatedAt: c.clock.Now(),
	})
}
