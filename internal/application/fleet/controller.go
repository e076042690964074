package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// Controller owns one printer: its task queue, the single active-task slot,
// the cached status, and the REST client to its host. All queue and slot
// mutations happen under the controller mutex; a controller's task runner is
// never concurrent with itself.
type Controller struct {
	printer  *printing.Printer
	client   DeviceClient
	registry *StatusRegistry
	clock    shared.Clock
	log      *zap.SugaredLogger

	// retryDelay is the cooperative suspension between runner polls.
	retryDelay time.Duration

	mu          sync.Mutex
	queue       []*printing.DeviceTask
	active      *printing.DeviceTask
	locked      bool
	notifyCount int
	runnerDone  chan struct{}
}

// NewController wires a controller to its printer and host client.
func NewController(printer *printing.Printer, client DeviceClient, registry *StatusRegistry, clock shared.Clock, log *zap.SugaredLogger) *Controller {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Controller{
		printer:    printer,
		client:     client,
		registry:   registry,
		clock:      clock,
		log:        log.With("printer", printer.Name),
		retryDelay: 2 * time.Second,
	}
}

// Printer returns the controlled printer.
func (c *Controller) Printer() *printing.Printer {
	return c.printer
}

// Enqueue appends a task to the controller queue. No state transition beyond
// queuing happens here; the dispatch tick promotes tasks.
func (c *Controller) Enqueue(task *printing.DeviceTask) *printing.DeviceTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, task)
	c.log.Debugw("task enqueued", "task", task.ID, "kind", task.Kind)
	return task
}

// QueueSnapshot returns the queued tasks in insertion order.
func (c *Controller) QueueSnapshot() []*printing.DeviceTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*printing.DeviceTask, len(c.queue))
	copy(out, c.queue)
	return out
}

// ActiveTask returns the task in the active slot, nil when empty.
func (c *Controller) ActiveTask() *printing.DeviceTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SnapshotStatus returns the cached status aggregate.
func (c *Controller) SnapshotStatus() printing.Status {
	return c.registry.Get(c.printer.ID)
}

// SetLocked flips the scheduling lock.
func (c *Controller) SetLocked(locked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locked = locked
}

// Locked reports the scheduling lock.
func (c *Controller) Locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// CancelActive marks the active task cancelled, optionally telling the
// remote to abort, clears the slot, and fails the attached print job.
// Idempotent; a controller with an empty slot is a no-op.
func (c *Controller) CancelActive(ctx context.Context, notifyRemote bool) {
	c.mu.Lock()
	task := c.active
	c.active = nil
	c.mu.Unlock()
	if task == nil {
		return
	}

	task.MarkCancelled()
	if task.Job != nil {
		task.Job.MarkFailed(c.clock.Now())
	}
	if notifyRemote {
		if err := c.client.Cancel(ctx); err != nil {
			c.log.Warnw("remote cancel failed", "task", task.ID, "error", err)
		}
	}
	c.log.Infow("active task cancelled", "task", task.ID, "kind", task.Kind)
}

// Reset force-clears the active slot and the cached status.
func (c *Controller) Reset() {
	c.mu.Lock()
	task := c.active
	c.active = nil
	c.notifyCount = 0
	c.mu.Unlock()
	if task != nil {
		task.MarkCancelled()
		if task.Job != nil {
			task.Job.MarkFailed(c.clock.Now())
		}
	}
	c.registry.Clear(c.printer.ID)
	c.log.Infow("controller reset")
}

// ConnectionReady reports whether the host link is usable for scheduling.
func (c *Controller) ConnectionReady() bool {
	if c.Locked() {
		return false
	}
	status := c.SnapshotStatus()
	return status.Flags.Ready && !status.ConnectionError
}

// ActiveFreeOrDone reports whether the active slot is empty or terminal.
func (c *Controller) ActiveFreeOrDone() bool {
	task := c.ActiveTask()
	return task == nil || task.Terminal()
}

// AwaitingHuman reports whether the active task is parked on a human action.
func (c *Controller) AwaitingHuman() bool {
	task := c.ActiveTask()
	return task != nil && task.AwaitingHuman()
}

// PrinterReady reports whether the dispatcher may launch new work here.
func (c *Controller) PrinterReady() bool {
	return c.ConnectionReady() && c.ActiveFreeOrDone() && !c.AwaitingHuman()
}

// TimeLeft estimates remaining occupancy of the printer in seconds: zero
// with an empty slot, otherwise the active task's kind-specific estimate.
func (c *Controller) TimeLeft(now time.Time) time.Duration {
	task := c.ActiveTask()
	if task == nil || task.Terminal() {
		return 0
	}
	return task.TimeLeft(now, c.SnapshotStatus())
}

// DispatchTick advances the controller's active-task state machine one step:
// clear a terminal slot (promoting a dependent of the finished task first),
// then claim the next runnable queued task if the connection is ready.
// Called from the global dispatch loop every second.
func (c *Controller) DispatchTick(ctx context.Context, beepThreshold int) {
	c.reapFailedDependents()

	if c.AwaitingHuman() {
		c.pokeBuzzer(ctx, beepThreshold)
		return
	}

	c.mu.Lock()
	finished := c.active
	if finished != nil && finished.Terminal() {
		c.active = nil
	} else if finished != nil {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !c.ConnectionReady() {
		return
	}

	next := c.takeRunnable(finished)
	if next == nil {
		return
	}
	if err := next.Claim(); err != nil {
		c.log.Warnw("claim failed", "task", next.ID, "error", err)
		return
	}
	c.mu.Lock()
	c.active = next
	c.runnerDone = make(chan struct{})
	done := c.runnerDone
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.run(ctx, next)
	}()
}

// reapFailedDependents fails and drops queued tasks whose dependency chain
// contains a cancelled or failed task; they can never become runnable.
func (c *Controller) reapFailedDependents() {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.queue[:0]
	for _, t := range c.queue {
		if t.DependencyCancelled() {
			t.Fail(shared.ErrDependencyCancelled.Error())
			if t.Job != nil {
				t.Job.MarkFailed(now)
			}
			c.log.Warnw("task dropped: dependency cancelled", "task", t.ID)
			continue
		}
		kept = append(kept, t)
	}
	c.queue = kept
}

// takeRunnable removes and returns the task to promote. A queued task whose
// dependency is the just-finished active task wins; otherwise the last
// dependency-ready task found scanning in insertion order is taken.
func (c *Controller) takeRunnable(justFinished *printing.DeviceTask) *printing.DeviceTask {
	c.mu.Lock()
	defer c.mu.Unlock()

	pick := -1
	for i, t := range c.queue {
		if t.Cancelled() {
			continue
		}
		if !t.DependenciesReady() {
			continue
		}
		if justFinished != nil && t.Dependency == justFinished {
			pick = i
			break
		}
		pick = i
	}
	if pick < 0 {
		return nil
	}
	task := c.queue[pick]
	c.queue = append(c.queue[:pick], c.queue[pick+1:]...)
	return task
}

// pokeBuzzer counts consecutive awaiting-human ticks and beeps the printer
// once the threshold is crossed, then restarts the count.
func (c *Controller) pokeBuzzer(ctx context.Context, beepThreshold int) {
	if beepThreshold <= 0 {
		return
	}
	c.mu.Lock()
	c.notifyCount++
	fire := c.notifyCount >= beepThreshold
	if fire {
		c.notifyCount = 0
	}
	c.mu.Unlock()
	if fire {
		if err := c.client.IssueCommands(ctx, printing.BuzzerTone); err != nil {
			c.log.Debugw("buzzer poke failed", "error", err)
		}
	}
}

// WaitIdle blocks until the current runner goroutine exits. Test helper.
func (c *Controller) WaitIdle() {
	c.mu.Lock()
	done := c.runnerDone
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}
